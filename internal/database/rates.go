/**
 * Copyright 2025-present UBT Platform, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"

	"ubt-ledger-go/internal/models"
	"ubt-ledger-go/internal/money"
	"ubt-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rateStepRetries bounds the compare-and-set loop under concurrent
// withdrawals.
const rateStepRetries = 5

// RateService owns the single global exchange-rate row. The sell rate only
// moves up, one multiplicative step per completed withdrawal; the buy rate
// is always derived from it.
type RateService struct {
	db        *sql.DB
	step      decimal.Decimal
	buyFactor decimal.Decimal
}

func NewRateService(db *sql.DB, step, buyFactor decimal.Decimal) *RateService {
	return &RateService{db: db, step: step, buyFactor: buyFactor}
}

// GetState reads the rate row and derives the buy rate.
func (s *RateService) GetState(ctx context.Context) (*models.RateState, error) {
	var state models.RateState
	var rateUnits int64
	err := s.db.QueryRowContext(ctx, queryGetRateState).Scan(
		&rateUnits, &state.WithdrawalCount, &state.Version, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to read rate state: %w: %v", store.ErrStoreUnavailable, err)
	}
	state.CurrentRate = money.FromUnits(rateUnits)
	state.BuyRate = money.Round(state.CurrentRate.Mul(s.buyFactor))
	return &state, nil
}

// Quote prices a conversion at the current state. Pure read, no side
// effects; rounding is applied once, at the end.
func (s *RateService) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	state, err := s.GetState(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.quoteAt(state, amount, from, to)
}

func (s *RateService) quoteAt(state *models.RateState, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if err := money.CheckPositive(amount); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", store.ErrInvalidAmount, err)
	}

	switch {
	case from == TokenCurrency && to == StableCurrency:
		return money.Round(amount.Mul(state.CurrentRate)), nil
	case from == StableCurrency && to == TokenCurrency:
		return amount.DivRound(state.BuyRate, money.Scale), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported conversion %s -> %s", store.ErrInvalidCurrency, from, to)
	}
}

// ApplyWithdrawalPressure moves the sell rate up one step and counts the
// withdrawal. The write is a version-checked update retried a bounded number
// of times, so concurrent withdrawals never lose an increment.
func (s *RateService) ApplyWithdrawalPressure(ctx context.Context) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)

	for attempt := 0; attempt < rateStepRetries; attempt++ {
		state, err := s.GetState(ctx)
		if err != nil {
			return decimal.Zero, err
		}

		newRate := money.Round(state.CurrentRate.Mul(one.Add(s.step)))
		newUnits, err := money.ToUnits(newRate)
		if err != nil {
			return decimal.Zero, fmt.Errorf("rate overflow: %w", err)
		}

		result, err := s.db.ExecContext(ctx, queryStepRate, newUnits, state.Version)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unable to step rate: %w: %v", store.ErrStoreUnavailable, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return decimal.Zero, fmt.Errorf("unable to check rows affected: %w", err)
		}
		if rows == 0 {
			// Lost the race; re-read and retry.
			continue
		}

		zap.L().Info("Withdrawal pressure applied",
			zap.String("old_rate", state.CurrentRate.String()),
			zap.String("new_rate", newRate.String()),
			zap.Int64("withdrawal_count", state.WithdrawalCount+1))
		return newRate, nil
	}

	return decimal.Zero, fmt.Errorf("rate step lost %d races: %w", rateStepRetries, store.ErrConcurrentModification)
}

// Reset is the administrative rate reset, the one sanctioned exception to
// monotonicity. The withdrawal counter is left untouched.
func (s *RateService) Reset(ctx context.Context, rate decimal.Decimal) error {
	if err := money.CheckPositive(rate); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidAmount, err)
	}
	units, err := money.ToUnits(rate)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidAmount, err)
	}

	if _, err := s.db.ExecContext(ctx, queryResetRate, units); err != nil {
		return fmt.Errorf("unable to reset rate: %w: %v", store.ErrStoreUnavailable, err)
	}

	zap.L().Warn("Exchange rate administratively reset", zap.String("rate", rate.String()))
	return nil
}
