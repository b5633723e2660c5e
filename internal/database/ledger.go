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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService owns per-user per-currency balances and their immutable
// transaction records. Every mutation creates a pending transaction first,
// applies the balance change as one conditional statement, then transitions
// the transaction to its terminal state.
type LedgerService struct {
	db         *sql.DB
	currencies map[string]struct{}
}

func NewLedgerService(db *sql.DB, currencies map[string]struct{}) *LedgerService {
	return &LedgerService{db: db, currencies: currencies}
}

var validKinds = map[string]struct{}{
	models.KindDeposit:    {},
	models.KindWithdrawal: {},
	models.KindExchange:   {},
	models.KindBonus:      {},
}

// pendingTransaction carries the fields of a transaction record at creation.
type pendingTransaction struct {
	userId         string
	kind           string
	currency       string
	amountUnits    int64
	targetCurrency string
	targetUnits    int64
	rateUsed       string
	reference      string
}

// Credit increases a balance. The transaction record survives a failed
// increment, marked failed with the store error as its note.
func (s *LedgerService) Credit(ctx context.Context, params store.MutationParams) (string, error) {
	units, err := s.validateMutation(params)
	if err != nil {
		return "", err
	}

	// Once the mutation starts it runs to completion against the store;
	// caller cancellation only stops the wait.
	ctx = context.WithoutCancel(ctx)

	txId, err := s.createPending(ctx, pendingTransaction{
		userId:      params.UserId,
		kind:        params.Kind,
		currency:    params.Currency,
		amountUnits: units,
		reference:   params.Reference,
	})
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, queryCreditBalance,
		uuid.New().String(), params.UserId, params.Currency, units, txId)
	if err != nil {
		s.finish(ctx, txId, models.StatusFailed, err.Error())
		zap.L().Error("Credit failed",
			zap.String("transaction_id", txId),
			zap.String("user_id", params.UserId),
			zap.String("currency", params.Currency),
			zap.String("amount", params.Amount.String()),
			zap.Error(err))
		return "", fmt.Errorf("credit %s %s for user %s: %w: %v",
			params.Amount.String(), params.Currency, params.UserId, store.ErrStoreUnavailable, err)
	}

	if err := s.finish(ctx, txId, models.StatusCompleted, ""); err != nil {
		return "", err
	}

	zap.L().Info("Credit completed",
		zap.String("transaction_id", txId),
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.String("amount", params.Amount.String()),
		zap.String("kind", params.Kind))
	return txId, nil
}

// Debit decreases a balance. The balance check and the decrement are one
// conditional statement; the predicate holds at commit time or nothing
// changes.
func (s *LedgerService) Debit(ctx context.Context, params store.MutationParams) (string, error) {
	units, err := s.validateMutation(params)
	if err != nil {
		return "", err
	}

	ctx = context.WithoutCancel(ctx)

	txId, err := s.createPending(ctx, pendingTransaction{
		userId:      params.UserId,
		kind:        params.Kind,
		currency:    params.Currency,
		amountUnits: -units,
		reference:   params.Reference,
	})
	if err != nil {
		return "", err
	}

	result, err := s.db.ExecContext(ctx, queryDebitBalance,
		units, txId, params.UserId, params.Currency, units)
	if err != nil {
		s.finish(ctx, txId, models.StatusFailed, err.Error())
		return "", fmt.Errorf("debit %s %s for user %s: %w: %v",
			params.Amount.String(), params.Currency, params.UserId, store.ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		s.finish(ctx, txId, models.StatusFailed, err.Error())
		return "", fmt.Errorf("debit %s %s for user %s: %w: %v",
			params.Amount.String(), params.Currency, params.UserId, store.ErrStoreUnavailable, err)
	}
	if rows == 0 {
		s.finish(ctx, txId, models.StatusFailed, "insufficient funds")
		zap.L().Info("Debit rejected, insufficient funds",
			zap.String("transaction_id", txId),
			zap.String("user_id", params.UserId),
			zap.String("currency", params.Currency),
			zap.String("amount", params.Amount.String()))
		return "", fmt.Errorf("debit %s %s for user %s: %w",
			params.Amount.String(), params.Currency, params.UserId, store.ErrInsufficientFunds)
	}

	if err := s.finish(ctx, txId, models.StatusCompleted, ""); err != nil {
		return "", err
	}

	zap.L().Info("Debit completed",
		zap.String("transaction_id", txId),
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.String("amount", params.Amount.String()),
		zap.String("kind", params.Kind))
	return txId, nil
}

// Transfer moves value between two of a user's currencies as one store
// transaction: either both legs commit or neither does. Exactly one
// transaction record of kind exchange carries both legs.
func (s *LedgerService) Transfer(ctx context.Context, params store.TransferParams) (string, error) {
	if err := s.checkCurrency(params.FromCurrency); err != nil {
		return "", err
	}
	if err := s.checkCurrency(params.ToCurrency); err != nil {
		return "", err
	}
	if params.FromCurrency == params.ToCurrency {
		return "", fmt.Errorf("%w: transfer between identical currencies %s", store.ErrInvalidCurrency, params.FromCurrency)
	}
	if params.UserId == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	fromUnits, err := checkAmount(params.FromAmount)
	if err != nil {
		return "", err
	}
	toUnits, err := checkAmount(params.ToAmount)
	if err != nil {
		return "", err
	}

	ctx = context.WithoutCancel(ctx)

	txId, err := s.createPending(ctx, pendingTransaction{
		userId:         params.UserId,
		kind:           models.KindExchange,
		currency:       params.FromCurrency,
		amountUnits:    -fromUnits,
		targetCurrency: params.ToCurrency,
		targetUnits:    toUnits,
		rateUsed:       params.RateUsed.String(),
	})
	if err != nil {
		return "", err
	}

	err = s.transferLegs(ctx, txId, params.UserId, params.FromCurrency, fromUnits, params.ToCurrency, toUnits)
	if err != nil {
		s.finish(ctx, txId, models.StatusFailed, err.Error())
		if isInsufficientFunds(err) {
			return "", fmt.Errorf("transfer %s %s -> %s for user %s: %w",
				params.FromAmount.String(), params.FromCurrency, params.ToCurrency, params.UserId, store.ErrInsufficientFunds)
		}
		return "", fmt.Errorf("transfer %s %s -> %s for user %s: %w: %v",
			params.FromAmount.String(), params.FromCurrency, params.ToCurrency, params.UserId, store.ErrStoreUnavailable, err)
	}

	if err := s.finish(ctx, txId, models.StatusCompleted, ""); err != nil {
		return "", err
	}

	zap.L().Info("Transfer completed",
		zap.String("transaction_id", txId),
		zap.String("user_id", params.UserId),
		zap.String("from", params.FromCurrency),
		zap.String("from_amount", params.FromAmount.String()),
		zap.String("to", params.ToCurrency),
		zap.String("to_amount", params.ToAmount.String()))
	return txId, nil
}

var errInsufficientAtCommit = fmt.Errorf("balance below requested amount at commit")

func isInsufficientFunds(err error) bool {
	return err == errInsufficientAtCommit
}

// transferLegs applies both balance mutations inside one store transaction.
func (s *LedgerService) transferLegs(ctx context.Context, txId, userId, fromCurrency string, fromUnits int64, toCurrency string, toUnits int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryDebitBalance,
		fromUnits, txId, userId, fromCurrency, fromUnits)
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", fromCurrency, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return errInsufficientAtCommit
	}

	_, err = tx.ExecContext(ctx, queryCreditBalance,
		uuid.New().String(), userId, toCurrency, toUnits, txId)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", toCurrency, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// GetBalance returns a point-in-time snapshot of every balance the user
// holds.
func (s *LedgerService) GetBalance(ctx context.Context, userId string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserBalances, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query balances for user %s: %w", userId, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency string
		var units int64
		if err := rows.Scan(&currency, &units); err != nil {
			return nil, fmt.Errorf("unable to scan balance row: %w", err)
		}
		balances[currency] = money.FromUnits(units)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}
	return balances, nil
}

func (s *LedgerService) validateMutation(params store.MutationParams) (int64, error) {
	if err := s.checkCurrency(params.Currency); err != nil {
		return 0, err
	}
	if params.UserId == "" {
		return 0, fmt.Errorf("user id cannot be empty")
	}
	if _, ok := validKinds[params.Kind]; !ok {
		return 0, fmt.Errorf("invalid transaction kind %q", params.Kind)
	}
	return checkAmount(params.Amount)
}

func checkAmount(amount decimal.Decimal) (int64, error) {
	if err := money.CheckPositive(amount); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrInvalidAmount, err)
	}
	units, err := money.ToUnits(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrInvalidAmount, err)
	}
	return units, nil
}

func (s *LedgerService) checkCurrency(currency string) error {
	if _, ok := s.currencies[currency]; !ok {
		return fmt.Errorf("%w: %q", store.ErrInvalidCurrency, currency)
	}
	return nil
}

// createPending inserts the transaction record and its first status entry.
func (s *LedgerService) createPending(ctx context.Context, p pendingTransaction) (string, error) {
	txId := uuid.New().String()

	var targetCurrency, targetUnits, rateUsed any
	if p.targetCurrency != "" {
		targetCurrency = p.targetCurrency
		targetUnits = p.targetUnits
	}
	if p.rateUsed != "" {
		rateUsed = p.rateUsed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		txId, p.userId, p.kind, p.currency, p.amountUnits,
		targetCurrency, targetUnits, rateUsed, p.reference)
	if err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, queryInsertStatusChange,
		uuid.New().String(), txId, models.StatusPending, "created")
	if err != nil {
		return "", fmt.Errorf("failed to insert status entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction record: %w", err)
	}
	return txId, nil
}

// finish transitions a pending transaction to its terminal state and appends
// the matching status entry. Terminal records are never touched again.
func (s *LedgerService) finish(ctx context.Context, txId, status, note string) error {
	result, err := s.db.ExecContext(ctx, queryFinishTransaction, status, txId)
	if err != nil {
		zap.L().Error("Failed to finish transaction",
			zap.String("transaction_id", txId),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("unable to mark transaction %s %s: %w", txId, status, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to check rows affected: %w", err)
	}
	if rows == 0 {
		zap.L().Error("Transaction already terminal",
			zap.String("transaction_id", txId),
			zap.String("status", status))
		return fmt.Errorf("transaction %s: %w", txId, store.ErrConcurrentModification)
	}

	_, err = s.db.ExecContext(ctx, queryInsertStatusChange,
		uuid.New().String(), txId, status, note)
	if err != nil {
		zap.L().Error("Failed to append status history",
			zap.String("transaction_id", txId),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("unable to append status history for %s: %w", txId, err)
	}
	return nil
}
