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

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TokenCurrency is the platform's internal unit of account. It exists only
// inside the ledger; the address pool never serves it.
const TokenCurrency = "UBT"

// StableCurrency is the stable side of the UBT conversion spread.
const StableCurrency = "USDT"

// Compile-time check: *Service must satisfy store.EconomyStore.
var _ store.EconomyStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	allocator *AllocatorService
	ledger    *LedgerService
	rates     *RateService
}

// NewService opens the SQLite store and wires the allocator, ledger and
// rate engine over it. depositCurrencies lists the currencies the address
// pool serves; nil selects BTC, ETH and USDT.
func NewService(ctx context.Context, cfg *models.Config, depositCurrencies []string) (*Service, error) {
	// Validate configuration
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.Database.PingTimeout)
	}
	if !cfg.Economy.InitialRate.IsPositive() {
		return nil, fmt.Errorf("initial rate must be positive, got %s", cfg.Economy.InitialRate.String())
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Database.Path))
	db, err := sql.Open("sqlite3", cfg.Database.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if depositCurrencies == nil {
		depositCurrencies = []string{"BTC", "ETH", StableCurrency}
	}
	poolCurrencies := make(map[string]struct{}, len(depositCurrencies))
	ledgerCurrencies := map[string]struct{}{TokenCurrency: {}}
	for _, code := range depositCurrencies {
		poolCurrencies[code] = struct{}{}
		ledgerCurrencies[code] = struct{}{}
	}

	service := &Service{
		db:        db,
		allocator: NewAllocatorService(db, poolCurrencies),
		ledger:    NewLedgerService(db, ledgerCurrencies),
		rates:     NewRateService(db, cfg.Economy.RateIncreaseStep, cfg.Economy.BuyFactor),
	}

	if err := service.initSchema(cfg.Economy.InitialRate); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully",
		zap.Strings("deposit_currencies", depositCurrencies))
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(initialRate decimal.Decimal) error {
	schema := `
	-- Deposit address pool. Bulk-imported unassigned; each row assigned at
	-- most once, never deleted (retired via active = 0).
	CREATE TABLE IF NOT EXISTS deposit_addresses (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL UNIQUE,
		currency TEXT NOT NULL,
		assigned_to TEXT,
		assigned_at TIMESTAMP,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deposit_addresses_unassigned
		ON deposit_addresses(currency) WHERE assigned_to IS NULL;
	-- One address per user per currency, enforced at the store level.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposit_addresses_holder
		ON deposit_addresses(assigned_to, currency) WHERE assigned_to IS NOT NULL;

	-- Balances (current state - hot data). Amounts are integer base units
	-- scaled by 1e8; the CHECK makes overdraft impossible at the store level.
	CREATE TABLE IF NOT EXISTS balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
		last_transaction_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, currency)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_user_id ON balances(user_id);

	-- Transactions (audit trail - cold data). Append-only after creation
	-- except for the pending -> completed | failed transition.
	CREATE TABLE IF NOT EXISTS ledger_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL,
		target_currency TEXT,
		target_amount INTEGER,
		rate_used TEXT,
		reference TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_user_id ON ledger_transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_user_currency ON ledger_transactions(user_id, currency);
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_status ON ledger_transactions(status);
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_created_at ON ledger_transactions(created_at);

	-- Append-only status audit trail per transaction.
	CREATE TABLE IF NOT EXISTS transaction_status_history (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_status_history_transaction_id
		ON transaction_status_history(transaction_id);

	-- Single global exchange-rate row, mutated only through version-checked
	-- updates. current_rate is integer base units scaled by 1e8.
	CREATE TABLE IF NOT EXISTS rate_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_rate INTEGER NOT NULL,
		withdrawal_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	rateUnits, err := money.ToUnits(initialRate)
	if err != nil {
		return fmt.Errorf("invalid initial rate: %w", err)
	}
	if _, err := s.db.Exec(querySeedRateState, rateUnits); err != nil {
		return fmt.Errorf("unable to seed rate state: %w", err)
	}

	return nil
}

// Address pool

func (s *Service) ImportAddress(ctx context.Context, address, currency string) (*models.DepositAddress, error) {
	return s.allocator.Import(ctx, address, currency)
}

func (s *Service) AssignAddress(ctx context.Context, userId, currency string) (*models.DepositAddress, error) {
	return s.allocator.Assign(ctx, userId, currency)
}

func (s *Service) GetAssignedAddress(ctx context.Context, userId, currency string) (*models.DepositAddress, error) {
	return s.allocator.GetAssigned(ctx, userId, currency)
}

func (s *Service) RetireAddress(ctx context.Context, address string) error {
	return s.allocator.Retire(ctx, address)
}

func (s *Service) CountUnassigned(ctx context.Context, currency string) (int, error) {
	return s.allocator.CountUnassigned(ctx, currency)
}

// Ledger

func (s *Service) Credit(ctx context.Context, params store.MutationParams) (string, error) {
	return s.ledger.Credit(ctx, params)
}

func (s *Service) Debit(ctx context.Context, params store.MutationParams) (string, error) {
	return s.ledger.Debit(ctx, params)
}

func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (string, error) {
	return s.ledger.Transfer(ctx, params)
}

func (s *Service) GetBalance(ctx context.Context, userId string) (map[string]decimal.Decimal, error) {
	return s.ledger.GetBalance(ctx, userId)
}

func (s *Service) GetTransaction(ctx context.Context, transactionId string) (*models.Transaction, error) {
	return s.ledger.GetTransaction(ctx, transactionId)
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error) {
	return s.ledger.GetTransactionHistory(ctx, userId, limit, offset)
}

func (s *Service) ReconcileBalance(ctx context.Context, userId, currency string) error {
	return s.ledger.ReconcileBalance(ctx, userId, currency)
}

// Exchange rate

func (s *Service) GetRateState(ctx context.Context) (*models.RateState, error) {
	return s.rates.GetState(ctx)
}

func (s *Service) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return s.rates.Quote(ctx, amount, from, to)
}

func (s *Service) ApplyWithdrawalPressure(ctx context.Context) (decimal.Decimal, error) {
	return s.rates.ApplyWithdrawalPressure(ctx)
}

func (s *Service) ResetRate(ctx context.Context, rate decimal.Decimal) error {
	return s.rates.Reset(ctx, rate)
}

// ProcessExchange quotes a conversion at the current rate and moves both
// legs as one atomic transfer. Only UBT<->USDT pairs are quotable.
func (s *Service) ProcessExchange(ctx context.Context, userId, from, to string, amount decimal.Decimal) (string, error) {
	state, err := s.rates.GetState(ctx)
	if err != nil {
		return "", err
	}

	targetAmount, err := s.rates.quoteAt(state, amount, from, to)
	if err != nil {
		return "", err
	}

	rateUsed := state.CurrentRate
	if from == StableCurrency {
		rateUsed = state.BuyRate
	}

	txId, err := s.ledger.Transfer(ctx, store.TransferParams{
		UserId:       userId,
		FromCurrency: from,
		FromAmount:   amount,
		ToCurrency:   to,
		ToAmount:     targetAmount,
		RateUsed:     rateUsed,
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("Exchange processed",
		zap.String("transaction_id", txId),
		zap.String("user_id", userId),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("target_amount", targetAmount.String()),
		zap.String("rate_used", rateUsed.String()))
	return txId, nil
}

// ProcessWithdrawal debits the user and then applies one withdrawal-pressure
// step to the rate. A failed debit never moves the rate. If the rate step
// fails after the debit committed, the debit is not rolled back; the gap is
// logged for manual reconciliation and the error returned with the committed
// transaction id.
func (s *Service) ProcessWithdrawal(ctx context.Context, userId, currency string, amount decimal.Decimal) (string, decimal.Decimal, error) {
	txId, err := s.ledger.Debit(ctx, store.MutationParams{
		UserId:   userId,
		Currency: currency,
		Amount:   amount,
		Kind:     models.KindWithdrawal,
	})
	if err != nil {
		return "", decimal.Zero, err
	}

	newRate, err := s.rates.ApplyWithdrawalPressure(ctx)
	if err != nil {
		zap.L().Error("Withdrawal debit committed but rate step failed, manual reconciliation required",
			zap.String("transaction_id", txId),
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return txId, decimal.Zero, fmt.Errorf("withdrawal %s committed but rate step failed: %w", txId, err)
	}

	zap.L().Info("Withdrawal processed",
		zap.String("transaction_id", txId),
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("new_rate", newRate.String()))
	return txId, newRate, nil
}

// ReverseWithdrawal credits back a withdrawal that failed downstream. The
// original transaction record is never mutated; the reversal is a new
// compensating transaction referencing it.
func (s *Service) ReverseWithdrawal(ctx context.Context, userId, currency string, amount decimal.Decimal, originalTxId string) (string, error) {
	zap.L().Info("Reversing failed withdrawal",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("original_tx", originalTxId))

	return s.ledger.Credit(ctx, store.MutationParams{
		UserId:    userId,
		Currency:  currency,
		Amount:    amount,
		Kind:      models.KindDeposit,
		Reference: fmt.Sprintf("reversal of withdrawal %s", originalTxId),
	})
}
