package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds.
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindExchange   = "exchange"
	KindBonus      = "bonus"
)

// Transaction statuses. pending is the only non-terminal state.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DepositAddress represents one blockchain address from the import pool.
// An address is assigned to at most one user, exactly once.
type DepositAddress struct {
	Id         string     `db:"id"`
	Address    string     `db:"address"`
	Currency   string     `db:"currency"`
	AssignedTo string     `db:"assigned_to"`
	AssignedAt *time.Time `db:"assigned_at"`
	Active     bool       `db:"active"`
	CreatedAt  time.Time  `db:"created_at"`
}

// AccountBalance represents current balance state (hot data).
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Currency          string          `db:"currency"`
	Amount            decimal.Decimal `db:"amount"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents the immutable audit record of one ledger mutation
// (cold data). Amount is signed: debits are negative. Exchange transactions
// carry both legs on a single record.
type Transaction struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	Kind           string          `db:"kind"`
	Currency       string          `db:"currency"`
	Amount         decimal.Decimal `db:"amount"`
	TargetCurrency string          `db:"target_currency"`
	TargetAmount   decimal.Decimal `db:"target_amount"`
	RateUsed       decimal.Decimal `db:"rate_used"`
	Reference      string          `db:"reference"`
	Status         string          `db:"status"`
	StatusHistory  []StatusChange
	CreatedAt      time.Time  `db:"created_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// StatusChange is one entry of a transaction's append-only status history.
type StatusChange struct {
	Status    string    `db:"status"`
	Note      string    `db:"note"`
	CreatedAt time.Time `db:"created_at"`
}

// RateState is the single global exchange-rate record. BuyRate is derived
// from CurrentRate on read and never stored independently.
type RateState struct {
	CurrentRate     decimal.Decimal `db:"current_rate"`
	BuyRate         decimal.Decimal
	WithdrawalCount int64     `db:"withdrawal_count"`
	Version         int64     `db:"version"`
	UpdatedAt       time.Time `db:"updated_at"`
}
