package store

import (
	"context"
	"errors"

	"ubt-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	// ErrPoolExhausted means no unassigned address of the requested
	// currency remains. Expected and reportable.
	ErrPoolExhausted = errors.New("address pool exhausted")

	// ErrInvalidCurrency means the currency code is not supported for the
	// attempted operation.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrInvalidAmount means the amount is not positive or not
	// representable at the ledger scale.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds means the conditional check-and-decrement found
	// less than the requested amount at commit time.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateAssignment means a second address would have been handed
	// to a user who already holds one. Unreachable while the atomic claim
	// holds; raised rather than overwritten if it ever is reached.
	ErrDuplicateAssignment = errors.New("duplicate address assignment")

	// ErrConcurrentModification means a version-checked update lost its
	// race. Consumed internally by retry loops.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrPartialTransfer means one leg of an exchange committed without
	// the other. Only possible if the store transaction guarantee was
	// bypassed; a critical integrity alarm, never a normal error path.
	ErrPartialTransfer = errors.New("partial transfer detected")

	// ErrStoreUnavailable wraps transient store failures. Callers may
	// retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionNotFound means no transaction record matches the id.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// MutationParams contains the parameters for a single-currency balance
// mutation (credit or debit). Amount is always positive; the operation
// decides the sign recorded on the transaction.
type MutationParams struct {
	UserId    string
	Currency  string
	Amount    decimal.Decimal
	Kind      string
	Reference string
}

// TransferParams contains the parameters for an atomic two-leg exchange.
type TransferParams struct {
	UserId       string
	FromCurrency string
	FromAmount   decimal.Decimal
	ToCurrency   string
	ToAmount     decimal.Decimal
	RateUsed     decimal.Decimal
}

// EconomyStore defines the contract that every backend must satisfy.
type EconomyStore interface {
	// --- Address pool ---
	ImportAddress(ctx context.Context, address, currency string) (*models.DepositAddress, error)
	AssignAddress(ctx context.Context, userId, currency string) (*models.DepositAddress, error)
	GetAssignedAddress(ctx context.Context, userId, currency string) (*models.DepositAddress, error)
	RetireAddress(ctx context.Context, address string) error
	CountUnassigned(ctx context.Context, currency string) (int, error)

	// --- Ledger ---
	Credit(ctx context.Context, params MutationParams) (string, error)
	Debit(ctx context.Context, params MutationParams) (string, error)
	Transfer(ctx context.Context, params TransferParams) (string, error)
	GetBalance(ctx context.Context, userId string) (map[string]decimal.Decimal, error)
	GetTransaction(ctx context.Context, transactionId string) (*models.Transaction, error)
	GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error)
	ReconcileBalance(ctx context.Context, userId, currency string) error

	// --- Exchange rate ---
	GetRateState(ctx context.Context) (*models.RateState, error)
	Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	ApplyWithdrawalPressure(ctx context.Context) (decimal.Decimal, error)
	ResetRate(ctx context.Context, rate decimal.Decimal) error

	// --- Lifecycle ---
	Close()
}
