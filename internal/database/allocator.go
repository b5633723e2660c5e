package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ubt-ledger-go/internal/models"
	"ubt-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocatorService owns the deposit address pool. Assignment is the only
// mutation it performs on an imported address, and it happens exactly once
// per address.
type AllocatorService struct {
	db         *sql.DB
	currencies map[string]struct{}
}

func NewAllocatorService(db *sql.DB, currencies map[string]struct{}) *AllocatorService {
	return &AllocatorService{db: db, currencies: currencies}
}

// Import inserts one unassigned address into the pool. The ingestion end of
// the external bulk feed.
func (s *AllocatorService) Import(ctx context.Context, address, currency string) (*models.DepositAddress, error) {
	if err := s.checkCurrency(currency); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	row := s.db.QueryRowContext(ctx, queryInsertAddress, uuid.New().String(), address, currency)
	addr, err := scanAddress(row)
	if err != nil {
		zap.L().Error("Failed to import address",
			zap.String("address", address),
			zap.String("currency", currency),
			zap.Error(err))
		return nil, fmt.Errorf("unable to import address %s: %w", address, err)
	}

	zap.L().Info("Address imported",
		zap.String("id", addr.Id),
		zap.String("address", addr.Address),
		zap.String("currency", addr.Currency))
	return addr, nil
}

// Assign hands one unused address of the currency to the user. Idempotent
// per (user, currency): retries return the address already held. The claim
// itself is a single conditional update, so concurrent requests can never
// both take the same row.
func (s *AllocatorService) Assign(ctx context.Context, userId, currency string) (*models.DepositAddress, error) {
	if err := s.checkCurrency(currency); err != nil {
		return nil, err
	}
	if userId == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	existing, err := s.GetAssigned(ctx, userId, currency)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		zap.L().Debug("User already holds an address",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.String("address", existing.Address))
		return existing, nil
	}

	row := s.db.QueryRowContext(ctx, queryClaimAddress, userId, currency)
	addr, err := scanAddress(row)
	if err == sql.ErrNoRows {
		zap.L().Warn("Address pool exhausted",
			zap.String("user_id", userId),
			zap.String("currency", currency))
		return nil, fmt.Errorf("assign %s for user %s: %w", currency, userId, store.ErrPoolExhausted)
	}
	if err != nil {
		// The holder index rejects a second address for the same user, so
		// a racing duplicate assign resolves to the winner's address.
		if isUniqueConstraintError(err) {
			existing, readErr := s.GetAssigned(ctx, userId, currency)
			if readErr == nil && existing != nil {
				return existing, nil
			}
			zap.L().Error("Duplicate assignment detected",
				zap.String("user_id", userId),
				zap.String("currency", currency),
				zap.Error(err))
			return nil, fmt.Errorf("assign %s for user %s: %w", currency, userId, store.ErrDuplicateAssignment)
		}
		zap.L().Error("Failed to claim address",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.Error(err))
		return nil, fmt.Errorf("assign %s for user %s: %w: %v", currency, userId, store.ErrStoreUnavailable, err)
	}

	zap.L().Info("Address assigned",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.String("address", addr.Address))
	return addr, nil
}

// GetAssigned returns the address the user holds for the currency, or nil.
func (s *AllocatorService) GetAssigned(ctx context.Context, userId, currency string) (*models.DepositAddress, error) {
	row := s.db.QueryRowContext(ctx, queryGetAssignedAddress, userId, currency)
	addr, err := scanAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query assigned address: %w", err)
	}
	return addr, nil
}

// Retire soft-deactivates an address. Retired addresses are never handed
// out, but an existing assignment stays visible to its holder.
func (s *AllocatorService) Retire(ctx context.Context, address string) error {
	result, err := s.db.ExecContext(ctx, queryRetireAddress, address)
	if err != nil {
		return fmt.Errorf("unable to retire address %s: %w", address, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no such address: %s", address)
	}
	zap.L().Info("Address retired", zap.String("address", address))
	return nil
}

// CountUnassigned reports how many addresses remain claimable for a currency.
func (s *AllocatorService) CountUnassigned(ctx context.Context, currency string) (int, error) {
	if err := s.checkCurrency(currency); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountUnassigned, currency).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count unassigned addresses: %w", err)
	}
	return count, nil
}

func (s *AllocatorService) checkCurrency(currency string) error {
	if _, ok := s.currencies[currency]; !ok {
		return fmt.Errorf("%w: %q", store.ErrInvalidCurrency, currency)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAddress(row rowScanner) (*models.DepositAddress, error) {
	var addr models.DepositAddress
	var assignedTo sql.NullString
	var assignedAt sql.NullTime
	err := row.Scan(&addr.Id, &addr.Address, &addr.Currency, &assignedTo, &assignedAt, &addr.Active, &addr.CreatedAt)
	if err != nil {
		return nil, err
	}
	addr.AssignedTo = assignedTo.String
	if assignedAt.Valid {
		t := assignedAt.Time
		addr.AssignedAt = &t
	}
	return &addr, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
