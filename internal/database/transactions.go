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

// GetTransaction returns one transaction record with its full status history.
func (s *LedgerService) GetTransaction(ctx context.Context, transactionId string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, queryGetTransaction, transactionId)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", transactionId, store.ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query transaction %s: %w", transactionId, err)
	}

	history, err := s.getStatusHistory(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	tx.StatusHistory = history
	return tx, nil
}

// GetTransactionHistory returns the user's transactions, newest first.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("unable to query transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// ReconcileBalance verifies that the hot balance row matches the completed
// transaction log. A mismatch is a critical integrity failure.
func (s *LedgerService) ReconcileBalance(ctx context.Context, userId, currency string) error {
	zap.L().Info("Reconciling balance",
		zap.String("user_id", userId),
		zap.String("currency", currency))

	balances, err := s.GetBalance(ctx, userId)
	if err != nil {
		return err
	}
	current := balances[currency]

	var calculatedUnits int64
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, userId, currency).Scan(&calculatedUnits)
	if err != nil {
		return fmt.Errorf("unable to replay transaction log: %w", err)
	}
	calculated := money.FromUnits(calculatedUnits)

	if !current.Equal(calculated) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.String("current_balance", current.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", current.Sub(calculated).String()))
		return fmt.Errorf("balance mismatch for user %s %s: current=%s, calculated=%s: %w",
			userId, currency, current.String(), calculated.String(), store.ErrPartialTransfer)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.String("balance", current.String()))
	return nil
}

func (s *LedgerService) getStatusHistory(ctx context.Context, transactionId string) ([]models.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, queryGetStatusHistory, transactionId)
	if err != nil {
		return nil, fmt.Errorf("unable to query status history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var history []models.StatusChange
	for rows.Next() {
		var change models.StatusChange
		var note sql.NullString
		if err := rows.Scan(&change.Status, &note, &change.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan status row: %w", err)
		}
		change.Note = note.String
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status rows: %w", err)
	}
	return history, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var amountUnits int64
	var targetCurrency, rateUsed, reference sql.NullString
	var targetUnits sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(&tx.Id, &tx.UserId, &tx.Kind, &tx.Currency, &amountUnits,
		&targetCurrency, &targetUnits, &rateUsed, &reference,
		&tx.Status, &tx.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	tx.Amount = money.FromUnits(amountUnits)
	tx.TargetCurrency = targetCurrency.String
	if targetUnits.Valid {
		tx.TargetAmount = money.FromUnits(targetUnits.Int64)
	}
	if rateUsed.Valid {
		tx.RateUsed, err = decimal.NewFromString(rateUsed.String)
		if err != nil {
			return nil, fmt.Errorf("unable to parse rate %q: %w", rateUsed.String, err)
		}
	}
	tx.Reference = reference.String
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	return &tx, nil
}
