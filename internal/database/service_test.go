package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"ubt-ledger-go/internal/models"
	"ubt-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	// File-backed database so concurrent connections share the store like
	// they do in production.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000",
		filepath.Join(t.TempDir(), "economy.db"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	poolCurrencies := map[string]struct{}{"BTC": {}, "ETH": {}, "USDT": {}}
	ledgerCurrencies := map[string]struct{}{"BTC": {}, "ETH": {}, "USDT": {}, "UBT": {}}

	service := &Service{
		db:        db,
		allocator: NewAllocatorService(db, poolCurrencies),
		ledger:    NewLedgerService(db, ledgerCurrencies),
		rates: NewRateService(db,
			decimal.RequireFromString("0.001"),
			decimal.RequireFromString("1.1")),
	}

	if err := service.initSchema(decimal.RequireFromString("0.03")); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func mustCredit(t *testing.T, service *Service, userId, currency, amount string) string {
	t.Helper()
	txId, err := service.Credit(context.Background(), store.MutationParams{
		UserId:   userId,
		Currency: currency,
		Amount:   decimal.RequireFromString(amount),
		Kind:     models.KindDeposit,
	})
	if err != nil {
		t.Fatalf("Credit %s %s failed: %v", amount, currency, err)
	}
	return txId
}

func TestProcessWithdrawal(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	mustCredit(t, service, "user1", "USDT", "10")

	txId, newRate, err := service.ProcessWithdrawal(ctx, "user1", "USDT", decimal.RequireFromString("4"))
	if err != nil {
		t.Fatalf("ProcessWithdrawal failed: %v", err)
	}
	if txId == "" {
		t.Fatal("Expected a transaction id")
	}

	expectedRate := decimal.RequireFromString("0.03003")
	if !newRate.Equal(expectedRate) {
		t.Errorf("Expected new rate %s, got %s", expectedRate.String(), newRate.String())
	}

	balances, err := service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balances["USDT"].Equal(decimal.RequireFromString("6")) {
		t.Errorf("Expected USDT balance 6, got %s", balances["USDT"].String())
	}

	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	if state.WithdrawalCount != 1 {
		t.Errorf("Expected withdrawal count 1, got %d", state.WithdrawalCount)
	}
}

func TestProcessWithdrawal_FailedDebitLeavesRate(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	_, _, err := service.ProcessWithdrawal(ctx, "user1", "USDT", decimal.RequireFromString("4"))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got: %v", err)
	}

	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	if state.WithdrawalCount != 0 {
		t.Errorf("Rate moved on a failed debit: count %d", state.WithdrawalCount)
	}
	if !state.CurrentRate.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("Rate moved on a failed debit: %s", state.CurrentRate.String())
	}
}

func TestProcessExchange(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	mustCredit(t, service, "user1", "UBT", "100")

	// Sell rate 0.03: 50 UBT -> 1.5 USDT.
	txId, err := service.ProcessExchange(ctx, "user1", TokenCurrency, StableCurrency, decimal.RequireFromString("50"))
	if err != nil {
		t.Fatalf("ProcessExchange failed: %v", err)
	}

	balances, err := service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balances["UBT"].Equal(decimal.RequireFromString("50")) {
		t.Errorf("Expected UBT balance 50, got %s", balances["UBT"].String())
	}
	if !balances["USDT"].Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected USDT balance 1.5, got %s", balances["USDT"].String())
	}

	tx, err := service.GetTransaction(ctx, txId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Kind != models.KindExchange {
		t.Errorf("Expected kind exchange, got %s", tx.Kind)
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("Expected status completed, got %s", tx.Status)
	}
	if !tx.RateUsed.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("Expected rate used 0.03, got %s", tx.RateUsed.String())
	}
}

func TestReverseWithdrawal(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	mustCredit(t, service, "user1", "BTC", "2")

	originalTxId, _, err := service.ProcessWithdrawal(ctx, "user1", "BTC", decimal.RequireFromString("0.5"))
	if err != nil {
		t.Fatalf("ProcessWithdrawal failed: %v", err)
	}

	reversalTxId, err := service.ReverseWithdrawal(ctx, "user1", "BTC", decimal.RequireFromString("0.5"), originalTxId)
	if err != nil {
		t.Fatalf("ReverseWithdrawal failed: %v", err)
	}
	if reversalTxId == originalTxId {
		t.Fatal("Reversal must be a new transaction")
	}

	balances, err := service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balances["BTC"].Equal(decimal.RequireFromString("2")) {
		t.Errorf("Expected BTC balance 2 after reversal, got %s", balances["BTC"].String())
	}

	// The original record is untouched.
	original, err := service.GetTransaction(ctx, originalTxId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if original.Status != models.StatusCompleted {
		t.Errorf("Original withdrawal mutated: status %s", original.Status)
	}
}
