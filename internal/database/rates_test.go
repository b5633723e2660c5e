package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ubt-ledger-go/internal/money"
	"ubt-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestQuote_SellAndBuy(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	// Sell: 100 UBT at 0.03 -> 3 USDT.
	sold, err := service.Quote(ctx, decimal.RequireFromString("100"), TokenCurrency, StableCurrency)
	if err != nil {
		t.Fatalf("Quote sell failed: %v", err)
	}
	if !sold.Equal(decimal.RequireFromString("3")) {
		t.Errorf("Expected 3 USDT, got %s", sold.String())
	}

	// Buy: 3.3 USDT at buy rate 0.033 (0.03 x 1.1) -> 100 UBT.
	bought, err := service.Quote(ctx, decimal.RequireFromString("3.3"), StableCurrency, TokenCurrency)
	if err != nil {
		t.Fatalf("Quote buy failed: %v", err)
	}
	if !bought.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected 100 UBT, got %s", bought.String())
	}

	_, err = service.Quote(ctx, decimal.RequireFromString("1"), "BTC", "ETH")
	if !errors.Is(err, store.ErrInvalidCurrency) {
		t.Errorf("Expected invalid currency for unsupported pair, got: %v", err)
	}
}

// Selling UBT and buying it back loses exactly the configured spread: with
// buy factor 1.1 the round trip recovers x/1.1, within one base unit.
func TestQuote_RoundTripSpread(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	x := decimal.RequireFromString("123.45678901")

	usdt, err := service.Quote(ctx, x, TokenCurrency, StableCurrency)
	if err != nil {
		t.Fatalf("Quote sell failed: %v", err)
	}
	back, err := service.Quote(ctx, usdt, StableCurrency, TokenCurrency)
	if err != nil {
		t.Fatalf("Quote buy failed: %v", err)
	}

	expected := x.DivRound(decimal.RequireFromString("1.1"), money.Scale)
	oneUnit := decimal.New(1, -money.Scale)
	if back.Sub(expected).Abs().GreaterThan(oneUnit) {
		t.Errorf("Round trip off by more than one unit: got %s, expected %s", back.String(), expected.String())
	}
	if back.GreaterThanOrEqual(x) {
		t.Errorf("Round trip must lose the spread: %s >= %s", back.String(), x.String())
	}
}

func TestApplyWithdrawalPressure_Compounds(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	const steps = 5

	var last decimal.Decimal
	for i := 0; i < steps; i++ {
		rate, err := service.ApplyWithdrawalPressure(ctx)
		if err != nil {
			t.Fatalf("ApplyWithdrawalPressure %d failed: %v", i, err)
		}
		if i > 0 && rate.LessThan(last) {
			t.Fatalf("Rate decreased: %s -> %s", last.String(), rate.String())
		}
		last = rate
	}

	// r0 x (1 + step)^N, allowing one base unit of rounding per step.
	expected := decimal.RequireFromString("0.03")
	factor := decimal.RequireFromString("1.001")
	for i := 0; i < steps; i++ {
		expected = expected.Mul(factor)
	}
	tolerance := decimal.New(steps, -money.Scale)
	if last.Sub(expected).Abs().GreaterThan(tolerance) {
		t.Errorf("Expected rate ~%s, got %s", expected.Round(money.Scale).String(), last.String())
	}

	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	if state.WithdrawalCount != steps {
		t.Errorf("Expected withdrawal count %d, got %d", steps, state.WithdrawalCount)
	}
}

// Concurrent withdrawals must not lose increments: the version-checked
// update retries until its step lands.
func TestApplyWithdrawalPressure_ConcurrentStepsAllLand(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	const workers = 4

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.ApplyWithdrawalPressure(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Worker %d failed: %v", i, err)
		}
	}

	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	if state.WithdrawalCount != workers {
		t.Errorf("Lost increments: expected count %d, got %d", workers, state.WithdrawalCount)
	}
}

func TestResetRate(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ApplyWithdrawalPressure(ctx); err != nil {
		t.Fatalf("ApplyWithdrawalPressure failed: %v", err)
	}

	if err := service.ResetRate(ctx, decimal.RequireFromString("0.02")); err != nil {
		t.Fatalf("ResetRate failed: %v", err)
	}

	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	if !state.CurrentRate.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("Expected rate 0.02 after reset, got %s", state.CurrentRate.String())
	}
	// The withdrawal counter survives a reset.
	if state.WithdrawalCount != 1 {
		t.Errorf("Expected withdrawal count 1, got %d", state.WithdrawalCount)
	}

	if err := service.ResetRate(ctx, decimal.Zero); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected invalid amount for zero reset, got: %v", err)
	}
}

func TestBuyRateDerived(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	state, err := service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	expected := money.Round(state.CurrentRate.Mul(decimal.RequireFromString("1.1")))
	if !state.BuyRate.Equal(expected) {
		t.Errorf("Expected buy rate %s, got %s", expected.String(), state.BuyRate.String())
	}

	// Derivation holds after the sell rate moves.
	if _, err := service.ApplyWithdrawalPressure(ctx); err != nil {
		t.Fatalf("ApplyWithdrawalPressure failed: %v", err)
	}
	state, err = service.GetRateState(ctx)
	if err != nil {
		t.Fatalf("GetRateState failed: %v", err)
	}
	expected = money.Round(state.CurrentRate.Mul(decimal.RequireFromString("1.1")))
	if !state.BuyRate.Equal(expected) {
		t.Errorf("Expected buy rate %s, got %s", expected.String(), state.BuyRate.String())
	}
}
