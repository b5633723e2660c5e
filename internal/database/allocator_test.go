package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ubt-ledger-go/internal/store"
)

func importAddresses(t *testing.T, service *Service, currency string, addresses ...string) {
	t.Helper()
	for _, address := range addresses {
		if _, err := service.ImportAddress(context.Background(), address, currency); err != nil {
			t.Fatalf("ImportAddress %s failed: %v", address, err)
		}
	}
}

func TestAssign_DeterministicOrderAndExhaustion(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	importAddresses(t, service, "BTC", "addr-1", "addr-2")

	first, err := service.AssignAddress(ctx, "user1", "BTC")
	if err != nil {
		t.Fatalf("AssignAddress failed: %v", err)
	}
	if first.Address != "addr-1" {
		t.Errorf("Expected addr-1 (insertion order), got %s", first.Address)
	}

	// Idempotent: same user gets the same address back.
	again, err := service.AssignAddress(ctx, "user1", "BTC")
	if err != nil {
		t.Fatalf("Repeated AssignAddress failed: %v", err)
	}
	if again.Address != first.Address {
		t.Errorf("Expected identical address %s, got %s", first.Address, again.Address)
	}

	second, err := service.AssignAddress(ctx, "user2", "BTC")
	if err != nil {
		t.Fatalf("AssignAddress for user2 failed: %v", err)
	}
	if second.Address != "addr-2" {
		t.Errorf("Expected addr-2, got %s", second.Address)
	}

	_, err = service.AssignAddress(ctx, "user3", "BTC")
	if !errors.Is(err, store.ErrPoolExhausted) {
		t.Fatalf("Expected pool exhausted, got: %v", err)
	}
}

func TestAssign_InvalidCurrency(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	_, err := service.AssignAddress(context.Background(), "user1", "DOGE")
	if !errors.Is(err, store.ErrInvalidCurrency) {
		t.Fatalf("Expected invalid currency, got: %v", err)
	}
}

func TestAssign_ConcurrentSingleAddress(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	importAddresses(t, service, "BTC", "addr-only")

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, userId := range []string{"user1", "user2"} {
		wg.Add(1)
		go func(i int, userId string) {
			defer wg.Done()
			_, results[i] = service.AssignAddress(ctx, userId, "BTC")
		}(i, userId)
	}
	wg.Wait()

	var won, exhausted int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, store.ErrPoolExhausted):
			exhausted++
		default:
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if won != 1 || exhausted != 1 {
		t.Fatalf("Expected exactly one winner and one exhausted, got %d/%d", won, exhausted)
	}
}

func TestAssign_CurrenciesIndependent(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	importAddresses(t, service, "BTC", "btc-addr")
	importAddresses(t, service, "ETH", "eth-addr")

	btc, err := service.AssignAddress(ctx, "user1", "BTC")
	if err != nil {
		t.Fatalf("AssignAddress BTC failed: %v", err)
	}
	eth, err := service.AssignAddress(ctx, "user1", "ETH")
	if err != nil {
		t.Fatalf("AssignAddress ETH failed: %v", err)
	}
	if btc.Address != "btc-addr" || eth.Address != "eth-addr" {
		t.Errorf("Addresses crossed currencies: %s / %s", btc.Address, eth.Address)
	}
}

func TestAssign_SkipsRetiredAddresses(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	importAddresses(t, service, "BTC", "retired", "live")

	if err := service.RetireAddress(ctx, "retired"); err != nil {
		t.Fatalf("RetireAddress failed: %v", err)
	}

	addr, err := service.AssignAddress(ctx, "user1", "BTC")
	if err != nil {
		t.Fatalf("AssignAddress failed: %v", err)
	}
	if addr.Address != "live" {
		t.Errorf("Retired address handed out: %s", addr.Address)
	}

	count, err := service.CountUnassigned(ctx, "BTC")
	if err != nil {
		t.Fatalf("CountUnassigned failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 unassigned, got %d", count)
	}
}

func TestImportAddress_DuplicateRejected(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	importAddresses(t, service, "BTC", "addr-1")

	if _, err := service.ImportAddress(ctx, "addr-1", "BTC"); err == nil {
		t.Fatal("Expected duplicate import to fail")
	}
}
