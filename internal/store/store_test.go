package store

import (
	"testing"
)

// Compile-time checks that the interface is importable and usable.
func TestEconomyStoreInterfaceExists(t *testing.T) {
	// This test simply validates that the EconomyStore interface compiles
	// and the sentinel errors are accessible.
	_ = ErrPoolExhausted
	_ = ErrInvalidCurrency
	_ = ErrInsufficientFunds
	_ = ErrDuplicateAssignment
	_ = ErrPartialTransfer
	_ = MutationParams{}
	_ = TransferParams{}

	// Ensure the interface is non-nil type.
	var _ EconomyStore
}
