package store

import (
	"testing"
)

// Compile-time checks that the interfaces are importable and usable.
func TestStoreInterfacesExist(t *testing.T) {
	_ = ErrWalletNotFound
	_ = ErrOrderNotFound
	_ = ErrDuplicateAddress
	_ = ErrLastEnabledWallet
	_ = ErrConcurrentModification
	_ = CreateWalletParams{}
	_ = WalletSnapshotParams{}

	var _ WalletStore
	var _ OrderStore
	var _ Store
}
