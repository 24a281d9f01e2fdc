package gateway

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
)

func TestSignTransaction(t *testing.T) {
	key, err := crypto.HexToECDSA("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("HexToECDSA failed: %v", err)
	}

	tx := &core.Transaction{RawData: &core.TransactionRaw{Data: []byte("payout"), Timestamp: 42}}
	txId, err := SignTransaction(tx, key)
	if err != nil {
		t.Fatalf("SignTransaction failed: %v", err)
	}
	if len(txId) != 64 {
		t.Errorf("Expected 64 char tx id, got %d", len(txId))
	}
	if len(tx.Signature) != 1 || len(tx.Signature[0]) != 65 {
		t.Fatalf("Expected one 65 byte signature, got %v", tx.Signature)
	}

	again, err := TransactionId(tx)
	if err != nil {
		t.Fatalf("TransactionId failed: %v", err)
	}
	if again != txId {
		t.Errorf("Expected tx id %s to be stable, got %s", txId, again)
	}

	signer, err := SignerAddress(tx)
	if err != nil {
		t.Fatalf("SignerAddress failed: %v", err)
	}
	if signer != "TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC" {
		t.Errorf("Expected signer TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC, got %s", signer)
	}

	if _, err := SignTransaction(&core.Transaction{}, key); err == nil {
		t.Error("Expected error signing transaction without raw data")
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC", true},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", true},
		{"TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HD", false}, // checksum
		{"AMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC", false},
		{"TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2H", false},
		{"0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateAddress(%q) error = %v, want valid=%v", tt.addr, err, tt.valid)
		}
	}
}
