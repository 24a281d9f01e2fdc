package formance

import (
	"testing"

	"tron-payout-go/internal/models"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		coin models.Coin
		want string
	}{
		{models.CoinUSDT, "USDT/6"},
		{models.CoinTRX, "TRX/6"},
		{"UNKNOWN", "UNKNOWN/6"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.coin); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.coin, got, tt.want)
		}
	}
}

func TestAccountPaths(t *testing.T) {
	if got := walletAccount("3f2a-11"); got != "wallets:3f2a_11" {
		t.Errorf("walletAccount = %q", got)
	}
	if got := orderAccount("order:7 b"); got != "payouts:order_7_b" {
		t.Errorf("orderAccount = %q", got)
	}
}

func TestNewServiceRequiresConfig(t *testing.T) {
	if _, err := NewService(t.Context(), models.FormanceConfig{StackURL: "http://localhost"}); err == nil {
		t.Error("expected missing credentials to be rejected")
	}
}
