package common

import (
	"testing"
	"time"

	"tron-payout-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestFormatAmount(t *testing.T) {
	got := FormatAmount(decimal.RequireFromString("12.5"), models.CoinUSDT)
	if got != "12.500000 USDT" {
		t.Errorf("FormatAmount = %q", got)
	}
}

func TestShortAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC", "TMVQGm…K2HC"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ShortAddress(tt.in); got != tt.want {
			t.Errorf("ShortAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(nil); got != "never" {
		t.Errorf("FormatTime(nil) = %q", got)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	if got := FormatTime(&now); got != "2025-03-01 12:00:00" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestHealthIcon(t *testing.T) {
	if HealthIcon(models.HealthHealthy) == HealthIcon(models.HealthError) {
		t.Error("Healthy and error wallets must be distinguishable")
	}
}
