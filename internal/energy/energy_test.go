package energy_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tron-payout-go/internal/energy"
	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/gateway/gatewaytest"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/resources"

	"github.com/shopspring/decimal"
)

const (
	walletKey     = "0000000000000000000000000000000000000000000000000000000000000001"
	walletAddress = "TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC"
	rentalAddress = "TDvSsdrNM5eeXNL3czpa6AxLDHZA9nwe9K"
	usdtContract  = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

type fixture struct {
	node    *gatewaytest.FakeNode
	gw      *gateway.Gateway
	monitor *resources.Monitor
	key     *ecdsa.PrivateKey
	wallet  *models.Wallet
	cfg     models.EnergyConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := gatewaytest.NewFakeNode("grpc://fake")
	gw, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	key, err := keyvault.ParseKey([]byte(walletKey))
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	return &fixture{
		node:    node,
		gw:      gw,
		monitor: resources.NewMonitor(gw, usdtContract, time.Hour),
		key:     key,
		wallet:  &models.Wallet{Id: "w1", Name: "hot-1", Address: walletAddress},
		cfg: models.EnergyConfig{
			Mode:          models.EnergyModeTransfer,
			WarmRequired:  65_000,
			ColdRequired:  131_000,
			RentalAddress: rentalAddress,
			RentalAmount:  decimal.NewFromInt(8),
		},
	}
}

func (f *fixture) transferProvisioner(t *testing.T) *energy.Provisioner {
	t.Helper()
	strategy, err := energy.NewTransferStrategy(f.gw, f.monitor, f.cfg)
	if err != nil {
		t.Fatalf("NewTransferStrategy failed: %v", err)
	}
	return energy.NewProvisioner(f.monitor, strategy, f.cfg)
}

func TestEnsureResourceFastPath(t *testing.T) {
	f := newFixture(t)
	p := f.transferProvisioner(t)
	f.node.SetEnergy(walletAddress, 70_000)
	f.node.ResetCalls()

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, false)
	if err != nil {
		t.Fatalf("EnsureResource failed: %v", err)
	}
	if !result.Success || result.EnergyGained != 0 || result.EnergyBefore != 70_000 {
		t.Errorf("Unexpected fast path result: %+v", result)
	}
	if got := f.node.TotalCalls(); got != 1 {
		t.Errorf("Expected exactly one RPC call, got %d", got)
	}
	if len(f.node.Sent()) != 0 {
		t.Error("Fast path must not broadcast anything")
	}
}

func TestEnsureResourceColdDestinationNeedsMore(t *testing.T) {
	f := newFixture(t)
	p := f.transferProvisioner(t)
	f.node.SetEnergy(walletAddress, 70_000)
	f.node.OnBroadcast = func(n *gatewaytest.FakeNode, sent gatewaytest.SentTransfer) {
		if sent.To == rentalAddress {
			n.AddEnergy(sent.From, 65_000)
		}
	}

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, true)
	if err != nil {
		t.Fatalf("EnsureResource failed: %v", err)
	}
	if result.Required != 131_000 {
		t.Errorf("Expected cold requirement 131000, got %d", result.Required)
	}
	if !result.Success || result.EnergyAfter != 135_000 || result.EnergyGained != 65_000 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestTransferStrategyPaysRentalAddress(t *testing.T) {
	f := newFixture(t)
	p := f.transferProvisioner(t)
	f.node.OnBroadcast = func(n *gatewaytest.FakeNode, sent gatewaytest.SentTransfer) {
		n.AddEnergy(sent.From, 65_000)
	}

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, false)
	if err != nil {
		t.Fatalf("EnsureResource failed: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected success, got %+v", result)
	}
	if !result.CostTRX.Equal(decimal.NewFromInt(8)) {
		t.Errorf("Expected cost 8 TRX, got %s", result.CostTRX)
	}
	if result.ProviderOrderId == "" {
		t.Error("Expected the rental payment tx hash to be recorded")
	}

	sent := f.node.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected one broadcast, got %d", len(sent))
	}
	if sent[0].From != walletAddress || sent[0].To != rentalAddress || sent[0].Contract != "" {
		t.Errorf("Unexpected rental payment: %+v", sent[0])
	}
	if sent[0].Amount.Int64() != 8_000_000 {
		t.Errorf("Expected 8000000 sun, got %s", sent[0].Amount)
	}
	if !sent[0].Signed {
		t.Error("Rental payment was not signed")
	}
}

func TestTransferStrategyShortfallIsNotAnError(t *testing.T) {
	f := newFixture(t)
	p := f.transferProvisioner(t)
	f.node.SetEnergy(walletAddress, 10_000)

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, false)
	if err != nil {
		t.Fatalf("Expected shortfall to be reported in the result, got error %v", err)
	}
	if result.Success {
		t.Error("Expected Success=false when no energy arrived")
	}
	if result.EnergyAfter != 10_000 || result.Reason == "" {
		t.Errorf("Unexpected shortfall result: %+v", result)
	}
}

func TestTransferStrategyBroadcastRejected(t *testing.T) {
	f := newFixture(t)
	p := f.transferProvisioner(t)
	f.node.RejectBroadcast = true

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, false)
	if !errors.Is(err, energy.ErrEnergyProvisionFailed) {
		t.Fatalf("Expected ErrEnergyProvisionFailed, got %v", err)
	}
	if result == nil || result.Success {
		t.Errorf("Expected a failed result, got %+v", result)
	}
}

func TestNewTransferStrategyValidatesConfig(t *testing.T) {
	f := newFixture(t)

	cfg := f.cfg
	cfg.RentalAddress = "not-an-address"
	if _, err := energy.NewTransferStrategy(nil, f.monitor, cfg); err == nil {
		t.Error("Expected invalid rental address to be rejected")
	}

	cfg = f.cfg
	cfg.RentalAmount = decimal.Zero
	if _, err := energy.NewTransferStrategy(nil, f.monitor, cfg); err == nil {
		t.Error("Expected zero rental amount to be rejected")
	}
}

func TestMarketStrategy(t *testing.T) {
	f := newFixture(t)
	f.node.SetEnergy(walletAddress, 20_000)

	var gotBody, gotKey, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		f.node.SetEnergy(walletAddress, 151_000)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"order_id":"ord-42","status":"filled","cost_trx":"9.75"}`)
	}))
	defer server.Close()

	cfg := f.cfg
	cfg.Mode = models.EnergyModeMarket
	cfg.MarketUrl = server.URL
	cfg.MarketApiKey = "secret-key"
	cfg.MarketSmallTier = 65_000
	cfg.MarketLargeTier = 131_000

	client, err := energy.NewMarketClient(cfg.MarketUrl, cfg.MarketApiKey)
	if err != nil {
		t.Fatalf("NewMarketClient failed: %v", err)
	}
	p := energy.NewProvisioner(f.monitor, energy.NewMarketStrategy(client, f.monitor, cfg), cfg)

	result, err := p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, true)
	if err != nil {
		t.Fatalf("EnsureResource failed: %v", err)
	}
	if gotPath != "/v1/orders" || gotKey != "secret-key" {
		t.Errorf("Unexpected request path %q key %q", gotPath, gotKey)
	}
	if !strings.Contains(gotBody, `"receiver":"`+walletAddress+`"`) || !strings.Contains(gotBody, `"amount":131000`) {
		t.Errorf("Unexpected request body %s", gotBody)
	}
	if !result.Success || result.ProviderOrderId != "ord-42" || result.PurchasedEnergy != 131_000 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if !result.CostTRX.Equal(decimal.RequireFromString("9.75")) {
		t.Errorf("Expected cost 9.75, got %s", result.CostTRX)
	}
	if result.EnergyGained != 131_000 {
		t.Errorf("Expected 131000 energy gained, got %d", result.EnergyGained)
	}
}

func TestMarketStrategyHttpError(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"message":"insufficient credit"}`)
	}))
	defer server.Close()

	client, err := energy.NewMarketClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewMarketClient failed: %v", err)
	}
	p := energy.NewProvisioner(f.monitor, energy.NewMarketStrategy(client, f.monitor, f.cfg), f.cfg)

	_, err = p.EnsureResource(context.Background(), f.wallet, f.key, rentalAddress, false)
	if !errors.Is(err, energy.ErrEnergyProvisionFailed) {
		t.Fatalf("Expected ErrEnergyProvisionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient credit") {
		t.Errorf("Expected market message in error, got %v", err)
	}
}

func TestMarketTier(t *testing.T) {
	s := energy.NewMarketStrategy(nil, nil, models.EnergyConfig{MarketSmallTier: 65_000, MarketLargeTier: 131_000})
	tests := []struct {
		deficit int64
		want    int64
	}{
		{1, 65_000},
		{65_000, 65_000},
		{65_001, 131_000},
		{131_000, 131_000},
	}
	for _, tt := range tests {
		if got := s.Tier(tt.deficit); got != tt.want {
			t.Errorf("Tier(%d) = %d, want %d", tt.deficit, got, tt.want)
		}
	}
}

func TestNewStrategy(t *testing.T) {
	f := newFixture(t)

	s, err := energy.NewStrategy(nil, f.monitor, models.EnergyConfig{Mode: models.EnergyModeNone})
	if err != nil || s != nil {
		t.Errorf("Expected nil strategy for none mode, got %v, %v", s, err)
	}
	if _, err := energy.NewStrategy(nil, f.monitor, models.EnergyConfig{Mode: "barter"}); err == nil {
		t.Error("Expected unknown mode to be rejected")
	}
	if _, err := energy.NewStrategy(nil, f.monitor, models.EnergyConfig{Mode: models.EnergyModeMarket}); err == nil {
		t.Error("Expected market mode without url to be rejected")
	}
}
