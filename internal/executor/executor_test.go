package executor_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"tron-payout-go/internal/energy"
	"tron-payout-go/internal/executor"
	"tron-payout-go/internal/gateway/gatewaytest"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/resources"

	"github.com/shopspring/decimal"
)

const (
	masterSecret  = "correct horse battery staple"
	walletKey     = "0000000000000000000000000000000000000000000000000000000000000001"
	walletAddress = "TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC"
	destination   = "TDvSsdrNM5eeXNL3czpa6AxLDHZA9nwe9K"
	usdtContract  = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

type recordedOutcome struct {
	walletId string
	outcome  models.TransferOutcome
}

type stubRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (r *stubRecorder) RecordTransferOutcome(_ context.Context, walletId string, outcome models.TransferOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, recordedOutcome{walletId, outcome})
	return nil
}

func (r *stubRecorder) last(t *testing.T) models.TransferOutcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) != 1 {
		t.Fatalf("Expected exactly one recorded outcome, got %d", len(r.outcomes))
	}
	return r.outcomes[0].outcome
}

type stubEnergy struct {
	enabled bool
	calls   int
	first   bool
	err     error
}

func (s *stubEnergy) Enabled() bool { return s.enabled }

func (s *stubEnergy) EnsureResource(_ context.Context, _ *models.Wallet, _ *ecdsa.PrivateKey, _ string, firstTransfer bool) (*models.EnergyRentalResult, error) {
	s.calls++
	s.first = firstTransfer
	if s.err != nil {
		return &models.EnergyRentalResult{Mode: models.EnergyModeTransfer, Reason: s.err.Error()}, s.err
	}
	return &models.EnergyRentalResult{Mode: models.EnergyModeTransfer, Success: true, EnergyGained: 65_000}, nil
}

type fixture struct {
	node     *gatewaytest.FakeNode
	recorder *stubRecorder
	energy   *stubEnergy
	vault    *keyvault.Vault
	exec     *executor.Executor
	wallet   *models.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := gatewaytest.NewFakeNode("grpc://fake")
	gw, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	vault, err := keyvault.NewVault(masterSecret)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	sealed, err := vault.Seal(walletKey)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	node.Balances[walletAddress] = 200_000_000
	node.Tokens[walletAddress] = big.NewInt(500_000_000)

	f := &fixture{
		node:     node,
		recorder: &stubRecorder{},
		energy:   &stubEnergy{enabled: true},
		vault:    vault,
		wallet: &models.Wallet{
			Id:           "w1",
			Name:         "hot-1",
			Address:      walletAddress,
			EncryptedKey: sealed,
			Enabled:      true,
			Health:       models.HealthHealthy,
		},
	}
	monitor := resources.NewMonitor(gw, usdtContract, time.Hour)
	f.exec = executor.New(vault, gw, monitor, f.energy, f.recorder, models.TransferConfig{
		FeeLimit: decimal.NewFromInt(30),
	})
	return f
}

func tokenRequest(amount string) models.TransferRequest {
	return models.TransferRequest{
		Asset:       models.TokenTransfer{Amount: decimal.RequireFromString(amount), Contract: usdtContract},
		Destination: destination,
		FeeReserve:  decimal.NewFromInt(15),
	}
}

func TestExecuteTokenTransfer(t *testing.T) {
	f := newFixture(t)

	result, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("100"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.TxHash == "" || len(result.TxHash) != 64 {
		t.Errorf("Expected a 64 char tx hash, got %q", result.TxHash)
	}
	if result.From != walletAddress || result.To != destination || result.WalletId != "w1" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.Energy == nil || !result.Energy.Success {
		t.Errorf("Expected energy result to be attached, got %+v", result.Energy)
	}
	if f.energy.calls != 1 || !f.energy.first {
		t.Errorf("Expected one cold energy provisioning call, got calls=%d first=%v", f.energy.calls, f.energy.first)
	}

	sent := f.node.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected one broadcast, got %d", len(sent))
	}
	if sent[0].Contract != usdtContract || sent[0].Amount.Int64() != 100_000_000 {
		t.Errorf("Unexpected token transfer: %+v", sent[0])
	}
	if sent[0].FeeLimit != 30_000_000 || !sent[0].Signed {
		t.Errorf("Expected signed transfer with 30 TRX fee limit, got %+v", sent[0])
	}

	outcome := f.recorder.last(t)
	if !outcome.Success || outcome.Coin != models.CoinUSDT || !outcome.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Unexpected outcome: %+v", outcome)
	}
}

func TestExecuteWarmDestination(t *testing.T) {
	f := newFixture(t)
	f.node.Tokens[destination] = big.NewInt(1)

	if _, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("1")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.energy.first {
		t.Error("Expected warm requirement for an existing holder")
	}
}

func TestExecuteNativeTransfer(t *testing.T) {
	f := newFixture(t)
	req := models.TransferRequest{
		Asset:       models.NativeTransfer{Amount: decimal.RequireFromString("50.5")},
		Destination: destination,
		FeeReserve:  decimal.NewFromInt(15),
	}

	if _, err := f.exec.Execute(context.Background(), f.wallet, req); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sent := f.node.Sent()
	if len(sent) != 1 || sent[0].Contract != "" || sent[0].Amount.Int64() != 50_500_000 {
		t.Fatalf("Unexpected native transfer: %+v", sent)
	}
	if f.energy.calls != 0 {
		t.Error("Native transfers must not provision energy")
	}
	if outcome := f.recorder.last(t); !outcome.Success || outcome.Coin != models.CoinTRX {
		t.Errorf("Unexpected outcome: %+v", outcome)
	}
}

func TestExecuteEnergyFailureDoesNotBlockTransfer(t *testing.T) {
	f := newFixture(t)
	f.energy.err = energy.ErrEnergyProvisionFailed

	result, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("100"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Energy == nil || result.Energy.Success {
		t.Errorf("Expected failed energy result, got %+v", result.Energy)
	}
	if len(f.node.Sent()) != 1 {
		t.Error("Expected transfer to be broadcast despite energy failure")
	}
}

func TestExecuteEnergyDisabled(t *testing.T) {
	f := newFixture(t)
	f.energy.enabled = false

	if _, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("100")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.energy.calls != 0 {
		t.Error("Expected no provisioning when energy mode is none")
	}
}

func TestExecuteRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, req *models.TransferRequest)
		wantErr error
	}{
		{
			name:    "invalid destination",
			mutate:  func(_ *fixture, req *models.TransferRequest) { req.Destination = "TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HD" },
			wantErr: executor.ErrInvalidAddress,
		},
		{
			name:    "not enough token",
			mutate:  func(_ *fixture, req *models.TransferRequest) { *req = tokenRequest("500.000001") },
			wantErr: executor.ErrInsufficientBalance,
		},
		{
			name:    "not enough TRX for fees",
			mutate:  func(f *fixture, _ *models.TransferRequest) { f.node.Balances[walletAddress] = 14_999_999 },
			wantErr: executor.ErrInsufficientBalance,
		},
		{
			name: "native amount plus fee",
			mutate: func(_ *fixture, req *models.TransferRequest) {
				req.Asset = models.NativeTransfer{Amount: decimal.RequireFromString("185.000001")}
			},
			wantErr: executor.ErrInsufficientBalance,
		},
		{
			name: "wrong master secret",
			mutate: func(f *fixture, _ *models.TransferRequest) {
				other, _ := keyvault.NewVault("another secret")
				sealed, _ := other.Seal(walletKey)
				f.wallet.EncryptedKey = sealed
			},
			wantErr: keyvault.ErrDecryptionFailed,
		},
		{
			name:    "key does not match address",
			mutate:  func(f *fixture, _ *models.TransferRequest) { f.wallet.Address = destination },
			wantErr: executor.ErrKeyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := tokenRequest("100")
			tt.mutate(f, &req)

			_, err := f.exec.Execute(context.Background(), f.wallet, req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if len(f.node.Sent()) != 0 {
				t.Error("Nothing should be broadcast on rejection")
			}
			if outcome := f.recorder.last(t); outcome.Success {
				t.Error("Expected a failed outcome to be recorded")
			}
		})
	}
}

func TestExecuteRebroadcastsSameTransaction(t *testing.T) {
	f := newFixture(t)
	f.node.FailNext["Broadcast"] = 1

	if _, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("100")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := f.node.CallCount("BuildTokenTransfer"); got != 1 {
		t.Errorf("Expected transaction to be built once, got %d", got)
	}
	if got := f.node.CallCount("Broadcast"); got != 2 {
		t.Errorf("Expected two broadcast attempts, got %d", got)
	}
	if len(f.node.Sent()) != 1 {
		t.Errorf("Expected exactly one accepted broadcast, got %d", len(f.node.Sent()))
	}
}

func TestExecuteBroadcastRejected(t *testing.T) {
	f := newFixture(t)
	f.node.RejectBroadcast = true

	if _, err := f.exec.Execute(context.Background(), f.wallet, tokenRequest("100")); err == nil {
		t.Fatal("Expected rejected broadcast to fail the transfer")
	}
	if f.node.CallCount("Broadcast") != 1 {
		t.Error("Rejected broadcasts must not be retried")
	}
	if outcome := f.recorder.last(t); outcome.Success {
		t.Error("Expected a failed outcome")
	}
}
