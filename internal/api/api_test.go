package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tron-payout-go/internal/database"
	"tron-payout-go/internal/executor"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
)

const destination = "TDvSsdrNM5eeXNL3czpa6AxLDHZA9nwe9K"

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubRanker struct {
	criteria []models.SelectionCriteria
}

func (r *stubRanker) SelectBest(_ context.Context, c models.SelectionCriteria) (*models.Wallet, error) {
	r.criteria = append(r.criteria, c)
	return &models.Wallet{Id: "w1"}, nil
}

func (r *stubRanker) Rank(_ context.Context, c models.SelectionCriteria) ([]models.WalletScore, error) {
	r.criteria = append(r.criteria, c)
	return []models.WalletScore{{Wallet: &models.Wallet{Id: "w1"}, Total: 90}}, nil
}

type stubProcessor struct {
	orders []string
	err    error
}

func (p *stubProcessor) ProcessTransfer(_ context.Context, orderId string) error {
	p.orders = append(p.orders, orderId)
	return p.err
}

func setupService(t *testing.T, gwErr error) (*PayoutService, *stubRanker, *stubProcessor) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(db.Close)

	ranker := &stubRanker{}
	processor := &stubProcessor{}
	return NewPayoutService(db, stubPinger{err: gwErr}, ranker, processor), ranker, processor
}

func TestHealthCheck(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy service, got %v", err)
	}

	svc, _, _ = setupService(t, errors.New("no node"))
	if err := svc.HealthCheck(context.Background()); err == nil {
		t.Error("Expected gateway failure to surface")
	}
}

func TestSubmitOrder(t *testing.T) {
	svc, _, processor := setupService(t, nil)
	processor.err = selector.ErrNoEligibleWallet

	order, err := svc.SubmitOrder(context.Background(), store.CreateOrderParams{
		Coin:        models.CoinUSDT,
		Amount:      decimal.RequireFromString("12.345678"),
		Destination: destination,
	})
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Id == "" || order.TransferStatus != models.OrderPending {
		t.Errorf("Expected a pending order, got %+v", order)
	}
	if len(processor.orders) != 1 || processor.orders[0] != order.Id {
		t.Errorf("Expected the new order to be processed, got %v", processor.orders)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	svc, _, processor := setupService(t, nil)

	tests := []struct {
		name   string
		params store.CreateOrderParams
	}{
		{"unknown coin", store.CreateOrderParams{Coin: "BTC", Amount: decimal.NewFromInt(1), Destination: destination}},
		{"zero amount", store.CreateOrderParams{Coin: models.CoinUSDT, Amount: decimal.Zero, Destination: destination}},
		{"too precise", store.CreateOrderParams{Coin: models.CoinTRX, Amount: decimal.RequireFromString("0.0000001"), Destination: destination}},
		{"bad address", store.CreateOrderParams{Coin: models.CoinTRX, Amount: decimal.NewFromInt(1), Destination: "0xabc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SubmitOrder(context.Background(), tt.params); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
	if len(processor.orders) != 0 {
		t.Errorf("Invalid orders must not be processed, got %v", processor.orders)
	}

	_, err := svc.SubmitOrder(context.Background(), store.CreateOrderParams{Coin: models.CoinTRX, Amount: decimal.NewFromInt(1), Destination: "T123"})
	if !errors.Is(err, executor.ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

func TestSubmitOrderAcceptsTrailingZeros(t *testing.T) {
	svc, _, processor := setupService(t, nil)
	processor.err = selector.ErrNoEligibleWallet

	order, err := svc.SubmitOrder(context.Background(), store.CreateOrderParams{
		Coin:        models.CoinTRX,
		Amount:      decimal.RequireFromString("1.500000000"),
		Destination: destination,
	})
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if !order.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected amount 1.5, got %s", order.Amount)
	}

	_, err = svc.SubmitOrder(context.Background(), store.CreateOrderParams{
		Coin:        models.CoinTRX,
		Amount:      decimal.RequireFromString("1.0000001000"),
		Destination: destination,
	})
	if err == nil {
		t.Error("Expected a seventh significant decimal to be rejected")
	}
}

func TestSelectBestWalletValidatesCriteria(t *testing.T) {
	svc, ranker, _ := setupService(t, nil)
	ctx := context.Background()

	if _, err := svc.SelectBestWallet(ctx, models.SelectionCriteria{Coin: models.CoinUSDT}); err == nil {
		t.Error("Expected zero amount to be rejected")
	}
	w, err := svc.SelectBestWallet(ctx, models.SelectionCriteria{Coin: models.CoinUSDT, Amount: decimal.NewFromInt(5), FeeReserve: decimal.NewFromInt(15)})
	if err != nil || w.Id != "w1" {
		t.Fatalf("SelectBestWallet = %v, %v", w, err)
	}
	if len(ranker.criteria) != 1 {
		t.Errorf("Expected one selector call, got %d", len(ranker.criteria))
	}

	ranked, err := svc.RankWallets(ctx, models.SelectionCriteria{Coin: models.CoinTRX, Amount: decimal.NewFromInt(1)})
	if err != nil || len(ranked) != 1 {
		t.Errorf("RankWallets = %v, %v", ranked, err)
	}
}

func TestProcessTransferRequiresId(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	if err := svc.ProcessTransfer(context.Background(), ""); err == nil {
		t.Error("Expected empty order id to be rejected")
	}
}
