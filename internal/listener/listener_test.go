package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"

	"github.com/shopspring/decimal"
)

type stubSource struct {
	mu      sync.Mutex
	orders  map[models.OrderStatus][]models.Order
	cutoffs map[models.OrderStatus]time.Time
	err     error
}

func (s *stubSource) ListOrdersByStatus(_ context.Context, status models.OrderStatus, updatedBefore time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cutoffs == nil {
		s.cutoffs = make(map[models.OrderStatus]time.Time)
	}
	s.cutoffs[status] = updatedBefore
	if s.err != nil {
		return nil, s.err
	}
	return s.orders[status], nil
}

type stubProcessor struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (p *stubProcessor) ProcessTransfer(_ context.Context, orderId string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, orderId)
	return p.errs[orderId]
}

func (p *stubProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type stubGateway struct {
	pingErr   error
	reinitErr error
	reinits   int
	current   string
}

func (g *stubGateway) Ping(context.Context) error { return g.pingErr }

func (g *stubGateway) Reinitialize(context.Context) error {
	g.reinits++
	if g.reinitErr == nil {
		g.current = "backup"
		g.pingErr = nil
	}
	return g.reinitErr
}

func (g *stubGateway) Current() string { return g.current }

type stubRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *stubRefresher) RefreshAll(context.Context) ([]models.RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return []models.RefreshResult{{WalletId: "w1"}, {WalletId: "w2", Error: "rpc unavailable"}}, nil
}

func pendingOrder(id string) models.Order {
	return models.Order{
		Id:             id,
		Coin:           models.CoinUSDT,
		Amount:         decimal.NewFromInt(10),
		Destination:    "TDvSsdrNM5eeXNL3czpa6AxLDHZA9nwe9K",
		TransferStatus: models.OrderPending,
	}
}

func TestPollOrdersRedrivesStalledOrders(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	source := &stubSource{orders: map[models.OrderStatus][]models.Order{
		models.OrderPending: {pendingOrder("a"), pendingOrder("b"), pendingOrder("c")},
	}}
	processor := &stubProcessor{errs: map[string]error{
		"b": selector.ErrNoEligibleWallet,
		"c": errors.New("broadcast rejected"),
	}}

	l := NewPayoutListener(PayoutListenerConfig{
		Orders:            processor,
		OrderSource:       source,
		PendingOrderGrace: 2 * time.Minute,
	})
	l.now = func() time.Time { return now }

	l.pollOrders(context.Background())

	if processor.count() != 3 {
		t.Errorf("Expected 3 orders processed, got %v", processor.calls)
	}
	if want := now.Add(-2 * time.Minute); !source.cutoffs[models.OrderPending].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, source.cutoffs[models.OrderPending])
	}
	if l.InFlight() != 0 {
		t.Errorf("Expected no orders in flight after poll, got %d", l.InFlight())
	}
}

func TestPollOrdersSkipsInFlight(t *testing.T) {
	source := &stubSource{orders: map[models.OrderStatus][]models.Order{
		models.OrderPending: {pendingOrder("a"), pendingOrder("b")},
	}}
	processor := &stubProcessor{}
	l := NewPayoutListener(PayoutListenerConfig{Orders: processor, OrderSource: source})

	if !l.tryBegin("a") {
		t.Fatal("Expected first tryBegin to succeed")
	}
	if l.tryBegin("a") {
		t.Fatal("Expected second tryBegin to fail")
	}

	l.pollOrders(context.Background())

	if len(processor.calls) != 1 || processor.calls[0] != "b" {
		t.Errorf("Expected only b processed, got %v", processor.calls)
	}
}

func TestCheckGatewayFailsOver(t *testing.T) {
	gw := &stubGateway{pingErr: errors.New("timeout"), current: "primary"}
	l := NewPayoutListener(PayoutListenerConfig{Gateway: gw})

	if !l.checkGateway(context.Background()) {
		t.Fatal("Expected failover to succeed")
	}
	if gw.reinits != 1 || gw.current != "backup" {
		t.Errorf("Expected one reinitialize onto backup, got %d onto %s", gw.reinits, gw.current)
	}

	if !l.checkGateway(context.Background()) || gw.reinits != 1 {
		t.Errorf("Healthy node must not be reinitialized, reinits=%d", gw.reinits)
	}
}

func TestPollSkipsOrdersWithoutNode(t *testing.T) {
	gw := &stubGateway{pingErr: errors.New("timeout"), reinitErr: errors.New("all endpoints down")}
	source := &stubSource{orders: map[models.OrderStatus][]models.Order{
		models.OrderPending: {pendingOrder("a")},
	}}
	processor := &stubProcessor{}
	l := NewPayoutListener(PayoutListenerConfig{Orders: processor, OrderSource: source, Gateway: gw})

	l.poll(context.Background())

	if processor.count() != 0 {
		t.Errorf("Expected no processing without a node, got %v", processor.calls)
	}
}

func TestStartupRecoveryFailureStopsStart(t *testing.T) {
	source := &stubSource{err: errors.New("database locked")}
	l := NewPayoutListener(PayoutListenerConfig{Orders: &stubProcessor{}, OrderSource: source})

	if err := l.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail when recovery cannot read orders")
	}
}

func TestStartAndStop(t *testing.T) {
	interrupted := pendingOrder("stuck")
	interrupted.TransferStatus = models.OrderProcessing
	source := &stubSource{orders: map[models.OrderStatus][]models.Order{
		models.OrderPending:    {pendingOrder("a")},
		models.OrderProcessing: {interrupted},
	}}
	processor := &stubProcessor{}
	refresher := &stubRefresher{}

	l := NewPayoutListener(PayoutListenerConfig{
		Orders:                processor,
		OrderSource:           source,
		Wallets:               refresher,
		PollingInterval:       time.Hour,
		WalletRefreshInterval: 10 * time.Millisecond,
	})

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		refresher.mu.Lock()
		calls := refresher.calls
		refresher.mu.Unlock()
		if calls > 0 && processor.count() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	l.Stop()

	if processor.count() != 1 {
		t.Errorf("Expected the initial poll to process one order, got %v", processor.calls)
	}
	for _, id := range processor.calls {
		if id == "stuck" {
			t.Error("Interrupted orders must not be retried automatically")
		}
	}
	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	if refresher.calls == 0 {
		t.Error("Expected the refresh loop to run")
	}
}
