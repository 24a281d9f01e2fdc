package gateway_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/gateway/gatewaytest"
	"tron-payout-go/internal/models"
)

func testConfig(nodes ...models.NodeEndpoint) models.GatewayConfig {
	return models.GatewayConfig{
		Nodes:        nodes,
		CallTimeout:  200 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
	}
}

func dialerFor(nodes map[string]*gatewaytest.FakeNode) gateway.Dialer {
	return func(ep models.NodeEndpoint) (gateway.Node, error) {
		n, ok := nodes[ep.Url]
		if !ok {
			return nil, errors.New("connection refused")
		}
		return n, nil
	}
}

func TestInit_SelectsFirstRespondingEndpointByPriority(t *testing.T) {
	primary := gatewaytest.NewFakeNode("grpc://primary")
	primary.FailNext["BlockNumber"] = 1
	backup := gatewaytest.NewFakeNode("grpc://backup")
	tertiary := gatewaytest.NewFakeNode("grpc://tertiary")

	g, err := gateway.New(testConfig(
		models.NodeEndpoint{Name: "tertiary", Url: "grpc://tertiary", Priority: 3, Enabled: true},
		models.NodeEndpoint{Name: "disabled", Url: "grpc://disabled", Priority: 0, Enabled: false},
		models.NodeEndpoint{Name: "primary", Url: "grpc://primary", Priority: 1, Enabled: true},
		models.NodeEndpoint{Name: "backup", Url: "grpc://backup", Priority: 2, Enabled: true},
	), dialerFor(map[string]*gatewaytest.FakeNode{
		"grpc://primary": primary, "grpc://backup": backup, "grpc://tertiary": tertiary,
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if g.Current() != "grpc://backup" {
		t.Errorf("Expected backup endpoint, got %s", g.Current())
	}
	if !primary.Closed() {
		t.Error("Expected failed probe node to be closed")
	}
	if tertiary.CallCount("BlockNumber") != 0 {
		t.Error("Expected lower priority endpoint not to be probed")
	}

	// once primary recovers, re-initialization moves back to it
	if err := g.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize failed: %v", err)
	}
	if g.Current() != "grpc://primary" {
		t.Errorf("Expected primary endpoint after reinit, got %s", g.Current())
	}
	if !backup.Closed() {
		t.Error("Expected replaced node to be closed")
	}
}

func TestInit_NoEndpointAnswers(t *testing.T) {
	g, err := gateway.New(testConfig(
		models.NodeEndpoint{Name: "a", Url: "grpc://a", Enabled: true},
	), dialerFor(nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := g.Init(context.Background()); !errors.Is(err, gateway.ErrRPCUnavailable) {
		t.Fatalf("Expected ErrRPCUnavailable, got %v", err)
	}
	if err := g.Ping(context.Background()); !errors.Is(err, gateway.ErrRPCUnavailable) {
		t.Fatalf("Expected ErrRPCUnavailable from uninitialized gateway, got %v", err)
	}
}

func TestNew_RequiresEnabledEndpoint(t *testing.T) {
	_, err := gateway.New(testConfig(models.NodeEndpoint{Url: "grpc://a", Enabled: false}), nil)
	if err == nil {
		t.Fatal("Expected error with no enabled endpoints")
	}
}

func TestCall_RetriesTransientFailures(t *testing.T) {
	node := gatewaytest.NewFakeNode("grpc://a")
	g, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	node.FailNext["BlockNumber"] = 2
	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if got := node.CallCount("BlockNumber"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestCall_GivesUpAfterMaxAttempts(t *testing.T) {
	node := gatewaytest.NewFakeNode("grpc://a")
	g, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	node.FailNext["BlockNumber"] = 10
	err = g.Ping(context.Background())
	if !errors.Is(err, gateway.ErrRPCUnavailable) {
		t.Fatalf("Expected ErrRPCUnavailable, got %v", err)
	}
	if !errors.Is(err, node.Err) {
		t.Errorf("Expected the last underlying error to be wrapped, got %v", err)
	}
	if got := node.CallCount("BlockNumber"); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}
}

func TestCall_TimesOut(t *testing.T) {
	node := gatewaytest.NewFakeNode("grpc://a")
	g, err := gateway.New(testConfig(models.NodeEndpoint{Url: "grpc://a", Enabled: true}), node.Dialer())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var attempts atomic.Int32
	start := time.Now()
	err = g.Call(context.Background(), "stall", func(ctx context.Context, n gateway.Node) error {
		attempts.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, gateway.ErrRPCTimeout) {
		t.Fatalf("Expected ErrRPCTimeout, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if elapsed := time.Since(start); elapsed < 600*time.Millisecond {
		t.Errorf("Expected each attempt to wait for the call timeout, took %v", elapsed)
	}
}

func TestCall_PermanentErrorNotRetried(t *testing.T) {
	node := gatewaytest.NewFakeNode("grpc://a")
	node.Missing["TNew"] = true
	g, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	err = g.Call(context.Background(), "balance", func(_ context.Context, n gateway.Node) error {
		_, err := n.AccountBalance("TNew")
		return err
	})
	if !errors.Is(err, gateway.ErrAccountNotFound) {
		t.Fatalf("Expected ErrAccountNotFound, got %v", err)
	}
	if got := node.CallCount("AccountBalance"); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	node := gatewaytest.NewFakeNode("grpc://a")
	g, err := gatewaytest.NewGateway(node)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
