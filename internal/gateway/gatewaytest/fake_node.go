// Package gatewaytest provides an in-memory gateway.Node for tests.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/models"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
)

// SentTransfer records a transaction built and broadcast through the fake.
type SentTransfer struct {
	From     string
	To       string
	Contract string // empty for TRX
	Amount   *big.Int
	FeeLimit int64
	Signed   bool
}

// FakeNode is a scriptable gateway.Node. The zero value is not usable; call NewFakeNode.
type FakeNode struct {
	mu sync.Mutex

	Url        string
	Balances   map[string]int64
	Tokens     map[string]*big.Int
	Resources  map[string]models.ResourceSnapshot
	Missing    map[string]bool
	Broken     map[string]bool // reads for these addresses always fail with Err
	Calls      map[string]int
	Broadcasts []SentTransfer

	// FailNext makes the next n calls of the named method return Err.
	FailNext map[string]int
	Err      error
	// Delay is applied to every call.
	Delay time.Duration
	// SlowNext makes the next call of the named method sleep for the given
	// duration before answering.
	SlowNext map[string]time.Duration
	// OnBroadcast runs after a successful broadcast, under the node's lock.
	OnBroadcast func(n *FakeNode, sent SentTransfer)
	// RejectBroadcast makes every broadcast fail permanently.
	RejectBroadcast bool

	pending map[*core.Transaction]SentTransfer
	landed  map[*core.Transaction]bool
	seq     int64
	closed  bool
}

func NewFakeNode(url string) *FakeNode {
	return &FakeNode{
		Url:       url,
		Balances:  make(map[string]int64),
		Tokens:    make(map[string]*big.Int),
		Resources: make(map[string]models.ResourceSnapshot),
		Missing:   make(map[string]bool),
		Broken:    make(map[string]bool),
		Calls:     make(map[string]int),
		FailNext:  make(map[string]int),
		SlowNext:  make(map[string]time.Duration),
		Err:       errors.New("fake node failure"),
		pending:   make(map[*core.Transaction]SentTransfer),
		landed:    make(map[*core.Transaction]bool),
	}
}

// Dialer returns a gateway.Dialer that always hands out n.
func (n *FakeNode) Dialer() gateway.Dialer {
	return func(models.NodeEndpoint) (gateway.Node, error) {
		return n, nil
	}
}

// NewGateway builds an initialized gateway over n with millisecond retry delays.
func NewGateway(n *FakeNode) (*gateway.Gateway, error) {
	return NewGatewayWithTimeout(n, time.Second)
}

// NewGatewayWithTimeout is NewGateway with a custom per-attempt call timeout.
func NewGatewayWithTimeout(n *FakeNode, callTimeout time.Duration) (*gateway.Gateway, error) {
	g, err := gateway.New(models.GatewayConfig{
		Nodes:        []models.NodeEndpoint{{Name: "fake", Url: n.Url, Enabled: true}},
		CallTimeout:  callTimeout,
		ProbeTimeout: time.Second,
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
	}, n.Dialer())
	if err != nil {
		return nil, err
	}
	if err := g.Init(context.Background()); err != nil {
		return nil, err
	}
	n.ResetCalls()
	return g, nil
}

// SetEnergy sets the available energy of addr, keeping bandwidth untouched.
func (n *FakeNode) SetEnergy(addr string, remaining int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setEnergyLocked(addr, remaining)
}

func (n *FakeNode) setEnergyLocked(addr string, remaining int64) {
	r := n.Resources[addr]
	r.Energy = models.ResourceUsage{Limit: remaining, Used: 0, Remaining: remaining}
	n.Resources[addr] = r
}

// AddEnergy is meant for use inside OnBroadcast.
func (n *FakeNode) AddEnergy(addr string, delta int64) {
	n.setEnergyLocked(addr, n.Resources[addr].Energy.Remaining+delta)
}

func (n *FakeNode) CallCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Calls[method]
}

func (n *FakeNode) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.Calls {
		total += c
	}
	return total
}

func (n *FakeNode) ResetCalls() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = make(map[string]int)
}

func (n *FakeNode) Sent() []SentTransfer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentTransfer(nil), n.Broadcasts...)
}

func (n *FakeNode) enter(method string) error {
	n.mu.Lock()
	n.Calls[method]++
	delay := n.Delay
	if slow, ok := n.SlowNext[method]; ok {
		delay += slow
		delete(n.SlowNext, method)
	}
	fail := n.FailNext[method] > 0
	if fail {
		n.FailNext[method]--
	}
	err := n.Err
	n.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return err
	}
	return nil
}

func (n *FakeNode) Endpoint() string { return n.Url }

func (n *FakeNode) BlockNumber() (int64, error) {
	if err := n.enter("BlockNumber"); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *FakeNode) AccountBalance(addr string) (int64, error) {
	if err := n.enter("AccountBalance"); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Broken[addr] {
		return 0, n.Err
	}
	if n.Missing[addr] {
		return 0, gateway.Permanent(gateway.ErrAccountNotFound)
	}
	return n.Balances[addr], nil
}

func (n *FakeNode) AccountResources(addr string) (models.ResourceSnapshot, error) {
	if err := n.enter("AccountResources"); err != nil {
		return models.ResourceSnapshot{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Broken[addr] {
		return models.ResourceSnapshot{}, n.Err
	}
	if n.Missing[addr] {
		return models.ResourceSnapshot{}, gateway.Permanent(gateway.ErrAccountNotFound)
	}
	return n.Resources[addr], nil
}

func (n *FakeNode) TokenBalance(addr, contract string) (*big.Int, error) {
	if err := n.enter("TokenBalance"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Broken[addr] {
		return nil, n.Err
	}
	if b, ok := n.Tokens[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (n *FakeNode) BuildNativeTransfer(from, to string, amountSun int64) (*core.Transaction, error) {
	if err := n.enter("BuildNativeTransfer"); err != nil {
		return nil, err
	}
	return n.build(SentTransfer{From: from, To: to, Amount: big.NewInt(amountSun)}), nil
}

func (n *FakeNode) BuildTokenTransfer(from, to, contract string, amount *big.Int, feeLimitSun int64) (*core.Transaction, error) {
	if err := n.enter("BuildTokenTransfer"); err != nil {
		return nil, err
	}
	return n.build(SentTransfer{From: from, To: to, Contract: contract, Amount: new(big.Int).Set(amount), FeeLimit: feeLimitSun}), nil
}

func (n *FakeNode) build(sent SentTransfer) *core.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	tx := &core.Transaction{
		RawData: &core.TransactionRaw{
			Data:      []byte(fmt.Sprintf("%s>%s:%s:%s", sent.From, sent.To, sent.Contract, sent.Amount)),
			Timestamp: n.seq,
			FeeLimit:  sent.FeeLimit,
		},
	}
	n.pending[tx] = sent
	return tx
}

func (n *FakeNode) Broadcast(tx *core.Transaction) error {
	if err := n.enter("Broadcast"); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.RejectBroadcast {
		return gateway.Permanent(fmt.Errorf("%w: fake rejection", gateway.ErrBroadcastRejected))
	}
	if n.landed[tx] {
		// duplicate of a transaction that already landed
		return nil
	}
	sent, ok := n.pending[tx]
	if !ok {
		return gateway.Permanent(fmt.Errorf("%w: unknown transaction", gateway.ErrBroadcastRejected))
	}
	delete(n.pending, tx)
	n.landed[tx] = true
	sent.Signed = len(tx.Signature) > 0
	n.Broadcasts = append(n.Broadcasts, sent)
	if n.OnBroadcast != nil {
		n.OnBroadcast(n, sent)
	}
	return nil
}

func (n *FakeNode) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

func (n *FakeNode) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
