package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tron-payout-go/internal/models"

	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	err       error
	block     chan struct{}
}

func (r *recordingNotifier) TransferCompleted(_ context.Context, order models.Order, _ models.TransferResult) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, order.Id)
	return r.err
}

func (r *recordingNotifier) TransferFailed(_ context.Context, order models.Order, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, order.Id)
	return r.err
}

func TestDispatcherFansOut(t *testing.T) {
	ok := &recordingNotifier{}
	broken := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(time.Second, ok, broken, LogNotifier{})

	order := models.Order{Id: "o1", Coin: models.CoinUSDT, Amount: decimal.NewFromInt(5)}
	if err := d.TransferCompleted(context.Background(), order, models.TransferResult{TxHash: "abc"}); err != nil {
		t.Fatalf("Dispatcher must not surface delivery errors, got %v", err)
	}
	if err := d.TransferFailed(context.Background(), order, errors.New("boom")); err != nil {
		t.Fatalf("Dispatcher must not surface delivery errors, got %v", err)
	}
	d.Wait()

	for _, n := range []*recordingNotifier{ok, broken} {
		if len(n.completed) != 1 || len(n.failed) != 1 {
			t.Errorf("Expected one of each notification, got completed=%v failed=%v", n.completed, n.failed)
		}
	}
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	slow := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(time.Second, slow)

	done := make(chan struct{})
	go func() {
		_ = d.TransferCompleted(context.Background(), models.Order{Id: "o1"}, models.TransferResult{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TransferCompleted blocked on a slow notifier")
	}

	close(slow.block)
	d.Wait()
	if len(slow.completed) != 1 {
		t.Errorf("Expected delivery after unblocking, got %v", slow.completed)
	}
}
