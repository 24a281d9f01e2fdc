/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notify

import (
	"context"
	"sync"
	"time"

	"tron-payout-go/internal/models"

	"go.uber.org/zap"
)

// Notifier is told about orders reaching a terminal state.
type Notifier interface {
	TransferCompleted(ctx context.Context, order models.Order, result models.TransferResult) error
	TransferFailed(ctx context.Context, order models.Order, cause error) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) TransferCompleted(_ context.Context, order models.Order, result models.TransferResult) error {
	zap.L().Info("Payout completed",
		zap.String("order_id", order.Id),
		zap.String("coin", string(order.Coin)),
		zap.String("amount", order.Amount.String()),
		zap.String("destination", order.Destination),
		zap.String("wallet", result.WalletName),
		zap.String("tx_hash", result.TxHash))
	return nil
}

func (LogNotifier) TransferFailed(_ context.Context, order models.Order, cause error) error {
	zap.L().Error("Payout failed permanently",
		zap.String("order_id", order.Id),
		zap.String("coin", string(order.Coin)),
		zap.String("amount", order.Amount.String()),
		zap.String("destination", order.Destination),
		zap.Int("attempts", order.TransferAttempts),
		zap.Error(cause))
	return nil
}

// Dispatcher fans notifications out to every notifier in the background.
// Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout}
}

func (d *Dispatcher) TransferCompleted(_ context.Context, order models.Order, result models.TransferResult) error {
	d.dispatch("completed", order.Id, func(ctx context.Context, n Notifier) error {
		return n.TransferCompleted(ctx, order, result)
	})
	return nil
}

func (d *Dispatcher) TransferFailed(_ context.Context, order models.Order, cause error) error {
	d.dispatch("failed", order.Id, func(ctx context.Context, n Notifier) error {
		return n.TransferFailed(ctx, order, cause)
	})
	return nil
}

func (d *Dispatcher) dispatch(event, orderId string, send func(ctx context.Context, n Notifier) error) {
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := send(ctx, n); err != nil {
				zap.L().Warn("Notification delivery failed",
					zap.String("event", event),
					zap.String("order_id", orderId),
					zap.Error(err))
			}
		}(n)
	}
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
