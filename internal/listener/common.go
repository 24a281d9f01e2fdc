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

package listener

import (
	"context"
	"sync"
	"time"

	"tron-payout-go/internal/models"

	"go.uber.org/zap"
)

// OrderSource lists orders waiting on the engine.
type OrderSource interface {
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time) ([]models.Order, error)
}

// TransferProcessor runs one payout attempt for an order.
type TransferProcessor interface {
	ProcessTransfer(ctx context.Context, orderId string) error
}

// WalletRefresher re-reads chain state for the whole pool.
type WalletRefresher interface {
	RefreshAll(ctx context.Context) ([]models.RefreshResult, error)
}

// NodeChecker is the gateway as seen by the health check.
type NodeChecker interface {
	Ping(ctx context.Context) error
	Reinitialize(ctx context.Context) error
	Current() string
}

// PayoutListenerConfig contains configuration for PayoutListener
type PayoutListenerConfig struct {
	Orders                TransferProcessor
	OrderSource           OrderSource
	Wallets               WalletRefresher
	Gateway               NodeChecker
	PollingInterval       time.Duration
	WalletRefreshInterval time.Duration
	PendingOrderGrace     time.Duration
}

// PayoutListener re-drives stalled orders, keeps wallet snapshots fresh and
// fails over the RPC node when it stops answering.
type PayoutListener struct {
	orders      TransferProcessor
	orderSource OrderSource
	wallets     WalletRefresher
	gateway     NodeChecker

	// Orders with an attempt running from this listener
	inFlight map[string]time.Time
	mutex    sync.Mutex

	pollingInterval time.Duration
	refreshInterval time.Duration
	pendingGrace    time.Duration
	now             func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	loops    sync.WaitGroup
}

// NewPayoutListener creates a new payout listener
func NewPayoutListener(cfg PayoutListenerConfig) *PayoutListener {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.PendingOrderGrace <= 0 {
		cfg.PendingOrderGrace = 2 * time.Minute
	}
	return &PayoutListener{
		orders:          cfg.Orders,
		orderSource:     cfg.OrderSource,
		wallets:         cfg.Wallets,
		gateway:         cfg.Gateway,
		inFlight:        make(map[string]time.Time),
		pollingInterval: cfg.PollingInterval,
		refreshInterval: cfg.WalletRefreshInterval,
		pendingGrace:    cfg.PendingOrderGrace,
		now:             time.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// tryBegin marks an order as in flight and reports false if it already was
func (l *PayoutListener) tryBegin(orderId string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.inFlight[orderId]; exists {
		return false
	}
	l.inFlight[orderId] = l.now()
	return true
}

func (l *PayoutListener) finish(orderId string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	delete(l.inFlight, orderId)
}

// InFlight returns the number of orders currently being processed by the listener
func (l *PayoutListener) InFlight() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return len(l.inFlight)
}

// checkGateway pings the current node and fails over when it is unreachable
func (l *PayoutListener) checkGateway(ctx context.Context) bool {
	if l.gateway == nil {
		return true
	}
	err := l.gateway.Ping(ctx)
	if err == nil {
		return true
	}
	zap.L().Warn("RPC endpoint unhealthy, reinitializing",
		zap.String("endpoint", l.gateway.Current()),
		zap.Error(err))

	if err := l.gateway.Reinitialize(ctx); err != nil {
		zap.L().Error("No RPC endpoint available", zap.Error(err))
		return false
	}
	zap.L().Info("Switched RPC endpoint", zap.String("endpoint", l.gateway.Current()))
	return true
}
