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
	"errors"
	"fmt"
	"sync"
	"time"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"

	"go.uber.org/zap"
)

// Start begins the background loops
func (l *PayoutListener) Start(ctx context.Context) error {
	zap.L().Info("Starting payout listener")

	if l.orders == nil || l.orderSource == nil {
		return fmt.Errorf("listener requires an order processor and an order source")
	}

	if err := l.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go l.pollLoop(ctx)
	if l.wallets != nil && l.refreshInterval > 0 {
		l.loops.Add(1)
		go l.refreshLoop(ctx)
	}

	zap.L().Info("Payout listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("wallet_refresh_interval", l.refreshInterval),
		zap.Duration("pending_order_grace", l.pendingGrace))

	return nil
}

// Stop gracefully stops the payout listener
func (l *PayoutListener) Stop() {
	zap.L().Info("Stopping payout listener")
	close(l.stopChan)
	<-l.doneChan
	l.loops.Wait()
	zap.L().Info("Payout listener stopped")
}

// pollLoop runs the main polling loop
func (l *PayoutListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	l.poll(ctx)

	for {
		select {
		case <-ticker.C:
			l.poll(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refreshLoop periodically re-reads every wallet's balances and resources
func (l *PayoutListener) refreshLoop(ctx context.Context) {
	defer l.loops.Done()

	ticker := time.NewTicker(l.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.refreshWallets(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// poll checks node health, then re-drives stalled orders
func (l *PayoutListener) poll(ctx context.Context) {
	if !l.checkGateway(ctx) {
		fmt.Printf("\n%s[%s] No RPC endpoint available, skipping poll%s\n",
			colorRed, l.now().Format("15:04:05"), colorReset)
		return
	}
	l.pollOrders(ctx)
}

// pollOrders re-triggers orders left pending longer than the grace period.
// Their retry timers were lost to a restart or the first attempt found no
// eligible wallet.
func (l *PayoutListener) pollOrders(ctx context.Context) {
	cutoff := l.now().Add(-l.pendingGrace)
	orders, err := l.orderSource.ListOrdersByStatus(ctx, models.OrderPending, cutoff)
	if err != nil {
		zap.L().Error("Failed to list pending orders", zap.Error(err))
		return
	}
	if len(orders) == 0 {
		zap.L().Debug("No stalled orders")
		return
	}

	fmt.Printf("\n%s[%s] Re-driving %d pending orders%s\n",
		colorCyan, l.now().Format("15:04:05"), len(orders), colorReset)

	var wg sync.WaitGroup
	for _, order := range orders {
		if !l.tryBegin(order.Id) {
			continue
		}
		wg.Add(1)

		go func(o models.Order) {
			defer wg.Done()
			defer l.finish(o.Id)

			l.processOrder(ctx, o)
		}(order)
	}

	wg.Wait()
}

func (l *PayoutListener) processOrder(ctx context.Context, order models.Order) {
	err := l.orders.ProcessTransfer(ctx, order.Id)
	switch {
	case err == nil:
		fmt.Printf("  %s✓ %s %s %s -> %s%s\n",
			colorGreen, order.Id, order.Amount, order.Coin, order.Destination, colorReset)
	case errors.Is(err, selector.ErrNoEligibleWallet):
		fmt.Printf("  %s~ %s %s %s | no eligible wallet%s\n",
			colorYellow, order.Id, order.Amount, order.Coin, colorReset)
		zap.L().Warn("Pending order still has no eligible wallet",
			zap.String("order_id", order.Id),
			zap.String("coin", string(order.Coin)),
			zap.String("amount", order.Amount.String()))
	default:
		fmt.Printf("  %s✗ %s %s %s | %s%s\n",
			colorRed, order.Id, order.Amount, order.Coin, err, colorReset)
		zap.L().Error("Failed to process pending order",
			zap.String("order_id", order.Id),
			zap.Error(err))
	}
}

// refreshWallets refreshes the whole pool, logging wallets that could not be read
func (l *PayoutListener) refreshWallets(ctx context.Context) {
	results, err := l.wallets.RefreshAll(ctx)
	if err != nil {
		zap.L().Error("Wallet refresh failed", zap.Error(err))
		return
	}

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
			zap.L().Warn("Wallet refresh error",
				zap.String("wallet_id", r.WalletId),
				zap.String("address", r.Address),
				zap.String("error", r.Error))
		}
	}
	zap.L().Info("Wallet pool refreshed",
		zap.Int("wallets", len(results)),
		zap.Int("failed", failed))
}

// performStartupRecovery reports orders that were mid-transfer when the
// process last stopped. They may already be on chain, so they are left for
// an operator to reconcile rather than retried.
func (l *PayoutListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	stuck, err := l.orderSource.ListOrdersByStatus(ctx, models.OrderProcessing, l.now())
	if err != nil {
		return fmt.Errorf("failed to list processing orders: %w", err)
	}

	for _, order := range stuck {
		zap.L().Warn("Order interrupted mid-transfer, needs operator review",
			zap.String("order_id", order.Id),
			zap.String("coin", string(order.Coin)),
			zap.String("amount", order.Amount.String()),
			zap.String("destination", order.Destination),
			zap.String("wallet_id", order.WalletId),
			zap.Int("attempts", order.TransferAttempts),
			zap.Time("updated_at", order.UpdatedAt))
	}

	zap.L().Info("Startup recovery completed",
		zap.Int("interrupted_orders", len(stuck)))
	return nil
}
