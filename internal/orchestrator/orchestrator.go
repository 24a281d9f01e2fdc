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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tron-payout-go/internal/executor"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/metrics"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/notify"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletSelector picks the wallet that funds an order.
type WalletSelector interface {
	SelectBest(ctx context.Context, criteria models.SelectionCriteria) (*models.Wallet, error)
}

// TransferExecutor submits one transfer.
type TransferExecutor interface {
	Execute(ctx context.Context, wallet *models.Wallet, req models.TransferRequest) (*models.TransferResult, error)
}

// WalletRefresher re-reads a wallet's chain state after it was used.
type WalletRefresher interface {
	Refresh(ctx context.Context, walletId string) (*models.RefreshResult, error)
}

type Orchestrator struct {
	orders        store.OrderStore
	selector      WalletSelector
	executor      TransferExecutor
	refresher     WalletRefresher
	notifier      notify.Notifier
	scheduler     Scheduler
	tokenContract string
	feeReserve    decimal.Decimal
	maxRetries    int
	baseDelay     time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type Options struct {
	Refresher     WalletRefresher
	Notifier      notify.Notifier
	Scheduler     Scheduler
	TokenContract string
}

func New(orders store.OrderStore, selector WalletSelector, exec TransferExecutor, cfg *models.Config, opts Options) *Orchestrator {
	maxRetries := cfg.Orders.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.Orders.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	tokenContract := opts.TokenContract
	if tokenContract == "" {
		tokenContract = cfg.Gateway.TokenContract
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		orders:        orders,
		selector:      selector,
		executor:      exec,
		refresher:     opts.Refresher,
		notifier:      opts.Notifier,
		scheduler:     opts.Scheduler,
		tokenContract: tokenContract,
		feeReserve:    cfg.Transfer.FeeReserve,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// ProcessTransfer pays out one order. Calling it again for a completed or
// in-flight order is a no-op. The returned error describes this attempt only;
// retries are scheduled internally.
func (o *Orchestrator) ProcessTransfer(ctx context.Context, orderId string) error {
	order, err := o.orders.FindOrder(ctx, orderId)
	if err != nil {
		return err
	}

	switch order.TransferStatus {
	case models.OrderCompleted, models.OrderProcessing:
		zap.L().Debug("Order already handled, skipping",
			zap.String("order_id", order.Id),
			zap.String("status", string(order.TransferStatus)))
		return nil
	}

	req, err := o.transferRequest(order)
	if err != nil {
		return err
	}

	wallet, err := o.selector.SelectBest(ctx, models.SelectionCriteria{
		Amount:      order.Amount,
		Coin:        order.Coin,
		FeeReserve:  o.feeReserve,
		Destination: order.Destination,
	})
	if err != nil {
		return err
	}

	claimed, err := o.orders.ClaimOrder(ctx, order.Id)
	if err != nil {
		return err
	}
	if !claimed {
		zap.L().Debug("Order claimed by another worker", zap.String("order_id", order.Id))
		return nil
	}
	metrics.OrderTransition(string(models.OrderProcessing))

	// Claiming a failed order resets its attempt counter.
	if order, err = o.orders.FindOrder(ctx, order.Id); err != nil {
		return err
	}

	attempt := order.TransferAttempts
	execCtx := models.WithTransferContext(ctx, &models.TransferContext{OrderId: order.Id, Attempt: attempt})

	zap.L().Info("Processing payout",
		zap.String("order_id", order.Id),
		zap.String("coin", string(order.Coin)),
		zap.String("amount", order.Amount.String()),
		zap.String("wallet_id", wallet.Id),
		zap.Int("attempt", attempt+1))

	result, execErr := o.executor.Execute(execCtx, wallet, req)

	order.TransferAttempts = attempt + 1
	order.WalletId = wallet.Id
	order.WalletName = wallet.Name

	if execErr == nil {
		return o.complete(ctx, order, result)
	}
	return o.fail(ctx, order, attempt, execErr)
}

func (o *Orchestrator) complete(ctx context.Context, order *models.Order, result *models.TransferResult) error {
	now := time.Now().UTC()
	if !result.SubmittedAt.IsZero() {
		now = result.SubmittedAt.UTC()
	}
	order.TransferStatus = models.OrderCompleted
	order.TxHash = result.TxHash
	order.TransferTime = &now
	order.LastError = ""

	// The transfer is on chain now; the status write must not be cancelled.
	if err := o.orders.SaveOrder(context.WithoutCancel(ctx), order); err != nil {
		zap.L().Error("Transfer submitted but order update failed",
			zap.String("order_id", order.Id),
			zap.String("tx_hash", result.TxHash),
			zap.Error(err))
		return fmt.Errorf("transfer %s submitted but order not updated: %w", result.TxHash, err)
	}
	metrics.OrderTransition(string(models.OrderCompleted))

	zap.L().Info("Payout completed",
		zap.String("order_id", order.Id),
		zap.String("wallet_id", order.WalletId),
		zap.String("tx_hash", order.TxHash))

	o.refreshAsync(order.WalletId)
	_ = o.notifier.TransferCompleted(ctx, *order, *result)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, order *models.Order, attempt int, cause error) error {
	order.LastError = cause.Error()
	retry := retryable(cause) && attempt < o.maxRetries
	if retry {
		order.TransferStatus = models.OrderPending
	} else {
		order.TransferStatus = models.OrderFailed
	}

	if err := o.orders.SaveOrder(context.WithoutCancel(ctx), order); err != nil {
		zap.L().Error("Failed to record failed attempt",
			zap.String("order_id", order.Id),
			zap.Error(err))
		return errors.Join(cause, err)
	}
	metrics.OrderTransition(string(order.TransferStatus))

	if errors.Is(cause, executor.ErrInsufficientBalance) {
		// Let the next selection see the balance the executor just observed.
		o.refreshAsync(order.WalletId)
	}

	if retry {
		delay := o.baseDelay * time.Duration(attempt+1)
		zap.L().Warn("Payout attempt failed, retry scheduled",
			zap.String("order_id", order.Id),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(cause))
		orderId := order.Id
		o.scheduler.Schedule(delay, func() { o.retry(orderId) })
		return cause
	}

	zap.L().Error("Payout failed",
		zap.String("order_id", order.Id),
		zap.Int("attempts", order.TransferAttempts),
		zap.Bool("retryable", retryable(cause)),
		zap.Error(cause))
	_ = o.notifier.TransferFailed(ctx, *order, cause)
	return cause
}

func (o *Orchestrator) retry(orderId string) {
	if !o.track() {
		return
	}
	defer o.wg.Done()
	if err := o.ProcessTransfer(o.ctx, orderId); err != nil {
		zap.L().Warn("Scheduled payout retry did not complete",
			zap.String("order_id", orderId),
			zap.Error(err))
	}
}

func (o *Orchestrator) refreshAsync(walletId string) {
	if o.refresher == nil || walletId == "" || !o.track() {
		return
	}
	go func() {
		defer o.wg.Done()
		if _, err := o.refresher.Refresh(o.ctx, walletId); err != nil {
			zap.L().Warn("Post-transfer wallet refresh failed",
				zap.String("wallet_id", walletId),
				zap.Error(err))
		}
	}()
}

func (o *Orchestrator) transferRequest(order *models.Order) (models.TransferRequest, error) {
	req := models.TransferRequest{Destination: order.Destination, FeeReserve: o.feeReserve}
	switch order.Coin {
	case models.CoinTRX:
		req.Asset = models.NativeTransfer{Amount: order.Amount}
	case models.CoinUSDT:
		req.Asset = models.TokenTransfer{Amount: order.Amount, Contract: o.tokenContract}
	default:
		return req, fmt.Errorf("order %s has unsupported coin %q", order.Id, order.Coin)
	}
	return req, nil
}

// track registers background work unless the orchestrator is stopping.
func (o *Orchestrator) track() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return false
	}
	o.wg.Add(1)
	return true
}

// Stop cancels pending retries and waits for in-flight background work.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	o.scheduler.Stop()
	o.cancel()
	o.wg.Wait()
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, executor.ErrInvalidAddress),
		errors.Is(err, executor.ErrKeyMismatch),
		errors.Is(err, keyvault.ErrDecryptionFailed):
		return false
	}
	return true
}
