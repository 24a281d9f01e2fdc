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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type transferRequest struct {
	orderId     string
	coin        models.Coin
	amount      decimal.Decimal
	destination string
	wait        time.Duration
	dryRun      bool
}

func parseAndValidateFlags() (*transferRequest, error) {
	orderFlag := flag.String("order", "", "Existing order id to process (or the id to give a new order)")
	coinFlag := flag.String("coin", "", "Coin to pay out: TRX or USDT")
	amountFlag := flag.String("amount", "", "Amount to pay out")
	destinationFlag := flag.String("destination", "", "Destination TRON address")
	waitFlag := flag.Duration("wait", 2*time.Minute, "How long to wait for retries to finish")
	dryRunFlag := flag.Bool("dry-run", false, "Only show which wallet would fund the transfer")
	flag.Parse()

	req := &transferRequest{
		orderId:     *orderFlag,
		destination: *destinationFlag,
		wait:        *waitFlag,
		dryRun:      *dryRunFlag,
	}

	newOrder := *coinFlag != "" || *amountFlag != "" || *destinationFlag != ""
	if !newOrder {
		if req.orderId == "" {
			return nil, fmt.Errorf("either --order or all of --coin, --amount, --destination are required")
		}
		return req, nil
	}

	if *coinFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("all flags are required for a new order: --coin, --amount, --destination")
	}

	req.coin = models.Coin(strings.ToUpper(*coinFlag))

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	req.amount = amount

	return req, nil
}

func (r *transferRequest) isNewOrder() bool {
	return r.coin != ""
}

func printRanking(ctx context.Context, services *common.Services, criteria models.SelectionCriteria) error {
	ranked, err := services.Payouts.RankWallets(ctx, criteria)
	if err != nil {
		return err
	}

	common.PrintHeader("WALLET RANKING", common.DefaultWidth)
	fmt.Printf("Transfer: %s to %s\n", common.FormatAmount(criteria.Amount, criteria.Coin), criteria.Destination)
	common.PrintSeparator("-", common.DefaultWidth)
	if len(ranked) == 0 {
		fmt.Println("No eligible wallet")
	}
	for i, s := range ranked {
		fmt.Printf("%d. %-20s %s  total=%.1f (priority=%.1f balance=%.1f idle=%.1f health=%.1f)\n",
			i+1, s.Wallet.Name, common.ShortAddress(s.Wallet.Address),
			s.Total, s.Priority, s.Balance, s.Idle, s.Health)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	return nil
}

// waitForOrder polls until the order reaches a terminal state or the timeout expires
func waitForOrder(ctx context.Context, services *common.Services, orderId string, timeout time.Duration) (*models.Order, error) {
	deadline := time.Now().Add(timeout)
	for {
		order, err := services.Payouts.GetOrder(ctx, orderId)
		if err != nil {
			return nil, err
		}
		switch order.TransferStatus {
		case models.OrderCompleted, models.OrderFailed:
			return order, nil
		}
		if time.Now().After(deadline) {
			return order, nil
		}

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func printOrder(order *models.Order) {
	title := "TRANSFER " + strings.ToUpper(string(order.TransferStatus))
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("Order:       %s\n", order.Id)
	fmt.Printf("Amount:      %s\n", common.FormatAmount(order.Amount, order.Coin))
	fmt.Printf("Destination: %s\n", order.Destination)
	fmt.Printf("Attempts:    %d\n", order.TransferAttempts)
	if order.WalletName != "" {
		fmt.Printf("Wallet:      %s (%s)\n", order.WalletName, order.WalletId)
	}
	if order.TxHash != "" {
		fmt.Printf("Tx Hash:     %s\n", order.TxHash)
	}
	if order.LastError != "" {
		fmt.Printf("Last Error:  %s\n", order.LastError)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if req.dryRun {
		criteria := models.SelectionCriteria{
			Amount:      req.amount,
			Coin:        req.coin,
			FeeReserve:  cfg.Transfer.FeeReserve,
			Destination: req.destination,
		}
		if !req.isNewOrder() {
			order, err := services.Payouts.GetOrder(ctx, req.orderId)
			if err != nil {
				zap.L().Fatal("Order not found", zap.String("order_id", req.orderId), zap.Error(err))
			}
			criteria.Amount, criteria.Coin, criteria.Destination = order.Amount, order.Coin, order.Destination
		}
		if err := printRanking(ctx, services, criteria); err != nil {
			zap.L().Fatal("Failed to rank wallets", zap.Error(err))
		}
		return
	}

	orderId := req.orderId
	if req.isNewOrder() {
		zap.L().Info("Submitting order",
			zap.String("coin", string(req.coin)),
			zap.String("amount", req.amount.String()),
			zap.String("destination", req.destination))

		order, err := services.Payouts.SubmitOrder(ctx, store.CreateOrderParams{
			Id:          req.orderId,
			Coin:        req.coin,
			Amount:      req.amount,
			Destination: req.destination,
		})
		if err != nil {
			common.PrintHeader("TRANSFER REJECTED", common.DefaultWidth)
			fmt.Printf("Error: %s\n", err)
			common.PrintSeparator("=", common.DefaultWidth)
			zap.L().Fatal("Failed to submit order", zap.Error(err))
		}
		orderId = order.Id
	} else {
		zap.L().Info("Processing existing order", zap.String("order_id", orderId))
		if err := services.Payouts.ProcessTransfer(ctx, orderId); err != nil {
			if errors.Is(err, store.ErrOrderNotFound) {
				zap.L().Fatal("Order not found", zap.String("order_id", orderId))
			}
			if errors.Is(err, selector.ErrNoEligibleWallet) {
				fmt.Println("\n✗ No wallet can fund this order right now")
			}
			zap.L().Warn("Payout attempt failed", zap.String("order_id", orderId), zap.Error(err))
		}
	}

	fmt.Printf("\nWaiting up to %s for order %s...\n", req.wait, orderId)
	order, err := waitForOrder(ctx, services, orderId, req.wait)
	if err != nil {
		zap.L().Fatal("Failed to read order", zap.Error(err))
	}
	printOrder(order)

	switch order.TransferStatus {
	case models.OrderCompleted:
		fmt.Println("\n✓ Transfer submitted")
	case models.OrderFailed:
		fmt.Println("\n✗ Transfer failed, re-run with --order to retry")
	default:
		fmt.Println("\n~ Transfer still in progress, the payout daemon will keep retrying")
	}
}
