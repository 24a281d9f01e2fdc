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

package api

import (
	"context"
	"errors"
	"fmt"

	"tron-payout-go/internal/executor"
	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProcessTransfer pays out an order that already exists in the store.
func (s *PayoutService) ProcessTransfer(ctx context.Context, orderId string) error {
	if orderId == "" {
		return fmt.Errorf("order id is required")
	}
	return s.orchestrator.ProcessTransfer(ctx, orderId)
}

// SubmitOrder records a new order and immediately attempts the payout. The
// order is returned even when the first attempt fails; retries continue in
// the background.
func (s *PayoutService) SubmitOrder(ctx context.Context, params store.CreateOrderParams) (*models.Order, error) {
	if err := validateOrder(params); err != nil {
		return nil, err
	}

	order, err := s.store.CreateOrder(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := s.orchestrator.ProcessTransfer(ctx, order.Id); err != nil {
		if errors.Is(err, selector.ErrNoEligibleWallet) {
			zap.L().Warn("Order accepted but no wallet can fund it yet",
				zap.String("order_id", order.Id),
				zap.String("coin", string(order.Coin)),
				zap.String("amount", order.Amount.String()))
		} else {
			zap.L().Warn("First payout attempt failed",
				zap.String("order_id", order.Id),
				zap.Error(err))
		}
	}

	return s.store.FindOrder(ctx, order.Id)
}

func (s *PayoutService) GetOrder(ctx context.Context, orderId string) (*models.Order, error) {
	return s.store.FindOrder(ctx, orderId)
}

func validateOrder(params store.CreateOrderParams) error {
	switch params.Coin {
	case models.CoinTRX, models.CoinUSDT:
	default:
		return fmt.Errorf("unsupported coin %q", params.Coin)
	}
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive, got %s", params.Amount)
	}
	if !params.Amount.Equal(params.Amount.Truncate(6)) {
		return fmt.Errorf("amount %s has more than 6 decimals", params.Amount)
	}
	if err := gateway.ValidateAddress(params.Destination); err != nil {
		return fmt.Errorf("%w: %v", executor.ErrInvalidAddress, err)
	}
	return nil
}
