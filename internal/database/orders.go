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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var coin, amount, status string
	var transferTime sql.NullTime

	err := row.Scan(&o.Id, &coin, &amount, &o.Destination, &status, &o.WalletId, &o.WalletName,
		&o.TxHash, &transferTime, &o.TransferAttempts, &o.LastError, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Coin = models.Coin(coin)
	o.TransferStatus = models.OrderStatus(status)
	if transferTime.Valid {
		t := transferTime.Time
		o.TransferTime = &t
	}
	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	return &o, nil
}

func (s *Service) CreateOrder(ctx context.Context, params store.CreateOrderParams) (*models.Order, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("order amount must be positive, got %s", params.Amount)
	}

	id := params.Id
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertOrder,
		id, string(params.Coin), params.Amount.String(), params.Destination, now, now)
	if err != nil {
		return nil, fmt.Errorf("unable to insert order: %w", err)
	}

	zap.L().Info("Order created",
		zap.String("order_id", id),
		zap.String("coin", string(params.Coin)),
		zap.String("amount", params.Amount.String()),
		zap.String("destination", params.Destination))

	return s.FindOrder(ctx, id)
}

func (s *Service) FindOrder(ctx context.Context, orderId string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, queryGetOrder, orderId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderId)
		}
		return nil, fmt.Errorf("unable to query order: %w", err)
	}
	return order, nil
}

func (s *Service) ClaimOrder(ctx context.Context, orderId string) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryClaimOrder, time.Now().UTC(), orderId)
	if err != nil {
		return false, fmt.Errorf("failed to claim order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Service) SaveOrder(ctx context.Context, order *models.Order) error {
	var transferTime any
	if order.TransferTime != nil {
		transferTime = order.TransferTime.UTC()
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryUpdateOrder,
		string(order.TransferStatus), order.WalletId, order.WalletName, order.TxHash,
		transferTime, order.TransferAttempts, order.LastError, now, order.Id)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrOrderNotFound, order.Id)
	}
	order.UpdatedAt = now
	return nil
}

func (s *Service) ListOrdersByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, queryListOrdersByStatus, string(status), updatedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("unable to query orders: %w", err)
	}
	defer closeRows(rows)

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan order row: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}
