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

package energy

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/resources"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferStrategy pays a rental service by sending it a fixed TRX amount;
// the service delegates energy back to the sender.
type TransferStrategy struct {
	gw            gateway.Caller
	monitor       ResourceReader
	rentalAddress string
	amount        decimal.Decimal
	wait          time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewTransferStrategy(gw gateway.Caller, monitor ResourceReader, cfg models.EnergyConfig) (*TransferStrategy, error) {
	if err := gateway.ValidateAddress(cfg.RentalAddress); err != nil {
		return nil, fmt.Errorf("invalid energy rental address: %w", err)
	}
	if !cfg.RentalAmount.IsPositive() {
		return nil, fmt.Errorf("energy rental amount must be positive, got %s", cfg.RentalAmount)
	}
	return &TransferStrategy{
		gw:            gw,
		monitor:       monitor,
		rentalAddress: cfg.RentalAddress,
		amount:        cfg.RentalAmount,
		wait:          cfg.TransferWait,
		sleep:         sleepContext,
	}, nil
}

func (s *TransferStrategy) Mode() models.EnergyMode { return models.EnergyModeTransfer }

func (s *TransferStrategy) Acquire(ctx context.Context, wallet *models.Wallet, key *ecdsa.PrivateKey, required, current int64) (*models.EnergyRentalResult, error) {
	result := &models.EnergyRentalResult{
		Mode:         models.EnergyModeTransfer,
		EnergyBefore: current,
		EnergyAfter:  current,
	}

	sun := resources.ToSun(s.amount).Int64()
	txId, err := gateway.Submit(ctx, s.gw, "energy_rental_transfer", key, func(n gateway.Node) (*core.Transaction, error) {
		return n.BuildNativeTransfer(wallet.Address, s.rentalAddress, sun)
	})
	if err != nil {
		return result, fmt.Errorf("rental payment failed: %w", err)
	}
	result.CostTRX = s.amount
	result.ProviderOrderId = txId

	zap.L().Info("Energy rental payment sent",
		zap.String("wallet_id", wallet.Id),
		zap.String("rental_address", s.rentalAddress),
		zap.String("amount_trx", s.amount.String()),
		zap.String("tx_hash", txId),
		zap.Duration("wait", s.wait))

	if err := s.sleep(ctx, s.wait); err != nil {
		return result, err
	}

	after, err := s.monitor.GetResources(ctx, wallet.Address)
	if err != nil {
		return result, fmt.Errorf("failed to verify energy after rental: %w", err)
	}
	result.EnergyAfter = after.Energy.Remaining
	result.EnergyGained = result.EnergyAfter - current
	return result, nil
}
