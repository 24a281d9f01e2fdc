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
	"errors"
	"fmt"
	"time"

	"tron-payout-go/internal/metrics"
	"tron-payout-go/internal/models"

	"go.uber.org/zap"
)

// ErrEnergyProvisionFailed means the wallet will pay for the transfer in burnt TRX.
var ErrEnergyProvisionFailed = errors.New("energy provisioning failed")

// ResourceReader is the subset of the resource monitor the provisioner needs.
type ResourceReader interface {
	GetResources(ctx context.Context, address string) (models.ResourceSnapshot, error)
}

// Strategy acquires energy for a wallet that is short of it.
type Strategy interface {
	Mode() models.EnergyMode
	Acquire(ctx context.Context, wallet *models.Wallet, key *ecdsa.PrivateKey, required, current int64) (*models.EnergyRentalResult, error)
}

type Provisioner struct {
	monitor      ResourceReader
	strategy     Strategy
	warmRequired int64
	coldRequired int64
}

func NewProvisioner(monitor ResourceReader, strategy Strategy, cfg models.EnergyConfig) *Provisioner {
	warm := cfg.WarmRequired
	if warm <= 0 {
		warm = 65_000
	}
	cold := cfg.ColdRequired
	if cold <= 0 {
		cold = 131_000
	}
	return &Provisioner{monitor: monitor, strategy: strategy, warmRequired: warm, coldRequired: cold}
}

// Enabled reports whether a provisioning strategy is configured.
func (p *Provisioner) Enabled() bool {
	return p != nil && p.strategy != nil
}

// Required returns the energy a token transfer needs; first-time holders cost more.
func (p *Provisioner) Required(firstTransfer bool) int64 {
	if firstTransfer {
		return p.coldRequired
	}
	return p.warmRequired
}

// EnsureResource makes sure wallet holds enough energy for one token transfer
// to a warm or cold destination. It always returns a result. A shortfall is
// reported through result.Success; a non-nil error wraps
// ErrEnergyProvisionFailed and means the attempt itself broke.
func (p *Provisioner) EnsureResource(ctx context.Context, wallet *models.Wallet, key *ecdsa.PrivateKey, destination string, firstTransfer bool) (*models.EnergyRentalResult, error) {
	required := p.Required(firstTransfer)
	mode := models.EnergyModeNone
	if p.strategy != nil {
		mode = p.strategy.Mode()
	}

	before, err := p.monitor.GetResources(ctx, wallet.Address)
	if err != nil {
		metrics.EnergyProvisioned(string(mode), false)
		return &models.EnergyRentalResult{Mode: mode, Required: required, Reason: err.Error()},
			fmt.Errorf("%w: %w", ErrEnergyProvisionFailed, err)
	}

	current := before.Energy.Remaining
	if current >= required {
		zap.L().Debug("Wallet already has enough energy",
			zap.String("wallet_id", wallet.Id),
			zap.Int64("available", current),
			zap.Int64("required", required))
		return &models.EnergyRentalResult{
			Mode:         mode,
			Success:      true,
			Required:     required,
			EnergyBefore: current,
			EnergyAfter:  current,
			Reason:       "sufficient",
		}, nil
	}

	if p.strategy == nil {
		return &models.EnergyRentalResult{
			Mode:         mode,
			Required:     required,
			EnergyBefore: current,
			EnergyAfter:  current,
			Reason:       "provisioning disabled",
		}, nil
	}

	zap.L().Info("Provisioning energy",
		zap.String("wallet_id", wallet.Id),
		zap.String("order_id", models.OrderIdFromContext(ctx)),
		zap.String("mode", string(mode)),
		zap.String("destination", destination),
		zap.Bool("first_transfer", firstTransfer),
		zap.Int64("available", current),
		zap.Int64("required", required))

	start := time.Now()
	result, err := p.strategy.Acquire(ctx, wallet, key, required, current)
	if result == nil {
		result = &models.EnergyRentalResult{Mode: mode, Required: required, EnergyBefore: current, EnergyAfter: current}
	}
	result.Required = required
	if err != nil {
		result.Success = false
		if result.Reason == "" {
			result.Reason = err.Error()
		}
		metrics.EnergyProvisioned(string(mode), false)
		return result, fmt.Errorf("%w: %w", ErrEnergyProvisionFailed, err)
	}

	result.Success = result.EnergyAfter >= required
	metrics.EnergyProvisioned(string(mode), result.Success)

	zap.L().Info("Energy provisioning finished",
		zap.String("wallet_id", wallet.Id),
		zap.String("mode", string(mode)),
		zap.Bool("success", result.Success),
		zap.Int64("before", result.EnergyBefore),
		zap.Int64("after", result.EnergyAfter),
		zap.Int64("gained", result.EnergyGained),
		zap.String("cost_trx", result.CostTRX.String()),
		zap.Duration("elapsed", time.Since(start)))

	if !result.Success && result.Reason == "" {
		result.Reason = fmt.Sprintf("energy %d still below required %d", result.EnergyAfter, required)
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
