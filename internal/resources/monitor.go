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

package resources

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Decimals is the fixed exponent of both TRX (sun) and USDT on TRON.
const Decimals = 6

// Monitor reads balances and energy/bandwidth for pool and destination addresses.
type Monitor struct {
	gw            gateway.Caller
	tokenContract string
	holders       *cache.Cache
}

func NewMonitor(gw gateway.Caller, tokenContract string, holderTTL time.Duration) *Monitor {
	if holderTTL <= 0 {
		holderTTL = 6 * time.Hour
	}
	return &Monitor{
		gw:            gw,
		tokenContract: tokenContract,
		holders:       cache.New(holderTTL, 2*holderTTL),
	}
}

func (m *Monitor) TokenContract() string { return m.tokenContract }

// GetResources returns the energy and bandwidth of address. Unactivated
// accounts report zero everywhere.
func (m *Monitor) GetResources(ctx context.Context, address string) (models.ResourceSnapshot, error) {
	snapshot, err := gateway.Fetch(ctx, m.gw, "get_account_resource", func(n gateway.Node) (models.ResourceSnapshot, error) {
		return n.AccountResources(address)
	})
	if errors.Is(err, gateway.ErrAccountNotFound) {
		return models.ResourceSnapshot{}, nil
	}
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("failed to read resources for %s: %w", address, err)
	}
	return snapshot, nil
}

// GetBalance returns the human-unit balance of coin held by address.
func (m *Monitor) GetBalance(ctx context.Context, address string, coin models.Coin) (decimal.Decimal, error) {
	switch coin {
	case models.CoinTRX:
		sun, err := gateway.Fetch(ctx, m.gw, "get_account", func(n gateway.Node) (int64, error) {
			return n.AccountBalance(address)
		})
		if errors.Is(err, gateway.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to read TRX balance for %s: %w", address, err)
		}
		return FromSun(sun), nil

	case models.CoinUSDT:
		if m.tokenContract == "" {
			return decimal.Zero, fmt.Errorf("token contract not configured")
		}
		raw, err := gateway.Fetch(ctx, m.gw, "trc20_balance_of", func(n gateway.Node) (*big.Int, error) {
			return n.TokenBalance(address, m.tokenContract)
		})
		if errors.Is(err, gateway.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to read token balance for %s: %w", address, err)
		}
		return decimal.NewFromBigInt(raw, -Decimals), nil

	default:
		return decimal.Zero, fmt.Errorf("unsupported coin %q", coin)
	}
}

// HoldsToken reports whether address already holds a non-zero token balance.
// Sending to a first-time holder costs roughly twice the energy. Positive
// answers are cached since a holder rarely drains to exactly zero.
func (m *Monitor) HoldsToken(ctx context.Context, address string) (bool, error) {
	if _, ok := m.holders.Get(address); ok {
		return true, nil
	}

	balance, err := m.GetBalance(ctx, address, models.CoinUSDT)
	if err != nil {
		return false, err
	}

	holds := balance.IsPositive()
	if holds {
		m.holders.SetDefault(address, struct{}{})
	}
	zap.L().Debug("Destination token holder probe",
		zap.String("address", address),
		zap.Bool("holds_token", holds))
	return holds, nil
}

// FromSun converts an integer amount in the smallest unit to human units.
func FromSun(sun int64) decimal.Decimal {
	return decimal.New(sun, -Decimals)
}

// ToSun converts a human amount to the smallest unit, truncating any excess precision.
func ToSun(amount decimal.Decimal) *big.Int {
	return amount.Shift(Decimals).Truncate(0).BigInt()
}
