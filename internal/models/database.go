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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletHealth is the operational state of a pool wallet
type WalletHealth string

const (
	HealthHealthy  WalletHealth = "healthy"
	HealthWarning  WalletHealth = "warning"
	HealthError    WalletHealth = "error"
	HealthDisabled WalletHealth = "disabled"
)

// MaxConsecutiveFailures is the failure streak that moves a wallet into HealthError
const MaxConsecutiveFailures = 3

// WalletResources is the last observed energy and bandwidth snapshot
type WalletResources struct {
	EnergyLimit        int64 `db:"energy_limit"`
	EnergyUsed         int64 `db:"energy_used"`
	EnergyAvailable    int64 `db:"energy_available"`
	BandwidthLimit     int64 `db:"bandwidth_limit"`
	BandwidthUsed      int64 `db:"bandwidth_used"`
	BandwidthAvailable int64 `db:"bandwidth_available"`
}

// WalletStats accumulates transfer outcomes for a wallet
type WalletStats struct {
	TxCount      int64           `db:"tx_count"`
	SuccessCount int64           `db:"success_count"`
	FailCount    int64           `db:"fail_count"`
	NativeVolume decimal.Decimal `db:"native_volume"`
	TokenVolume  decimal.Decimal `db:"token_volume"`
	LastUsedAt   *time.Time      `db:"last_used_at"`
}

// WalletThresholds are the per-wallet floors below which a refresh flags a warning
type WalletThresholds struct {
	MinNative decimal.Decimal `db:"min_native"`
	MinToken  decimal.Decimal `db:"min_token"`
	MinEnergy int64           `db:"min_energy"`
}

// Wallet is a custodial hot wallet in the payout pool
type Wallet struct {
	Id                  string          `db:"id"`
	Name                string          `db:"name"`
	Address             string          `db:"address"`
	EncryptedKey        string          `db:"encrypted_key"`
	Enabled             bool            `db:"enabled"`
	Priority            int             `db:"priority"`
	NativeBalance       decimal.Decimal `db:"native_balance"`
	TokenBalance        decimal.Decimal `db:"token_balance"`
	Resources           WalletResources
	Health              WalletHealth `db:"health"`
	ConsecutiveFailures int          `db:"consecutive_failures"`
	Stats               WalletStats
	Thresholds          WalletThresholds
	BalancesUpdatedAt   *time.Time `db:"balances_updated_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// OrderStatus is the transfer status of a payment order
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
)

// Order is a paid customer order that owes an on-chain payout
type Order struct {
	Id               string          `db:"id"`
	Coin             Coin            `db:"coin"`
	Amount           decimal.Decimal `db:"amount"`
	Destination      string          `db:"destination"`
	TransferStatus   OrderStatus     `db:"transfer_status"`
	WalletId         string          `db:"wallet_id"`
	WalletName       string          `db:"wallet_name"`
	TxHash           string          `db:"tx_hash"`
	TransferTime     *time.Time      `db:"transfer_time"`
	TransferAttempts int             `db:"transfer_attempts"`
	LastError        string          `db:"last_error"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}
