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

// RefreshResult represents the outcome of refreshing one wallet's chain state
type RefreshResult struct {
	WalletId      string           `json:"wallet_id"`
	Address       string           `json:"address"`
	NativeBalance decimal.Decimal  `json:"native_balance"`
	TokenBalance  decimal.Decimal  `json:"token_balance"`
	Resources     ResourceSnapshot `json:"resources"`
	Health        WalletHealth     `json:"health"`
	Error         string           `json:"error,omitempty"`
}

// TransferOutcome is what the orchestrator records on a wallet after an attempt
type TransferOutcome struct {
	Success  bool
	Coin     Coin
	Amount   decimal.Decimal
	Occurred time.Time
}
