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

// Coin identifies what an order pays out
type Coin string

const (
	CoinTRX  Coin = "TRX"
	CoinUSDT Coin = "USDT"
)

// TransferAsset is either a NativeTransfer or a TokenTransfer
type TransferAsset interface {
	Value() decimal.Decimal
	transferAsset()
}

// NativeTransfer moves TRX
type NativeTransfer struct {
	Amount decimal.Decimal
}

// TokenTransfer moves a TRC-20 token held at Contract
type TokenTransfer struct {
	Amount   decimal.Decimal
	Contract string
}

func (n NativeTransfer) Value() decimal.Decimal { return n.Amount }
func (t TokenTransfer) Value() decimal.Decimal  { return t.Amount }

func (NativeTransfer) transferAsset() {}
func (TokenTransfer) transferAsset()  {}

// TransferRequest is an ephemeral instruction to pay Destination
type TransferRequest struct {
	Asset       TransferAsset
	Destination string
	FeeReserve  decimal.Decimal
}

// IsToken reports whether the request moves a TRC-20 token
func (r TransferRequest) IsToken() bool {
	_, ok := r.Asset.(TokenTransfer)
	return ok
}

// Coin returns the coin moved by the request
func (r TransferRequest) Coin() Coin {
	if r.IsToken() {
		return CoinUSDT
	}
	return CoinTRX
}

// TransferResult is the outcome of a broadcast transfer
type TransferResult struct {
	TxHash      string              `json:"tx_hash"`
	WalletId    string              `json:"wallet_id"`
	WalletName  string              `json:"wallet_name"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Amount      decimal.Decimal     `json:"amount"`
	Energy      *EnergyRentalResult `json:"energy,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

// SelectionCriteria describes the transfer a wallet must be able to fund
type SelectionCriteria struct {
	Amount      decimal.Decimal `json:"amount"`
	Coin        Coin            `json:"coin"`
	FeeReserve  decimal.Decimal `json:"fee_reserve"`
	Destination string          `json:"destination,omitempty"`
}

// IsToken reports whether the criteria describe a token transfer
func (c SelectionCriteria) IsToken() bool {
	return c.Coin != CoinTRX
}

// WalletScore is a wallet together with its selection score breakdown
type WalletScore struct {
	Wallet   *Wallet `json:"-"`
	Total    float64 `json:"total"`
	Priority float64 `json:"priority"`
	Balance  float64 `json:"balance"`
	Idle     float64 `json:"idle"`
	Health   float64 `json:"health"`
}
