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

package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"tron-payout-go/internal/energy"
	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/metrics"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/resources"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid destination address")
	// ErrKeyMismatch means the stored key does not control the wallet address.
	ErrKeyMismatch = errors.New("decrypted key does not match wallet address")
)

// KeyOpener decrypts a sealed wallet key.
type KeyOpener interface {
	Open(envelope string) ([]byte, error)
}

// ChainReader is the subset of the resource monitor the executor needs.
type ChainReader interface {
	GetBalance(ctx context.Context, address string, coin models.Coin) (decimal.Decimal, error)
	HoldsToken(ctx context.Context, address string) (bool, error)
	TokenContract() string
}

// EnergySource tops up a wallet before a token transfer.
type EnergySource interface {
	Enabled() bool
	EnsureResource(ctx context.Context, wallet *models.Wallet, key *ecdsa.PrivateKey, destination string, firstTransfer bool) (*models.EnergyRentalResult, error)
}

// OutcomeRecorder persists per-wallet transfer statistics.
type OutcomeRecorder interface {
	RecordTransferOutcome(ctx context.Context, walletId string, outcome models.TransferOutcome) error
}

type Executor struct {
	vault    KeyOpener
	gw       gateway.Caller
	chain    ChainReader
	energy   EnergySource
	stats    OutcomeRecorder
	feeLimit decimal.Decimal
	now      func() time.Time
}

func New(vault KeyOpener, gw gateway.Caller, chain ChainReader, energy EnergySource, stats OutcomeRecorder, cfg models.TransferConfig) *Executor {
	feeLimit := cfg.FeeLimit
	if !feeLimit.IsPositive() {
		feeLimit = decimal.NewFromInt(30)
	}
	return &Executor{
		vault:    vault,
		gw:       gw,
		chain:    chain,
		energy:   energy,
		stats:    stats,
		feeLimit: feeLimit,
		now:      time.Now,
	}
}

// Execute signs and broadcasts one transfer from wallet. It returns as soon as
// the transaction is accepted by the node; confirmation is not awaited.
func (e *Executor) Execute(ctx context.Context, wallet *models.Wallet, req models.TransferRequest) (result *models.TransferResult, err error) {
	coin := req.Coin()
	amount := req.Asset.Value()

	defer func() {
		ok := err == nil
		metrics.TransferExecuted(string(coin), ok)
		outcome := models.TransferOutcome{Success: ok, Coin: coin, Amount: amount, Occurred: e.now()}
		if recErr := e.stats.RecordTransferOutcome(context.WithoutCancel(ctx), wallet.Id, outcome); recErr != nil {
			zap.L().Warn("Failed to record transfer outcome",
				zap.String("wallet_id", wallet.Id),
				zap.Bool("success", ok),
				zap.Error(recErr))
		}
	}()

	raw, err := e.vault.Open(wallet.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("unable to open key for wallet %s: %w", wallet.Id, err)
	}
	defer keyvault.Zero(raw)

	key, err := keyvault.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyvault.ErrDecryptionFailed, err)
	}
	defer keyvault.ZeroKey(key)

	if derived := keyvault.AddressOf(key); derived != wallet.Address {
		return nil, fmt.Errorf("%w: wallet %s", ErrKeyMismatch, wallet.Id)
	}

	if err := gateway.ValidateAddress(req.Destination); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, req.Destination, err)
	}

	if err := e.checkBalance(ctx, wallet, req); err != nil {
		return nil, err
	}

	result = &models.TransferResult{
		WalletId:   wallet.Id,
		WalletName: wallet.Name,
		From:       wallet.Address,
		To:         req.Destination,
		Amount:     amount,
	}

	var build func(n gateway.Node) (*core.Transaction, error)
	switch asset := req.Asset.(type) {
	case models.TokenTransfer:
		contract := asset.Contract
		if contract == "" {
			contract = e.chain.TokenContract()
		}
		if e.energy != nil && e.energy.Enabled() {
			result.Energy = e.provisionEnergy(ctx, wallet, key, req.Destination)
		}
		units := resources.ToSun(asset.Amount)
		feeLimit := resources.ToSun(e.feeLimit).Int64()
		build = func(n gateway.Node) (*core.Transaction, error) {
			return n.BuildTokenTransfer(wallet.Address, req.Destination, contract, units, feeLimit)
		}
	case models.NativeTransfer:
		sun := resources.ToSun(asset.Amount).Int64()
		build = func(n gateway.Node) (*core.Transaction, error) {
			return n.BuildNativeTransfer(wallet.Address, req.Destination, sun)
		}
	default:
		return nil, fmt.Errorf("unsupported transfer asset %T", req.Asset)
	}

	txHash, err := gateway.Submit(ctx, e.gw, "broadcast_"+string(coin), key, build)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s transfer: %w", coin, err)
	}
	result.TxHash = txHash
	result.SubmittedAt = e.now()

	zap.L().Info("Transfer submitted",
		zap.String("order_id", models.OrderIdFromContext(ctx)),
		zap.String("wallet_id", wallet.Id),
		zap.String("coin", string(coin)),
		zap.String("amount", amount.String()),
		zap.String("destination", req.Destination),
		zap.String("tx_hash", txHash))

	return result, nil
}

func (e *Executor) checkBalance(ctx context.Context, wallet *models.Wallet, req models.TransferRequest) error {
	native, err := e.chain.GetBalance(ctx, wallet.Address, models.CoinTRX)
	if err != nil {
		return fmt.Errorf("failed to read TRX balance: %w", err)
	}

	if req.IsToken() {
		if native.LessThan(req.FeeReserve) {
			return fmt.Errorf("%w: wallet %s has %s TRX, needs %s for fees",
				ErrInsufficientBalance, wallet.Id, native, req.FeeReserve)
		}
		token, err := e.chain.GetBalance(ctx, wallet.Address, models.CoinUSDT)
		if err != nil {
			return fmt.Errorf("failed to read token balance: %w", err)
		}
		if token.LessThan(req.Asset.Value()) {
			return fmt.Errorf("%w: wallet %s has %s USDT, needs %s",
				ErrInsufficientBalance, wallet.Id, token, req.Asset.Value())
		}
		return nil
	}

	needed := req.Asset.Value().Add(req.FeeReserve)
	if native.LessThan(needed) {
		return fmt.Errorf("%w: wallet %s has %s TRX, needs %s",
			ErrInsufficientBalance, wallet.Id, native, needed)
	}
	return nil
}

// provisionEnergy never fails the transfer; without energy the wallet burns TRX.
func (e *Executor) provisionEnergy(ctx context.Context, wallet *models.Wallet, key *ecdsa.PrivateKey, destination string) *models.EnergyRentalResult {
	holds, err := e.chain.HoldsToken(ctx, destination)
	if err != nil {
		zap.L().Warn("Destination probe failed, assuming first transfer",
			zap.String("destination", destination),
			zap.Error(err))
	}

	result, err := e.energy.EnsureResource(ctx, wallet, key, destination, !holds)
	if err == nil && result != nil && !result.Success {
		err = fmt.Errorf("%w: %s", energy.ErrEnergyProvisionFailed, result.Reason)
	}
	if err != nil {
		zap.L().Warn("Proceeding without enough energy",
			zap.String("wallet_id", wallet.Id),
			zap.String("destination", destination),
			zap.Error(err))
	}
	return result
}
