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

package wallets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/metrics"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidKey = errors.New("invalid private key")

// KeySealer encrypts raw key material for storage.
type KeySealer interface {
	Seal(privateKeyHex string) (string, error)
}

// ChainReader is the subset of the resource monitor a refresh needs.
type ChainReader interface {
	GetBalance(ctx context.Context, address string, coin models.Coin) (decimal.Decimal, error)
	GetResources(ctx context.Context, address string) (models.ResourceSnapshot, error)
}

type AddWalletParams struct {
	Name       string
	PrivateKey string
	Priority   int
	Enabled    bool
	Thresholds models.WalletThresholds
}

// Service administers the wallet pool and keeps its chain snapshots fresh.
type Service struct {
	store       store.WalletStore
	vault       KeySealer
	chain       ChainReader
	concurrency int
	now         func() time.Time
}

func NewService(walletStore store.WalletStore, vault KeySealer, chain ChainReader, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		store:       walletStore,
		vault:       vault,
		chain:       chain,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// AddWallet validates the key, derives its address and stores it sealed.
func (s *Service) AddWallet(ctx context.Context, params AddWalletParams) (*models.Wallet, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("wallet name is required")
	}
	if params.Priority < 0 || params.Priority > 100 {
		return nil, fmt.Errorf("priority must be between 0 and 100, got %d", params.Priority)
	}
	if !keyvault.ValidateFormat(params.PrivateKey) {
		return nil, fmt.Errorf("%w: expected 64 hex characters", ErrInvalidKey)
	}

	address, err := keyvault.DeriveAddress(params.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sealed, err := s.vault.Seal(params.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	wallet, err := s.store.CreateWallet(ctx, store.CreateWalletParams{
		Name:         name,
		Address:      address,
		EncryptedKey: sealed,
		Priority:     params.Priority,
		Enabled:      params.Enabled,
		Thresholds:   params.Thresholds,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Wallet added to pool",
		zap.String("wallet_id", wallet.Id),
		zap.String("name", wallet.Name),
		zap.String("address", wallet.Address),
		zap.Int("priority", wallet.Priority),
		zap.Bool("enabled", wallet.Enabled))
	return wallet, nil
}

func (s *Service) List(ctx context.Context) ([]models.Wallet, error) {
	return s.store.ListWallets(ctx)
}

func (s *Service) Get(ctx context.Context, walletId string) (*models.Wallet, error) {
	return s.store.GetWallet(ctx, walletId)
}

// Resolve finds a wallet by id, name or address.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Wallet, error) {
	return ResolveWallet(ctx, s.store, ref)
}

// ResolveWallet finds a wallet by id, name or address in the given store.
func ResolveWallet(ctx context.Context, walletStore store.WalletStore, ref string) (*models.Wallet, error) {
	if w, err := walletStore.GetWallet(ctx, ref); err == nil {
		return w, nil
	} else if !errors.Is(err, store.ErrWalletNotFound) {
		return nil, err
	}

	all, err := walletStore.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == ref || all[i].Address == ref {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrWalletNotFound, ref)
}

func (s *Service) SetEnabled(ctx context.Context, walletId string, enabled bool) error {
	if err := s.store.SetEnabled(ctx, walletId, enabled); err != nil {
		return err
	}
	zap.L().Info("Wallet enablement changed", zap.String("wallet_id", walletId), zap.Bool("enabled", enabled))
	return nil
}

func (s *Service) SetPriority(ctx context.Context, walletId string, priority int) error {
	return s.store.SetPriority(ctx, walletId, priority)
}

func (s *Service) Delete(ctx context.Context, walletId string) error {
	if err := s.store.DeleteWallet(ctx, walletId); err != nil {
		return err
	}
	zap.L().Info("Wallet removed from pool", zap.String("wallet_id", walletId))
	return nil
}

func (s *Service) ResetHealth(ctx context.Context, walletId string) error {
	if err := s.store.ResetHealth(ctx, walletId); err != nil {
		return err
	}
	zap.L().Info("Wallet health reset", zap.String("wallet_id", walletId))
	return nil
}

// RotateKeys re-seals every wallet key from current to next and returns how
// many were rotated. Each re-sealed key is opened again and checked against
// the wallet address before it is stored.
func (s *Service) RotateKeys(ctx context.Context, current, next *keyvault.Vault) (int, error) {
	all, err := s.store.ListWallets(ctx)
	if err != nil {
		return 0, err
	}

	rotated := 0
	for _, wallet := range all {
		envelope, err := current.Rotate(wallet.EncryptedKey, next)
		if err != nil {
			return rotated, fmt.Errorf("wallet %s: %w", wallet.Id, err)
		}
		if err := verifySealed(next, envelope, wallet.Address); err != nil {
			return rotated, fmt.Errorf("wallet %s: %w", wallet.Id, err)
		}
		if err := s.store.UpdateEncryptedKey(ctx, wallet.Id, wallet.EncryptedKey, envelope); err != nil {
			return rotated, fmt.Errorf("wallet %s: %w", wallet.Id, err)
		}
		rotated++
	}

	zap.L().Info("Wallet keys re-sealed", zap.Int("wallets", rotated))
	return rotated, nil
}

func verifySealed(v *keyvault.Vault, envelope, address string) error {
	plaintext, err := v.Open(envelope)
	if err != nil {
		return err
	}
	defer keyvault.Zero(plaintext)

	key, err := keyvault.ParseKey(plaintext)
	if err != nil {
		return err
	}
	defer keyvault.ZeroKey(key)

	if derived := keyvault.AddressOf(key); derived != address {
		return fmt.Errorf("re-sealed key controls %s, not %s", derived, address)
	}
	return nil
}

// Refresh reads balances and resources for one wallet and stores the snapshot.
func (s *Service) Refresh(ctx context.Context, walletId string) (*models.RefreshResult, error) {
	wallet, err := s.store.GetWallet(ctx, walletId)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, wallet)
}

func (s *Service) refresh(ctx context.Context, wallet *models.Wallet) (*models.RefreshResult, error) {
	result := &models.RefreshResult{WalletId: wallet.Id, Address: wallet.Address, Health: wallet.Health}

	native, err := s.chain.GetBalance(ctx, wallet.Address, models.CoinTRX)
	if err != nil {
		return result, fmt.Errorf("wallet %s: %w", wallet.Id, err)
	}
	token, err := s.chain.GetBalance(ctx, wallet.Address, models.CoinUSDT)
	if err != nil {
		return result, fmt.Errorf("wallet %s: %w", wallet.Id, err)
	}
	snapshot, err := s.chain.GetResources(ctx, wallet.Address)
	if err != nil {
		return result, fmt.Errorf("wallet %s: %w", wallet.Id, err)
	}

	health := Assess(wallet.Thresholds, native, token, snapshot.Energy.Remaining)
	err = s.store.UpdateSnapshot(ctx, store.WalletSnapshotParams{
		WalletId:      wallet.Id,
		NativeBalance: native,
		TokenBalance:  token,
		Resources:     snapshot.AsWalletResources(),
		Health:        health,
		ObservedAt:    s.now(),
	})
	if err != nil {
		return result, err
	}

	if !wallet.Enabled {
		health = models.HealthDisabled
	}
	result.NativeBalance = native
	result.TokenBalance = token
	result.Resources = snapshot
	result.Health = health

	zap.L().Debug("Wallet refreshed",
		zap.String("wallet_id", wallet.Id),
		zap.String("trx", native.String()),
		zap.String("usdt", token.String()),
		zap.Int64("energy", snapshot.Energy.Remaining),
		zap.String("health", string(health)))
	return result, nil
}

// RefreshAll refreshes every wallet in the pool concurrently. A failing wallet
// is reported in its result and does not stop the others.
func (s *Service) RefreshAll(ctx context.Context) ([]models.RefreshResult, error) {
	pool, err := s.store.ListWallets(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.RefreshResult, len(pool))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range pool {
		g.Go(func() error {
			res, err := s.refresh(gctx, &pool[i])
			if res != nil {
				results[i] = *res
			}
			if err != nil {
				results[i].WalletId = pool[i].Id
				results[i].Address = pool[i].Address
				results[i].Error = err.Error()
				zap.L().Warn("Wallet refresh failed",
					zap.String("wallet_id", pool[i].Id),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	counts := map[string]int{}
	for _, r := range results {
		counts[string(r.Health)]++
	}
	metrics.SetWalletHealth(counts)

	sort.Slice(results, func(i, j int) bool { return results[i].WalletId < results[j].WalletId })
	return results, ctx.Err()
}

// Assess grades a wallet against its thresholds.
func Assess(t models.WalletThresholds, native, token decimal.Decimal, energy int64) models.WalletHealth {
	if native.LessThan(t.MinNative) || token.LessThan(t.MinToken) || energy < t.MinEnergy {
		return models.HealthWarning
	}
	return models.HealthHealthy
}
