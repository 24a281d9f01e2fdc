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

package common

import (
	"context"
	"fmt"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"
	"tron-payout-go/internal/wallets"

	"go.uber.org/zap"
)

// LoadWallets retrieves wallets based on an optional filter.
// If ref is provided (id, name or address), returns that single wallet.
// If ref is empty, returns the whole pool.
func LoadWallets(ctx context.Context, walletStore store.WalletStore, ref string, logger *zap.Logger) ([]models.Wallet, error) {
	if ref != "" {
		logger.Info("Looking up wallet", zap.String("ref", ref))
		wallet, err := wallets.ResolveWallet(ctx, walletStore, ref)
		if err != nil {
			return nil, fmt.Errorf("wallet not found: %w", err)
		}
		return []models.Wallet{*wallet}, nil
	}

	all, err := walletStore.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}

	logger.Info("Retrieved wallets", zap.Int("count", len(all)))
	return all, nil
}
