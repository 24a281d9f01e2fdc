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

package api

import (
	"context"
	"fmt"

	"tron-payout-go/internal/models"
)

// SelectBestWallet returns the wallet that would fund a transfer right now.
func (s *PayoutService) SelectBestWallet(ctx context.Context, criteria models.SelectionCriteria) (*models.Wallet, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}
	return s.selector.SelectBest(ctx, criteria)
}

// RankWallets returns every eligible wallet with its score breakdown.
func (s *PayoutService) RankWallets(ctx context.Context, criteria models.SelectionCriteria) ([]models.WalletScore, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}
	return s.selector.Rank(ctx, criteria)
}

func validateCriteria(c models.SelectionCriteria) error {
	if c.Coin != models.CoinTRX && c.Coin != models.CoinUSDT {
		return fmt.Errorf("unsupported coin %q", c.Coin)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", c.Amount)
	}
	if c.FeeReserve.IsNegative() {
		return fmt.Errorf("fee reserve cannot be negative, got %s", c.FeeReserve)
	}
	return nil
}
