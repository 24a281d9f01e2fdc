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

package selector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"tron-payout-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoEligibleWallet is returned when no enabled wallet can fund the transfer.
var ErrNoEligibleWallet = errors.New("no eligible wallet")

const (
	priorityWeight = 40.0
	balanceWeight  = 30.0
	idleWeight     = 20.0
	healthyScore   = 10.0
	warningScore   = 5.0

	// A wallet holding ten times the required amount gets the full balance score.
	balanceHeadroom = 10
	idleSaturation  = 24 * time.Hour
)

// WalletLister is the subset of the wallet store the selector reads.
type WalletLister interface {
	ListEnabledWallets(ctx context.Context) ([]models.Wallet, error)
}

type Selector struct {
	wallets WalletLister
	now     func() time.Time
}

func New(wallets WalletLister) *Selector {
	return &Selector{wallets: wallets, now: time.Now}
}

// WithClock overrides the clock used for idle scoring.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// SelectBest returns the highest scoring wallet able to fund the transfer.
func (s *Selector) SelectBest(ctx context.Context, criteria models.SelectionCriteria) (*models.Wallet, error) {
	ranked, err := s.Rank(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		zap.L().Warn("No eligible wallet for transfer",
			zap.String("coin", string(criteria.Coin)),
			zap.String("amount", criteria.Amount.String()),
			zap.String("fee_reserve", criteria.FeeReserve.String()))
		return nil, fmt.Errorf("%w: %s %s", ErrNoEligibleWallet, criteria.Amount, criteria.Coin)
	}

	best := ranked[0]
	zap.L().Debug("Selected wallet",
		zap.String("wallet_id", best.Wallet.Id),
		zap.String("wallet_name", best.Wallet.Name),
		zap.Float64("score", best.Total),
		zap.Int("candidates", len(ranked)))
	return best.Wallet, nil
}

// Rank scores every eligible wallet, best first. Ties go to the lower wallet Id.
func (s *Selector) Rank(ctx context.Context, criteria models.SelectionCriteria) ([]models.WalletScore, error) {
	pool, err := s.wallets.ListEnabledWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	now := s.now()
	ranked := make([]models.WalletScore, 0, len(pool))
	for i := range pool {
		w := &pool[i]
		if !Eligible(w, criteria) {
			continue
		}
		ranked = append(ranked, Score(w, criteria, now))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Wallet.Id < ranked[j].Wallet.Id
	})
	return ranked, nil
}

// Eligible applies the hard filters: usable health, TRX for fees and enough of the asset.
func Eligible(w *models.Wallet, c models.SelectionCriteria) bool {
	if !w.Enabled || w.Health == models.HealthError || w.Health == models.HealthDisabled {
		return false
	}
	if w.NativeBalance.LessThan(c.FeeReserve) {
		return false
	}
	if c.IsToken() {
		return w.TokenBalance.GreaterThanOrEqual(c.Amount)
	}
	return w.NativeBalance.GreaterThanOrEqual(c.Amount.Add(c.FeeReserve))
}

// Score computes the weighted selection score for an eligible wallet.
func Score(w *models.Wallet, c models.SelectionCriteria, now time.Time) models.WalletScore {
	score := models.WalletScore{Wallet: w}

	score.Priority = float64(clampPriority(w.Priority)) / 100 * priorityWeight

	balance, required := w.NativeBalance, c.Amount.Add(c.FeeReserve)
	if c.IsToken() {
		balance, required = w.TokenBalance, c.Amount
	}
	if required.IsPositive() {
		ratio := balance.Div(required.Mul(decimal.NewFromInt(balanceHeadroom))).InexactFloat64()
		score.Balance = math.Min(ratio, 1) * balanceWeight
	} else {
		score.Balance = balanceWeight
	}

	if w.Stats.LastUsedAt == nil {
		score.Idle = idleWeight
	} else {
		idle := now.Sub(*w.Stats.LastUsedAt)
		if idle < 0 {
			idle = 0
		}
		score.Idle = math.Min(float64(idle)/float64(idleSaturation), 1) * idleWeight
	}

	switch w.Health {
	case models.HealthHealthy:
		score.Health = healthyScore
	case models.HealthWarning:
		score.Health = warningScore
	}

	score.Total = score.Priority + score.Balance + score.Idle + score.Health
	return score
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
