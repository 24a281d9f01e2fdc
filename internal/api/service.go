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
	"tron-payout-go/internal/store"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WalletRanker is the selector as seen by the API.
type WalletRanker interface {
	SelectBest(ctx context.Context, criteria models.SelectionCriteria) (*models.Wallet, error)
	Rank(ctx context.Context, criteria models.SelectionCriteria) ([]models.WalletScore, error)
}

// TransferProcessor is the order orchestrator as seen by the API.
type TransferProcessor interface {
	ProcessTransfer(ctx context.Context, orderId string) error
}

// PayoutService is the entry point other systems call into.
type PayoutService struct {
	store        store.Store
	gateway      Pinger
	selector     WalletRanker
	orchestrator TransferProcessor
}

func NewPayoutService(st store.Store, gw Pinger, selector WalletRanker, orchestrator TransferProcessor) *PayoutService {
	return &PayoutService{
		store:        st,
		gateway:      gw,
		selector:     selector,
		orchestrator: orchestrator,
	}
}

func (s *PayoutService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := s.gateway.Ping(ctx); err != nil {
		return fmt.Errorf("rpc health check failed: %w", err)
	}
	return nil
}
