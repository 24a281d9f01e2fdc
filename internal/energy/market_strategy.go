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

package energy

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RentalOrderRequest is the body posted to the resource market.
type RentalOrderRequest struct {
	Receiver string `json:"receiver"`
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
	Duration string `json:"duration"`
}

// RentalOrderResponse is the market's answer to an order.
type RentalOrderResponse struct {
	OrderId string `json:"order_id"`
	Status  string `json:"status"`
	CostTRX string `json:"cost_trx"`
	Message string `json:"message,omitempty"`
}

// MarketClient talks to an energy rental market over HTTPS.
type MarketClient struct {
	baseUrl string
	apiKey  string
	http    http.Client
}

func NewMarketClient(baseUrl, apiKey string) (*MarketClient, error) {
	if baseUrl == "" {
		return nil, fmt.Errorf("energy market url is required")
	}
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return &MarketClient{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// PlaceOrder rents energy for the receiver.
func (c *MarketClient) PlaceOrder(ctx context.Context, order RentalOrderRequest) (*RentalOrderResponse, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("unable to encode rental order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create rental request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rental request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read rental response: %w", err)
	}

	var out RentalOrderResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("unable to decode rental response (status %d): %w", resp.StatusCode, err)
		}
	}
	if resp.StatusCode/100 != 2 {
		msg := out.Message
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return nil, fmt.Errorf("rental market returned status %d: %s", resp.StatusCode, msg)
	}
	if out.OrderId == "" {
		return nil, fmt.Errorf("rental market returned no order id")
	}
	return &out, nil
}

// MarketStrategy rents a fixed energy tier from a resource market.
type MarketStrategy struct {
	client    *MarketClient
	monitor   ResourceReader
	smallTier int64
	largeTier int64
	duration  string
	wait      time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewMarketStrategy(client *MarketClient, monitor ResourceReader, cfg models.EnergyConfig) *MarketStrategy {
	small := cfg.MarketSmallTier
	if small <= 0 {
		small = 65_000
	}
	large := cfg.MarketLargeTier
	if large < small {
		large = 131_000
		if large < small {
			large = small
		}
	}
	duration := cfg.MarketDuration
	if duration == "" {
		duration = "1h"
	}
	return &MarketStrategy{
		client:    client,
		monitor:   monitor,
		smallTier: small,
		largeTier: large,
		duration:  duration,
		wait:      cfg.MarketWait,
		sleep:     sleepContext,
	}
}

func (s *MarketStrategy) Mode() models.EnergyMode { return models.EnergyModeMarket }

// Tier picks the smallest tier that covers the deficit.
func (s *MarketStrategy) Tier(deficit int64) int64 {
	if deficit <= s.smallTier {
		return s.smallTier
	}
	return s.largeTier
}

func (s *MarketStrategy) Acquire(ctx context.Context, wallet *models.Wallet, _ *ecdsa.PrivateKey, required, current int64) (*models.EnergyRentalResult, error) {
	result := &models.EnergyRentalResult{
		Mode:         models.EnergyModeMarket,
		EnergyBefore: current,
		EnergyAfter:  current,
	}

	tier := s.Tier(required - current)
	resp, err := s.client.PlaceOrder(ctx, RentalOrderRequest{
		Receiver: wallet.Address,
		Resource: "energy",
		Amount:   tier,
		Duration: s.duration,
	})
	if err != nil {
		return result, err
	}
	result.PurchasedEnergy = tier
	result.ProviderOrderId = resp.OrderId
	if cost, err := decimal.NewFromString(resp.CostTRX); err == nil {
		result.CostTRX = cost
	}

	zap.L().Info("Energy rental order placed",
		zap.String("wallet_id", wallet.Id),
		zap.String("provider_order_id", resp.OrderId),
		zap.Int64("energy", tier),
		zap.String("duration", s.duration),
		zap.String("status", resp.Status))

	if err := s.sleep(ctx, s.wait); err != nil {
		return result, err
	}

	after, err := s.monitor.GetResources(ctx, wallet.Address)
	if err != nil {
		return result, fmt.Errorf("failed to verify energy after rental: %w", err)
	}
	result.EnergyAfter = after.Energy.Remaining
	result.EnergyGained = result.EnergyAfter - current
	return result, nil
}

// NewStrategy builds the strategy for the configured mode; nil for none.
func NewStrategy(gw gateway.Caller, monitor ResourceReader, cfg models.EnergyConfig) (Strategy, error) {
	switch cfg.Mode {
	case models.EnergyModeNone, "":
		return nil, nil
	case models.EnergyModeTransfer:
		s, err := NewTransferStrategy(gw, monitor, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.EnergyModeMarket:
		client, err := NewMarketClient(cfg.MarketUrl, cfg.MarketApiKey)
		if err != nil {
			return nil, err
		}
		return NewMarketStrategy(client, monitor, cfg), nil
	default:
		return nil, fmt.Errorf("unknown energy mode %q", cfg.Mode)
	}
}
