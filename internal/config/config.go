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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tron-payout-go/internal/models"

	"github.com/shopspring/decimal"
)

const defaultUSDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func Load() (*models.Config, error) {
	durations := map[string]time.Duration{}
	durationDefaults := []struct {
		key string
		def time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second},
		{"DB_PING_TIMEOUT", 5 * time.Second},
		{"RPC_CALL_TIMEOUT", 30 * time.Second},
		{"RPC_PROBE_TIMEOUT", 5 * time.Second},
		{"RPC_RETRY_DELAY", time.Second},
		{"ENERGY_TRANSFER_WAIT", 6 * time.Second},
		{"ENERGY_MARKET_WAIT", 6 * time.Second},
		{"DESTINATION_CACHE_TTL", 6 * time.Hour},
		{"ORDER_RETRY_BASE_DELAY", 5 * time.Second},
		{"LISTENER_POLLING_INTERVAL", 30 * time.Second},
		{"WALLET_REFRESH_INTERVAL", 5 * time.Minute},
		{"PENDING_ORDER_GRACE", 2 * time.Minute},
	}
	for _, d := range durationDefaults {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		durations[d.key] = v
	}
	dur := func(key string) time.Duration { return durations[key] }

	rentalAmount, err := getEnvDecimal("ENERGY_RENTAL_AMOUNT", decimal.NewFromInt(8))
	if err != nil {
		return nil, err
	}
	feeLimit, err := getEnvDecimal("TRANSFER_FEE_LIMIT", decimal.NewFromInt(30))
	if err != nil {
		return nil, err
	}
	feeReserve, err := getEnvDecimal("TRANSFER_FEE_RESERVE", decimal.NewFromInt(15))
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvFloat("RPC_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	mode := models.EnergyMode(strings.ToLower(getEnvString("ENERGY_MODE", string(models.EnergyModeNone))))
	switch mode {
	case models.EnergyModeNone, models.EnergyModeTransfer, models.EnergyModeMarket:
	default:
		return nil, fmt.Errorf("invalid ENERGY_MODE %q (want none, transfer or market)", mode)
	}

	gateway := models.GatewayConfig{
		NodesFile:     getEnvString("TRON_NODES_FILE", "nodes.yaml"),
		TokenContract: getEnvString("USDT_CONTRACT", defaultUSDTContract),
		CallTimeout:   dur("RPC_CALL_TIMEOUT"),
		ProbeTimeout:  dur("RPC_PROBE_TIMEOUT"),
		MaxAttempts:   getEnvInt("RPC_MAX_ATTEMPTS", 3),
		RetryDelay:    dur("RPC_RETRY_DELAY"),
		RateLimit:     rateLimit,
		RateBurst:     getEnvInt("RPC_RATE_BURST", 20),
	}
	gateway.Nodes, err = loadNodes(gateway.NodesFile)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "payouts.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: dur("DB_CONN_MAX_IDLE_TIME"),
			PingTimeout:     dur("DB_PING_TIMEOUT"),
		},
		Vault: models.VaultConfig{
			MasterSecret: os.Getenv("MASTER_SECRET"),
		},
		Gateway: gateway,
		Energy: models.EnergyConfig{
			Mode:            mode,
			WarmRequired:    int64(getEnvInt("ENERGY_WARM_REQUIRED", 65_000)),
			ColdRequired:    int64(getEnvInt("ENERGY_COLD_REQUIRED", 131_000)),
			RentalAddress:   getEnvString("ENERGY_RENTAL_ADDRESS", ""),
			RentalAmount:    rentalAmount,
			TransferWait:    dur("ENERGY_TRANSFER_WAIT"),
			MarketUrl:       getEnvString("ENERGY_MARKET_URL", ""),
			MarketApiKey:    getEnvString("ENERGY_MARKET_API_KEY", ""),
			MarketSmallTier: int64(getEnvInt("ENERGY_MARKET_SMALL_TIER", 65_000)),
			MarketLargeTier: int64(getEnvInt("ENERGY_MARKET_LARGE_TIER", 131_000)),
			MarketDuration:  getEnvString("ENERGY_MARKET_DURATION", "1h"),
			MarketWait:      dur("ENERGY_MARKET_WAIT"),
			DestinationTTL:  dur("DESTINATION_CACHE_TTL"),
		},
		Transfer: models.TransferConfig{
			FeeLimit:   feeLimit,
			FeeReserve: feeReserve,
		},
		Orders: models.OrderConfig{
			MaxRetries:     getEnvInt("ORDER_MAX_RETRIES", 3),
			RetryBaseDelay: dur("ORDER_RETRY_BASE_DELAY"),
		},
		Listener: models.ListenerConfig{
			PollingInterval:       dur("LISTENER_POLLING_INTERVAL"),
			WalletRefreshInterval: dur("WALLET_REFRESH_INTERVAL"),
			PendingOrderGrace:     dur("PENDING_ORDER_GRACE"),
			RefreshConcurrency:    getEnvInt("WALLET_REFRESH_CONCURRENCY", 4),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ""),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "tron-payouts"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}
