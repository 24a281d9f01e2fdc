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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"
	"tron-payout-go/internal/wallets"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func parseThreshold(value, flagName string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s: %w", flagName, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s cannot be negative", flagName)
	}
	return d, nil
}

func printWallet(wallet *models.Wallet) {
	fmt.Println()
	common.PrintHeader("WALLET ADDED", common.DefaultWidth)
	fmt.Printf("ID:         %s\n", wallet.Id)
	fmt.Printf("Name:       %s\n", wallet.Name)
	fmt.Printf("Address:    %s\n", wallet.Address)
	fmt.Printf("Priority:   %d\n", wallet.Priority)
	fmt.Printf("Enabled:    %t\n", wallet.Enabled)
	fmt.Printf("Min TRX:    %s\n", wallet.Thresholds.MinNative)
	fmt.Printf("Min USDT:   %s\n", wallet.Thresholds.MinToken)
	fmt.Printf("Min Energy: %d\n", wallet.Thresholds.MinEnergy)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

func printRefresh(result *models.RefreshResult) {
	fmt.Printf("%s Balance:   %s, %s\n",
		common.HealthIcon(result.Health),
		common.FormatAmount(result.NativeBalance, models.CoinTRX),
		common.FormatAmount(result.TokenBalance, models.CoinUSDT))
	fmt.Printf("  Energy:    %d / %d\n", result.Resources.Energy.Remaining, result.Resources.Energy.Limit)
	fmt.Printf("  Bandwidth: %d / %d\n", result.Resources.Bandwidth.Remaining, result.Resources.Bandwidth.Limit)
	fmt.Printf("  Health:    %s\n", result.Health)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Wallet name (required)")
	keyFlag := flag.String("key", "", "Hex private key (defaults to WALLET_PRIVATE_KEY)")
	priorityFlag := flag.Int("priority", 50, "Selection priority, 0-100")
	disabledFlag := flag.Bool("disabled", false, "Add the wallet disabled")
	minTrxFlag := flag.String("min-trx", "", "TRX balance below which the wallet is flagged")
	minUsdtFlag := flag.String("min-usdt", "", "USDT balance below which the wallet is flagged")
	minEnergyFlag := flag.Int64("min-energy", 0, "Energy below which the wallet is flagged")
	refreshFlag := flag.Bool("refresh", false, "Read on-chain balances after adding")
	flag.Parse()

	if err := validateName(strings.TrimSpace(*nameFlag)); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}

	privateKey := *keyFlag
	if privateKey == "" {
		privateKey = os.Getenv("WALLET_PRIVATE_KEY")
	}
	if privateKey == "" {
		zap.L().Fatal("A private key is required: --key or WALLET_PRIVATE_KEY")
	}

	minNative, err := parseThreshold(*minTrxFlag, "min-trx")
	if err != nil {
		zap.L().Fatal("Invalid threshold", zap.Error(err))
	}
	minToken, err := parseThreshold(*minUsdtFlag, "min-usdt")
	if err != nil {
		zap.L().Fatal("Invalid threshold", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Adding a wallet needs no node; only --refresh connects to the chain.
	var (
		walletService *wallets.Service
		closeAll      func()
	)
	if *refreshFlag {
		services, err := common.InitializeChain(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize services", zap.Error(err))
		}
		walletService, closeAll = services.Wallets, services.Close
	} else {
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize database", zap.Error(err))
		}
		vault, err := keyvault.NewVault(cfg.Vault.MasterSecret)
		if err != nil {
			dbService.Close()
			zap.L().Fatal("Failed to initialize key vault", zap.Error(err))
		}
		walletService, closeAll = wallets.NewService(dbService, vault, nil, 0), dbService.Close
	}
	defer closeAll()

	wallet, err := walletService.AddWallet(ctx, wallets.AddWalletParams{
		Name:       *nameFlag,
		PrivateKey: privateKey,
		Priority:   *priorityFlag,
		Enabled:    !*disabledFlag,
		Thresholds: models.WalletThresholds{
			MinNative: minNative,
			MinToken:  minToken,
			MinEnergy: *minEnergyFlag,
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAddress) {
			zap.L().Fatal("A wallet with this address is already in the pool")
		}
		zap.L().Fatal("Failed to add wallet", zap.Error(err))
	}

	printWallet(wallet)

	if *refreshFlag {
		result, err := walletService.Refresh(ctx, wallet.Id)
		if err != nil {
			zap.L().Error("Wallet added but refresh failed", zap.Error(err))
			fmt.Println("Wallet added, but its on-chain state could not be read yet")
			return
		}
		printRefresh(result)
	}

	fmt.Println("Wallet added successfully!")
}
