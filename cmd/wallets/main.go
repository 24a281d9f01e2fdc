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
	"flag"
	"fmt"
	"strings"

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/selector"
	"tron-payout-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type poolStats struct {
	totalWallets   int
	enabledWallets int
	totalNative    decimal.Decimal
	totalToken     decimal.Decimal
	byHealth       map[models.WalletHealth]int
}

func printWalletHeader(wallet models.Wallet) {
	state := "enabled"
	if !wallet.Enabled {
		state = "disabled"
	}
	fmt.Printf("\n┌─ %s %s (%s, priority %d)\n", common.HealthIcon(wallet.Health), wallet.Name, state, wallet.Priority)
	fmt.Printf("│  ID: %s\n", wallet.Id)
	fmt.Printf("│  Address: %s\n", wallet.Address)
	common.PrintBoxSeparator(78)
}

func printWalletDetails(wallet models.Wallet) {
	lines := []string{
		fmt.Sprintf("%-12s: %s", "TRX", common.FormatAmount(wallet.NativeBalance, models.CoinTRX)),
		fmt.Sprintf("%-12s: %s", "USDT", common.FormatAmount(wallet.TokenBalance, models.CoinUSDT)),
		fmt.Sprintf("%-12s: %d / %d", "Energy", wallet.Resources.EnergyAvailable, wallet.Resources.EnergyLimit),
		fmt.Sprintf("%-12s: %d / %d", "Bandwidth", wallet.Resources.BandwidthAvailable, wallet.Resources.BandwidthLimit),
		fmt.Sprintf("%-12s: %s (failures: %d)", "Health", wallet.Health, wallet.ConsecutiveFailures),
		fmt.Sprintf("%-12s: %d ok / %d failed", "Transfers", wallet.Stats.SuccessCount, wallet.Stats.FailCount),
		fmt.Sprintf("%-12s: %s TRX, %s USDT", "Volume", wallet.Stats.NativeVolume, wallet.Stats.TokenVolume),
		fmt.Sprintf("%-12s: %s", "Last used", common.FormatTime(wallet.Stats.LastUsedAt)),
		fmt.Sprintf("%-12s: %s", "Refreshed", common.FormatTime(wallet.BalancesUpdatedAt)),
	}
	for i, line := range lines {
		fmt.Printf("%s %s\n", common.BoxPrefix(i == len(lines)-1), line)
	}
}

func generateReport(walletList []models.Wallet) poolStats {
	stats := poolStats{byHealth: make(map[models.WalletHealth]int)}

	for _, wallet := range walletList {
		stats.totalWallets++
		if wallet.Enabled {
			stats.enabledWallets++
		}
		stats.totalNative = stats.totalNative.Add(wallet.NativeBalance)
		stats.totalToken = stats.totalToken.Add(wallet.TokenBalance)
		stats.byHealth[wallet.Health]++

		printWalletHeader(wallet)
		printWalletDetails(wallet)
	}

	return stats
}

func printScores(ctx context.Context, walletStore store.WalletStore, coin models.Coin, amount, feeReserve decimal.Decimal) error {
	ranked, err := selector.New(walletStore).Rank(ctx, models.SelectionCriteria{
		Amount:     amount,
		Coin:       coin,
		FeeReserve: feeReserve,
	})
	if err != nil {
		return err
	}

	common.PrintHeader(fmt.Sprintf("SELECTION SCORES FOR %s", common.FormatAmount(amount, coin)), common.DefaultWidth)
	if len(ranked) == 0 {
		fmt.Println("No eligible wallet")
	}
	for i, s := range ranked {
		fmt.Printf("%d. %-20s total=%5.1f  priority=%4.1f balance=%4.1f idle=%4.1f health=%4.1f\n",
			i+1, s.Wallet.Name, s.Total, s.Priority, s.Balance, s.Idle, s.Health)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Filter by wallet id, name or address (optional)")
	refreshFlag := flag.Bool("refresh", false, "Read on-chain state before reporting")
	coinFlag := flag.String("coin", "", "Show selection scores for a transfer of this coin")
	amountFlag := flag.String("amount", "", "Amount used with --coin")
	flag.Parse()

	logger.Info("Starting wallet pool report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	var walletStore store.WalletStore
	if *refreshFlag {
		services, err := common.InitializeChain(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize services", zap.Error(err))
		}
		defer services.Close()

		results, err := services.Wallets.RefreshAll(ctx)
		if err != nil {
			logger.Fatal("Failed to refresh wallets", zap.Error(err))
		}
		for _, r := range results {
			if r.Error != "" {
				logger.Warn("Wallet refresh failed",
					zap.String("wallet_id", r.WalletId),
					zap.String("error", r.Error))
			}
		}
		walletStore = services.DbService
	} else {
		// Reporting from stored snapshots needs no node
		logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbService.Close()
		walletStore = dbService
	}

	walletList, err := common.LoadWallets(ctx, walletStore, *walletFlag, logger)
	if err != nil {
		logger.Fatal("Failed to load wallets", zap.Error(err))
	}

	common.PrintHeader("WALLET POOL REPORT", common.DefaultWidth)
	stats := generateReport(walletList)

	healthParts := make([]string, 0, len(stats.byHealth))
	for _, h := range []models.WalletHealth{models.HealthHealthy, models.HealthWarning, models.HealthError, models.HealthDisabled} {
		if n := stats.byHealth[h]; n > 0 {
			healthParts = append(healthParts, fmt.Sprintf("%d %s", n, h))
		}
	}
	summary := fmt.Sprintf("SUMMARY: %d wallets (%d enabled; %s) holding %s and %s",
		stats.totalWallets, stats.enabledWallets, strings.Join(healthParts, ", "),
		common.FormatAmount(stats.totalNative, models.CoinTRX),
		common.FormatAmount(stats.totalToken, models.CoinUSDT))
	common.PrintFooter(summary, common.DefaultWidth)

	if *coinFlag != "" {
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil || !amount.IsPositive() {
			logger.Fatal("--amount must be a positive number when --coin is set", zap.String("amount", *amountFlag))
		}
		coin := models.Coin(strings.ToUpper(*coinFlag))
		if err := printScores(ctx, walletStore, coin, amount, cfg.Transfer.FeeReserve); err != nil {
			logger.Fatal("Failed to score wallets", zap.Error(err))
		}
	}

	logger.Info("Wallet pool report completed",
		zap.Int("wallets", stats.totalWallets),
		zap.Int("enabled", stats.enabledWallets))
}
