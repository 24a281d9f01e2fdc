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

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/store"
	"tron-payout-go/internal/wallets"

	"go.uber.org/zap"
)

const usage = `Usage: walletctl --wallet <id|name|address> <command>

Commands:
  enable         return the wallet to the selection pool
  disable        take the wallet out of the selection pool
  reset-health   clear the failure streak and mark the wallet healthy
  priority       set the selection priority (with --priority)
  delete         remove the wallet and its sealed key
`

func run(ctx context.Context, svc *wallets.Service, command, walletId string, priority int) error {
	switch command {
	case "enable":
		return svc.SetEnabled(ctx, walletId, true)
	case "disable":
		return svc.SetEnabled(ctx, walletId, false)
	case "reset-health":
		return svc.ResetHealth(ctx, walletId)
	case "priority":
		if priority < 0 || priority > 100 {
			return fmt.Errorf("--priority must be between 0 and 100, got %d", priority)
		}
		return svc.SetPriority(ctx, walletId, priority)
	case "delete":
		return svc.Delete(ctx, walletId)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet id, name or address (required)")
	priorityFlag := flag.Int("priority", -1, "New priority for the priority command")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *walletFlag == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	svc := wallets.NewService(dbService, nil, nil, 0)

	wallet, err := svc.Resolve(ctx, *walletFlag)
	if err != nil {
		zap.L().Fatal("Wallet not found", zap.String("wallet", *walletFlag), zap.Error(err))
	}

	if err := run(ctx, svc, command, wallet.Id, *priorityFlag); err != nil {
		if errors.Is(err, store.ErrLastEnabledWallet) {
			fmt.Println("✗ Refusing: this is the last enabled wallet in the pool")
		}
		zap.L().Fatal("Command failed",
			zap.String("command", command),
			zap.String("wallet_id", wallet.Id),
			zap.Error(err))
	}

	fmt.Printf("✓ %s: %s (%s)\n", command, wallet.Name, wallet.Address)
}
