package main

import (
	"context"
	"flag"
	"fmt"

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/database"
	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"
	"tron-payout-go/internal/wallets"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// printMasterSecret generates a fresh secret for a new deployment
func printMasterSecret() {
	secret, err := keyvault.GenerateMasterSecret()
	if err != nil {
		zap.L().Fatal("Failed to generate master secret", zap.Error(err))
	}

	common.PrintHeader("MASTER SECRET", common.DefaultWidth)
	fmt.Println("Add this to your .env before adding wallets. It cannot be recovered:")
	fmt.Println()
	fmt.Printf("MASTER_SECRET=%s\n", secret)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

// seedDemoOrder records a pending order the payout daemon will pick up
func seedDemoOrder(ctx context.Context, dbService *database.Service, destination, amount string) {
	if err := gateway.ValidateAddress(destination); err != nil {
		zap.L().Fatal("Invalid demo destination", zap.String("destination", destination), zap.Error(err))
	}
	value, err := decimal.NewFromString(amount)
	if err != nil || !value.IsPositive() {
		zap.L().Fatal("Invalid demo amount", zap.String("amount", amount))
	}

	order, err := dbService.CreateOrder(ctx, store.CreateOrderParams{
		Coin:        models.CoinUSDT,
		Amount:      value,
		Destination: destination,
	})
	if err != nil {
		zap.L().Fatal("Failed to create demo order", zap.Error(err))
	}

	zap.L().Info("Demo order created",
		zap.String("order_id", order.Id),
		zap.String("amount", order.Amount.String()),
		zap.String("destination", order.Destination))
	fmt.Printf("✓ Demo order %s: %s to %s\n", order.Id, common.FormatAmount(order.Amount, order.Coin), order.Destination)
}

// rotateSecret re-seals every wallet key under a new master secret
func rotateSecret(ctx context.Context, dbService *database.Service, currentSecret, nextSecret string) {
	current, err := keyvault.NewVault(currentSecret)
	if err != nil {
		zap.L().Fatal("Current MASTER_SECRET is not usable", zap.Error(err))
	}
	next, err := keyvault.NewVault(nextSecret)
	if err != nil {
		zap.L().Fatal("New master secret is not usable", zap.Error(err))
	}

	rotated, err := wallets.NewService(dbService, current, nil, 0).RotateKeys(ctx, current, next)
	if err != nil {
		zap.L().Fatal("Key rotation stopped",
			zap.Int("rotated", rotated),
			zap.Error(err))
	}

	fmt.Printf("✓ Re-sealed %d wallet keys. Update MASTER_SECRET before restarting the daemon.\n", rotated)
}

func runInit(ctx context.Context, dbService *database.Service, cfg *models.Config) {
	zap.L().Info("Initializing database")

	enabled, err := dbService.ListEnabledWallets(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read wallet pool", zap.Error(err))
	}

	if cfg.Vault.MasterSecret == "" {
		printMasterSecret()
	}

	zap.L().Info("Initialization complete",
		zap.String("database", cfg.Database.Path),
		zap.Int("enabled_wallets", len(enabled)))
	if len(enabled) == 0 {
		fmt.Println("No wallets in the pool yet. Add one with: go run cmd/addwallet/main.go --name hot-1 --key <hex>")
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	newSecretFlag := flag.Bool("new-secret", false, "Print a freshly generated master secret and exit")
	demoDestination := flag.String("demo-destination", "", "Seed a pending USDT order to this address")
	demoAmount := flag.String("demo-amount", "1", "Amount for the demo order")
	rotateFlag := flag.String("rotate-secret", "", "Re-seal all wallet keys under this new master secret")
	flag.Parse()

	if *newSecretFlag {
		printMasterSecret()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database creates the schema
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	runInit(ctx, dbService, cfg)

	if *rotateFlag != "" {
		rotateSecret(ctx, dbService, cfg.Vault.MasterSecret, *rotateFlag)
	}
	if *demoDestination != "" {
		seedDemoOrder(ctx, dbService, *demoDestination, *demoAmount)
	}
}
