package common

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tron-payout-go/internal/api"
	"tron-payout-go/internal/database"
	"tron-payout-go/internal/energy"
	"tron-payout-go/internal/executor"
	"tron-payout-go/internal/formance"
	"tron-payout-go/internal/gateway"
	"tron-payout-go/internal/keyvault"
	"tron-payout-go/internal/models"
	"tron-payout-go/internal/notify"
	"tron-payout-go/internal/orchestrator"
	"tron-payout-go/internal/resources"
	"tron-payout-go/internal/selector"
	"tron-payout-go/internal/wallets"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

const notifyTimeout = 30 * time.Second

// Services is the fully wired payout engine.
type Services struct {
	DbService    *database.Service
	Vault        *keyvault.Vault
	Gateway      *gateway.Gateway
	Monitor      *resources.Monitor
	Provisioner  *energy.Provisioner
	Selector     *selector.Selector
	Executor     *executor.Executor
	Wallets      *wallets.Service
	Notifier     *notify.Dispatcher
	Orchestrator *orchestrator.Orchestrator
	Payouts      *api.PayoutService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database, connects to the first healthy node
// and assembles every component of the engine.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	chain, err := InitializeChain(ctx, cfg)
	if err != nil {
		return nil, err
	}
	services := chain

	strategy, err := energy.NewStrategy(chain.Gateway, chain.Monitor, cfg.Energy)
	if err != nil {
		services.Close()
		return nil, err
	}
	if strategy == nil {
		zap.L().Warn("Energy provisioning disabled, token transfers will burn TRX for energy")
	} else {
		zap.L().Info("Energy provisioning enabled", zap.String("mode", string(strategy.Mode())))
	}
	services.Provisioner = energy.NewProvisioner(chain.Monitor, strategy, cfg.Energy)

	services.Selector = selector.New(chain.DbService)
	services.Executor = executor.New(chain.Vault, chain.Gateway, chain.Monitor, services.Provisioner, chain.DbService, cfg.Transfer)

	notifiers := []notify.Notifier{notify.LogNotifier{}}
	if cfg.Formance.Enabled() {
		journal, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("unable to initialize formance journal: %w", err)
		}
		notifiers = append(notifiers, journal)
	}
	services.Notifier = notify.NewDispatcher(notifyTimeout, notifiers...)

	services.Orchestrator = orchestrator.New(chain.DbService, services.Selector, services.Executor, cfg, orchestrator.Options{
		Refresher: chain.Wallets,
		Notifier:  services.Notifier,
	})
	services.Payouts = api.NewPayoutService(chain.DbService, chain.Gateway, services.Selector, services.Orchestrator)

	zap.L().Info("Payout engine initialized",
		zap.String("rpc_endpoint", chain.Gateway.Current()),
		zap.String("token_contract", cfg.Gateway.TokenContract),
		zap.Int("max_retries", cfg.Orders.MaxRetries))

	return services, nil
}

// InitializeChain wires the pieces needed to manage the wallet pool: database,
// vault, gateway, monitor and the wallet service. No orders are processed.
func InitializeChain(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	vault, err := keyvault.NewVault(cfg.Vault.MasterSecret)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Connecting to TRON nodes", zap.Int("configured", len(cfg.Gateway.Nodes)))
	gw, err := gateway.New(cfg.Gateway, gateway.DialTron)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	if err := gw.Init(ctx); err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Using RPC endpoint", zap.String("endpoint", gw.Current()))

	monitor := resources.NewMonitor(gw, cfg.Gateway.TokenContract, cfg.Energy.DestinationTTL)

	return &Services{
		DbService: dbService,
		Vault:     vault,
		Gateway:   gw,
		Monitor:   monitor,
		Wallets:   wallets.NewService(dbService, vault, monitor, cfg.Listener.RefreshConcurrency),
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without chain access
// Useful for read-only operations like listing wallets and orders
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close stops background work first, then releases connections.
func (cs *Services) Close() {
	if cs.Orchestrator != nil {
		cs.Orchestrator.Stop()
	}
	if cs.Notifier != nil {
		cs.Notifier.Wait()
	}
	if cs.Gateway != nil {
		cs.Gateway.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
