package store

import (
	"context"
	"errors"
	"time"

	"tron-payout-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateAddress       = errors.New("wallet address already in pool")
	ErrLastEnabledWallet      = errors.New("cannot disable or delete the last enabled wallet")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// CreateWalletParams contains the parameters for adding a wallet to the pool.
type CreateWalletParams struct {
	Name         string
	Address      string
	EncryptedKey string
	Priority     int
	Enabled      bool
	Thresholds   models.WalletThresholds
}

// WalletSnapshotParams captures freshly observed chain state for a wallet.
type WalletSnapshotParams struct {
	WalletId      string
	NativeBalance decimal.Decimal
	TokenBalance  decimal.Decimal
	Resources     models.WalletResources
	Health        models.WalletHealth
	ObservedAt    time.Time
}

// CreateOrderParams contains the parameters for recording a paid order.
type CreateOrderParams struct {
	Id          string // optional; generated when empty
	Coin        models.Coin
	Amount      decimal.Decimal
	Destination string
}

// WalletStore defines the contract for the custodial wallet pool.
type WalletStore interface {
	CreateWallet(ctx context.Context, params CreateWalletParams) (*models.Wallet, error)
	GetWallet(ctx context.Context, walletId string) (*models.Wallet, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	ListEnabledWallets(ctx context.Context) ([]models.Wallet, error)
	SetEnabled(ctx context.Context, walletId string, enabled bool) error
	SetPriority(ctx context.Context, walletId string, priority int) error
	DeleteWallet(ctx context.Context, walletId string) error
	ResetHealth(ctx context.Context, walletId string) error
	UpdateEncryptedKey(ctx context.Context, walletId, previous, next string) error
	UpdateSnapshot(ctx context.Context, params WalletSnapshotParams) error
	RecordTransferOutcome(ctx context.Context, walletId string, outcome models.TransferOutcome) error
}

// OrderStore defines the contract for the orders the engine pays out.
type OrderStore interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*models.Order, error)
	FindOrder(ctx context.Context, orderId string) (*models.Order, error)
	// ClaimOrder moves an order from pending or failed into processing and
	// returns false if another caller got there first. Claiming a failed
	// order resets its attempt counter.
	ClaimOrder(ctx context.Context, orderId string) (bool, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time) ([]models.Order, error)
}

// Store is the full persistence contract.
type Store interface {
	WalletStore
	OrderStore
	Ping(ctx context.Context) error
	Close()
}
