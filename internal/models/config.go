package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Vault    VaultConfig
	Gateway  GatewayConfig
	Energy   EnergyConfig
	Transfer TransferConfig
	Orders   OrderConfig
	Listener ListenerConfig
	Metrics  MetricsConfig
	Formance FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// VaultConfig holds the process-wide master secret used to seal wallet keys
type VaultConfig struct {
	MasterSecret string
}

// NodeEndpoint is one configured TRON full node
type NodeEndpoint struct {
	Name     string `yaml:"name"`
	Url      string `yaml:"url"`
	ApiKey   string `yaml:"api_key"`
	Priority int    `yaml:"priority"`
	Enabled  bool   `yaml:"enabled"`
}

// GatewayConfig holds RPC gateway settings
type GatewayConfig struct {
	Nodes         []NodeEndpoint
	NodesFile     string
	TokenContract string
	CallTimeout   time.Duration
	ProbeTimeout  time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	RateLimit     float64
	RateBurst     int
}

// EnergyMode selects how wallets are topped up with energy before token transfers
type EnergyMode string

const (
	EnergyModeNone     EnergyMode = "none"
	EnergyModeTransfer EnergyMode = "transfer"
	EnergyModeMarket   EnergyMode = "market"
)

// EnergyConfig holds energy provisioning settings
type EnergyConfig struct {
	Mode            EnergyMode
	WarmRequired    int64
	ColdRequired    int64
	RentalAddress   string
	RentalAmount    decimal.Decimal
	TransferWait    time.Duration
	MarketUrl       string
	MarketApiKey    string
	MarketSmallTier int64
	MarketLargeTier int64
	MarketDuration  string
	MarketWait      time.Duration
	DestinationTTL  time.Duration
}

// TransferConfig holds transfer execution settings
type TransferConfig struct {
	FeeLimit   decimal.Decimal
	FeeReserve decimal.Decimal
}

// OrderConfig holds order retry settings
type OrderConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// ListenerConfig holds background loop settings
type ListenerConfig struct {
	PollingInterval       time.Duration
	WalletRefreshInterval time.Duration
	PendingOrderGrace     time.Duration
	RefreshConcurrency    int
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Addr string
}

// FormanceConfig holds connection settings for the optional payout journal.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether a Formance stack has been configured
func (f FormanceConfig) Enabled() bool {
	return f.StackURL != "" && f.ClientID != "" && f.ClientSecret != ""
}
