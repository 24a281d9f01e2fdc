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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// newServiceFromDB wraps an already opened handle, used by tests.
func newServiceFromDB(ctx context.Context, db *sql.DB) (*Service, error) {
	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Custodial wallet pool
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL UNIQUE,
		encrypted_key TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 50,
		native_balance TEXT NOT NULL DEFAULT '0',
		token_balance TEXT NOT NULL DEFAULT '0',
		energy_limit INTEGER NOT NULL DEFAULT 0,
		energy_used INTEGER NOT NULL DEFAULT 0,
		energy_available INTEGER NOT NULL DEFAULT 0,
		bandwidth_limit INTEGER NOT NULL DEFAULT 0,
		bandwidth_used INTEGER NOT NULL DEFAULT 0,
		bandwidth_available INTEGER NOT NULL DEFAULT 0,
		health TEXT NOT NULL DEFAULT 'healthy',
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		tx_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		fail_count INTEGER NOT NULL DEFAULT 0,
		native_volume TEXT NOT NULL DEFAULT '0',
		token_volume TEXT NOT NULL DEFAULT '0',
		last_used_at TIMESTAMP,
		min_native TEXT NOT NULL DEFAULT '0',
		min_token TEXT NOT NULL DEFAULT '0',
		min_energy INTEGER NOT NULL DEFAULT 0,
		balances_updated_at TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_enabled ON wallets(enabled);

	-- Paid orders awaiting or holding an on-chain payout
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		coin TEXT NOT NULL,
		amount TEXT NOT NULL,
		destination TEXT NOT NULL,
		transfer_status TEXT NOT NULL DEFAULT 'pending',
		wallet_id TEXT NOT NULL DEFAULT '',
		wallet_name TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		transfer_time TIMESTAMP,
		transfer_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(transfer_status, updated_at);
	CREATE INDEX IF NOT EXISTS idx_orders_tx_hash ON orders(tx_hash);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
