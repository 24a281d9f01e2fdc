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
	"errors"
	"fmt"
	"time"

	"tron-payout-go/internal/models"
	"tron-payout-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var health string
	var nativeBalance, tokenBalance, nativeVolume, tokenVolume, minNative, minToken string
	var lastUsedAt, balancesUpdatedAt sql.NullTime

	err := row.Scan(
		&w.Id, &w.Name, &w.Address, &w.EncryptedKey, &w.Enabled, &w.Priority,
		&nativeBalance, &tokenBalance,
		&w.Resources.EnergyLimit, &w.Resources.EnergyUsed, &w.Resources.EnergyAvailable,
		&w.Resources.BandwidthLimit, &w.Resources.BandwidthUsed, &w.Resources.BandwidthAvailable,
		&health, &w.ConsecutiveFailures,
		&w.Stats.TxCount, &w.Stats.SuccessCount, &w.Stats.FailCount, &nativeVolume, &tokenVolume, &lastUsedAt,
		&minNative, &minToken, &w.Thresholds.MinEnergy,
		&balancesUpdatedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.Health = models.WalletHealth(health)
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		w.Stats.LastUsedAt = &t
	}
	if balancesUpdatedAt.Valid {
		t := balancesUpdatedAt.Time
		w.BalancesUpdatedAt = &t
	}

	decimals := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"native_balance", nativeBalance, &w.NativeBalance},
		{"token_balance", tokenBalance, &w.TokenBalance},
		{"native_volume", nativeVolume, &w.Stats.NativeVolume},
		{"token_volume", tokenVolume, &w.Stats.TokenVolume},
		{"min_native", minNative, &w.Thresholds.MinNative},
		{"min_token", minToken, &w.Thresholds.MinToken},
	}
	for _, d := range decimals {
		v, err := decimal.NewFromString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s '%s': %w", d.name, d.raw, err)
		}
		*d.dst = v
	}

	return &w, nil
}

func (s *Service) CreateWallet(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, error) {
	zap.L().Info("Creating wallet",
		zap.String("name", params.Name),
		zap.String("address", params.Address),
		zap.Int("priority", params.Priority))

	health := models.HealthHealthy
	if !params.Enabled {
		health = models.HealthDisabled
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertWallet,
		id, params.Name, params.Address, params.EncryptedKey, params.Enabled, params.Priority, string(health),
		params.Thresholds.MinNative.String(), params.Thresholds.MinToken.String(), params.Thresholds.MinEnergy,
		now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateAddress, params.Address)
		}
		zap.L().Error("Failed to insert wallet", zap.String("address", params.Address), zap.Error(err))
		return nil, fmt.Errorf("unable to insert wallet: %w", err)
	}

	return s.GetWallet(ctx, id)
}

func (s *Service) GetWallet(ctx context.Context, walletId string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, walletId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrWalletNotFound, walletId)
		}
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	return s.queryWallets(ctx, queryListWallets)
}

func (s *Service) ListEnabledWallets(ctx context.Context) ([]models.Wallet, error) {
	return s.queryWallets(ctx, queryListEnabledWallets)
}

func (s *Service) queryWallets(ctx context.Context, query string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		zap.L().Error("Failed to query wallets", zap.Error(err))
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}

	zap.L().Debug("Retrieved wallets", zap.Int("count", len(wallets)))
	return wallets, nil
}

// SetEnabled toggles a wallet. Disabling the only enabled wallet fails with
// store.ErrLastEnabledWallet; the check and the update share one transaction.
func (s *Service) SetEnabled(ctx context.Context, walletId string, enabled bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if !enabled {
		if err := guardLastEnabled(ctx, tx, walletId); err != nil {
			return err
		}
	}

	health := models.HealthHealthy
	if !enabled {
		health = models.HealthDisabled
	}

	result, err := tx.ExecContext(ctx, querySetWalletEnabled, enabled, string(health), time.Now().UTC(), walletId)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if err := expectOneRow(result, walletId); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Wallet enabled state changed",
		zap.String("wallet_id", walletId),
		zap.Bool("enabled", enabled))
	return nil
}

func (s *Service) SetPriority(ctx context.Context, walletId string, priority int) error {
	if priority < 0 || priority > 100 {
		return fmt.Errorf("priority must be between 0 and 100, got %d", priority)
	}
	result, err := s.db.ExecContext(ctx, querySetWalletPriority, priority, time.Now().UTC(), walletId)
	if err != nil {
		return fmt.Errorf("failed to update wallet priority: %w", err)
	}
	return expectOneRow(result, walletId)
}

// UpdateEncryptedKey swaps a wallet's sealed key, provided it still holds previous.
func (s *Service) UpdateEncryptedKey(ctx context.Context, walletId, previous, next string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateWalletKey, next, time.Now().UTC(), walletId, previous)
	if err != nil {
		return fmt.Errorf("failed to update wallet key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetWallet(ctx, walletId); err != nil {
			return err
		}
		return store.ErrConcurrentModification
	}
	return nil
}

func (s *Service) DeleteWallet(ctx context.Context, walletId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardLastEnabled(ctx, tx, walletId); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, queryDeleteWallet, walletId)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if err := expectOneRow(result, walletId); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Wallet deleted", zap.String("wallet_id", walletId))
	return nil
}

func (s *Service) ResetHealth(ctx context.Context, walletId string) error {
	result, err := s.db.ExecContext(ctx, queryResetWalletHealth, time.Now().UTC(), walletId)
	if err != nil {
		return fmt.Errorf("failed to reset wallet health: %w", err)
	}
	if err := expectOneRow(result, walletId); err != nil {
		return err
	}
	zap.L().Info("Wallet health reset", zap.String("wallet_id", walletId))
	return nil
}

// UpdateSnapshot stores a successful refresh. It clears the failure streak,
// which is one of the two ways out of the error state.
func (s *Service) UpdateSnapshot(ctx context.Context, params store.WalletSnapshotParams) error {
	r := params.Resources
	result, err := s.db.ExecContext(ctx, queryUpdateWalletSnapshot,
		params.NativeBalance.String(), params.TokenBalance.String(),
		r.EnergyLimit, r.EnergyUsed, r.EnergyAvailable,
		r.BandwidthLimit, r.BandwidthUsed, r.BandwidthAvailable,
		string(params.Health),
		params.ObservedAt.UTC(), time.Now().UTC(), params.WalletId)
	if err != nil {
		return fmt.Errorf("failed to update wallet snapshot: %w", err)
	}
	return expectOneRow(result, params.WalletId)
}

// RecordTransferOutcome folds one transfer attempt into the wallet's
// statistics. Concurrent writers may overwrite each other's counters.
func (s *Service) RecordTransferOutcome(ctx context.Context, walletId string, outcome models.TransferOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stats models.WalletStats
	var nativeVolume, tokenVolume, health string
	var failures int
	var version int64
	err = tx.QueryRowContext(ctx, queryGetWalletStats, walletId).Scan(
		&stats.TxCount, &stats.SuccessCount, &stats.FailCount, &nativeVolume, &tokenVolume,
		&failures, &health, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrWalletNotFound, walletId)
		}
		return fmt.Errorf("failed to read wallet stats: %w", err)
	}

	stats.NativeVolume, err = decimal.NewFromString(nativeVolume)
	if err != nil {
		return fmt.Errorf("failed to parse native_volume '%s': %w", nativeVolume, err)
	}
	stats.TokenVolume, err = decimal.NewFromString(tokenVolume)
	if err != nil {
		return fmt.Errorf("failed to parse token_volume '%s': %w", tokenVolume, err)
	}

	stats.TxCount++
	newHealth := models.WalletHealth(health)
	if outcome.Success {
		stats.SuccessCount++
		failures = 0
		if outcome.Coin == models.CoinTRX {
			stats.NativeVolume = stats.NativeVolume.Add(outcome.Amount)
		} else {
			stats.TokenVolume = stats.TokenVolume.Add(outcome.Amount)
		}
	} else {
		stats.FailCount++
		failures++
		if failures >= models.MaxConsecutiveFailures && newHealth != models.HealthDisabled {
			newHealth = models.HealthError
		}
	}

	occurred := outcome.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}

	result, err := tx.ExecContext(ctx, queryUpdateWalletStats,
		stats.TxCount, stats.SuccessCount, stats.FailCount,
		stats.NativeVolume.String(), stats.TokenVolume.String(), occurred.UTC(),
		failures, string(newHealth), time.Now().UTC(),
		walletId, version)
	if err != nil {
		return fmt.Errorf("failed to update wallet stats: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet stats update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if newHealth == models.HealthError && models.WalletHealth(health) != models.HealthError {
		zap.L().Warn("Wallet moved to error health after consecutive failures",
			zap.String("wallet_id", walletId),
			zap.Int("consecutive_failures", failures))
	}
	return nil
}

func guardLastEnabled(ctx context.Context, tx *sql.Tx, walletId string) error {
	var enabled bool
	err := tx.QueryRowContext(ctx, queryGetWalletEnabled, walletId).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrWalletNotFound, walletId)
		}
		return fmt.Errorf("failed to read wallet: %w", err)
	}
	if !enabled {
		return nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, queryCountEnabledWallets).Scan(&count); err != nil {
		return fmt.Errorf("failed to count enabled wallets: %w", err)
	}
	if count <= 1 {
		return store.ErrLastEnabledWallet
	}
	return nil
}

func expectOneRow(result sql.Result, walletId string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrWalletNotFound, walletId)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
