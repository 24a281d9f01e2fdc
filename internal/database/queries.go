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

const walletColumns = `
		id, name, address, encrypted_key, enabled, priority,
		native_balance, token_balance,
		energy_limit, energy_used, energy_available,
		bandwidth_limit, bandwidth_used, bandwidth_available,
		health, consecutive_failures,
		tx_count, success_count, fail_count, native_volume, token_volume, last_used_at,
		min_native, min_token, min_energy,
		balances_updated_at, created_at, updated_at`

const orderColumns = `
		id, coin, amount, destination, transfer_status, wallet_id, wallet_name,
		tx_hash, transfer_time, transfer_attempts, last_error, created_at, updated_at`

const (
	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallets (id, name, address, encrypted_key, enabled, priority, health,
		                     min_native, min_token, min_energy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWallet = `
		SELECT` + walletColumns + `
		FROM wallets
		WHERE id = ?`

	queryListWallets = `
		SELECT` + walletColumns + `
		FROM wallets
		ORDER BY priority DESC, created_at`

	queryListEnabledWallets = `
		SELECT` + walletColumns + `
		FROM wallets
		WHERE enabled = 1
		ORDER BY priority DESC, created_at`

	queryCountEnabledWallets = `
		SELECT COUNT(*) FROM wallets WHERE enabled = 1`

	queryGetWalletEnabled = `
		SELECT enabled FROM wallets WHERE id = ?`

	querySetWalletEnabled = `
		UPDATE wallets
		SET enabled = ?, health = ?, consecutive_failures = 0, version = version + 1, updated_at = ?
		WHERE id = ?`

	querySetWalletPriority = `
		UPDATE wallets
		SET priority = ?, version = version + 1, updated_at = ?
		WHERE id = ?`

	queryUpdateWalletKey = `
		UPDATE wallets
		SET encrypted_key = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND encrypted_key = ?`

	queryDeleteWallet = `
		DELETE FROM wallets WHERE id = ?`

	queryResetWalletHealth = `
		UPDATE wallets
		SET health = CASE WHEN enabled = 1 THEN 'healthy' ELSE 'disabled' END,
		    consecutive_failures = 0, version = version + 1, updated_at = ?
		WHERE id = ?`

	queryUpdateWalletSnapshot = `
		UPDATE wallets
		SET native_balance = ?, token_balance = ?,
		    energy_limit = ?, energy_used = ?, energy_available = ?,
		    bandwidth_limit = ?, bandwidth_used = ?, bandwidth_available = ?,
		    health = CASE WHEN enabled = 1 THEN ? ELSE 'disabled' END,
		    consecutive_failures = 0,
		    balances_updated_at = ?, version = version + 1, updated_at = ?
		WHERE id = ?`

	queryGetWalletStats = `
		SELECT tx_count, success_count, fail_count, native_volume, token_volume,
		       consecutive_failures, health, version
		FROM wallets
		WHERE id = ?`

	queryUpdateWalletStats = `
		UPDATE wallets
		SET tx_count = ?, success_count = ?, fail_count = ?,
		    native_volume = ?, token_volume = ?, last_used_at = ?,
		    consecutive_failures = ?, health = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Order queries
	queryInsertOrder = `
		INSERT INTO orders (id, coin, amount, destination, transfer_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)`

	queryGetOrder = `
		SELECT` + orderColumns + `
		FROM orders
		WHERE id = ?`

	queryClaimOrder = `
		UPDATE orders
		SET transfer_status = 'processing',
		    transfer_attempts = CASE WHEN transfer_status = 'failed' THEN 0 ELSE transfer_attempts END,
		    updated_at = ?
		WHERE id = ? AND transfer_status IN ('pending', 'failed')`

	queryUpdateOrder = `
		UPDATE orders
		SET transfer_status = ?, wallet_id = ?, wallet_name = ?, tx_hash = ?,
		    transfer_time = ?, transfer_attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ?`

	queryListOrdersByStatus = `
		SELECT` + orderColumns + `
		FROM orders
		WHERE transfer_status = ? AND updated_at <= ?
		ORDER BY created_at`
)
