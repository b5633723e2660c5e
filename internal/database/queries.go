/**
 * Copyright 2025-present UBT Platform, Inc.
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

const (
	// Address pool queries
	queryInsertAddress = `
		INSERT INTO deposit_addresses (id, address, currency)
		VALUES (?, ?, ?)
		RETURNING id, address, currency, assigned_to, assigned_at, active, created_at`

	queryGetAssignedAddress = `
		SELECT id, address, currency, assigned_to, assigned_at, active, created_at
		FROM deposit_addresses
		WHERE assigned_to = ? AND currency = ?`

	// The claim is a single conditional update: the inner SELECT picks the
	// oldest unassigned address and the outer WHERE re-checks the null
	// predicate, so two concurrent claims can never take the same row.
	queryClaimAddress = `
		UPDATE deposit_addresses
		SET assigned_to = ?, assigned_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM deposit_addresses
			WHERE currency = ? AND assigned_to IS NULL AND active = 1
			ORDER BY rowid
			LIMIT 1
		) AND assigned_to IS NULL
		RETURNING id, address, currency, assigned_to, assigned_at, active, created_at`

	queryRetireAddress = `
		UPDATE deposit_addresses SET active = 0 WHERE address = ?`

	queryCountUnassigned = `
		SELECT COUNT(*) FROM deposit_addresses
		WHERE currency = ? AND assigned_to IS NULL AND active = 1`

	// Ledger queries
	queryInsertTransaction = `
		INSERT INTO ledger_transactions (
			id, user_id, kind, currency, amount,
			target_currency, target_amount, rate_used, reference, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`

	queryInsertStatusChange = `
		INSERT INTO transaction_status_history (id, transaction_id, status, note)
		VALUES (?, ?, ?, ?)`

	// Only pending transactions can move; completed and failed are terminal.
	queryFinishTransaction = `
		UPDATE ledger_transactions
		SET status = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryCreditBalance = `
		INSERT INTO balances (id, user_id, currency, amount, last_transaction_id, version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(user_id, currency) DO UPDATE SET
			amount = amount + excluded.amount,
			last_transaction_id = excluded.last_transaction_id,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP`

	// Check-and-decrement in one statement; the amount >= ? predicate is
	// evaluated at commit time, never at an earlier read.
	queryDebitBalance = `
		UPDATE balances
		SET amount = amount - ?, last_transaction_id = ?, version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND currency = ? AND amount >= ?`

	queryGetUserBalances = `
		SELECT currency, amount FROM balances
		WHERE user_id = ?
		ORDER BY currency`

	queryGetTransaction = `
		SELECT id, user_id, kind, currency, amount, target_currency, target_amount,
		       rate_used, reference, status, created_at, completed_at
		FROM ledger_transactions
		WHERE id = ?`

	queryGetStatusHistory = `
		SELECT status, note, created_at
		FROM transaction_status_history
		WHERE transaction_id = ?
		ORDER BY created_at, rowid`

	queryGetTransactionHistory = `
		SELECT id, user_id, kind, currency, amount, target_currency, target_amount,
		       rate_used, reference, status, created_at, completed_at
		FROM ledger_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	// Replays the completed transaction log for one currency, counting both
	// direct legs and exchange target legs.
	queryReconcileBalance = `
		SELECT COALESCE((
			SELECT SUM(amount) FROM ledger_transactions
			WHERE user_id = ?1 AND currency = ?2 AND status = 'completed'
		), 0) + COALESCE((
			SELECT SUM(target_amount) FROM ledger_transactions
			WHERE user_id = ?1 AND target_currency = ?2 AND status = 'completed'
		), 0)`

	// Exchange rate queries
	querySeedRateState = `
		INSERT OR IGNORE INTO rate_state (id, current_rate, withdrawal_count, version)
		VALUES (1, ?, 0, 1)`

	queryGetRateState = `
		SELECT current_rate, withdrawal_count, version, updated_at
		FROM rate_state
		WHERE id = 1`

	queryStepRate = `
		UPDATE rate_state
		SET current_rate = ?, withdrawal_count = withdrawal_count + 1,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1 AND version = ?`

	queryResetRate = `
		UPDATE rate_state
		SET current_rate = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1`
)
