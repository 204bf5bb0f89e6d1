package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables owned by the admission core. The generated
// held_application_id column is non-NULL only while a hold is HELD, so the
// unique index on it allows at most one HELD hold per application while
// letting historical holds accumulate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(191) NOT NULL,
		total_seats INT NOT NULL DEFAULT 25,
		confirmed_seats INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT chk_batches_ledger CHECK (confirmed_seats >= 0 AND confirmed_seats <= total_seats)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS applications (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		batch_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		student_name VARCHAR(191) NOT NULL DEFAULT '',
		email VARCHAR(191) NOT NULL DEFAULT '',
		mobile VARCHAR(32) NOT NULL DEFAULT '',
		address VARCHAR(255) NOT NULL DEFAULT '',
		city VARCHAR(64) NOT NULL DEFAULT '',
		postcode VARCHAR(16) NOT NULL DEFAULT '',
		country VARCHAR(64) NOT NULL DEFAULT '',
		is_paid TINYINT(1) NOT NULL DEFAULT 0,
		paid_payment_id BIGINT UNSIGNED NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_applications_batch (batch_id),
		KEY idx_applications_user (user_id),
		CONSTRAINT fk_applications_batch FOREIGN KEY (batch_id) REFERENCES batches (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_holds (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		application_id BIGINT UNSIGNED NOT NULL,
		batch_id BIGINT UNSIGNED NOT NULL,
		hold_token CHAR(36) NOT NULL,
		expires_at DATETIME NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'HELD',
		held_application_id BIGINT UNSIGNED AS (IF(status = 'HELD', application_id, NULL)) STORED,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seat_holds_token (hold_token),
		UNIQUE KEY uq_seat_holds_one_held (held_application_id),
		KEY idx_seat_holds_batch_status (batch_id, status, expires_at),
		CONSTRAINT fk_seat_holds_application FOREIGN KEY (application_id) REFERENCES applications (id),
		CONSTRAINT fk_seat_holds_batch FOREIGN KEY (batch_id) REFERENCES batches (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		tran_id VARCHAR(64) NOT NULL,
		application_id BIGINT UNSIGNED NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		gateway VARCHAR(32) NOT NULL,
		status VARCHAR(24) NOT NULL,
		creation_context JSON NOT NULL,
		session_key VARCHAR(255) NOT NULL DEFAULT '',
		gateway_url VARCHAR(1024) NOT NULL DEFAULT '',
		val_id VARCHAR(128) NOT NULL DEFAULT '',
		bank_tran_id VARCHAR(128) NOT NULL DEFAULT '',
		risk_level VARCHAR(16) NOT NULL DEFAULT '',
		init_response JSON NULL,
		callback_payload JSON NULL,
		validation_response JSON NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		validated_at DATETIME NULL,
		UNIQUE KEY uq_payments_tran_id (tran_id),
		KEY idx_payments_application (application_id),
		CONSTRAINT fk_payments_application FOREIGN KEY (application_id) REFERENCES applications (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reconciliation_cases (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		payment_id BIGINT UNSIGNED NOT NULL,
		tran_id VARCHAR(64) NOT NULL,
		application_id BIGINT UNSIGNED NOT NULL,
		batch_id BIGINT UNSIGNED NOT NULL,
		reason VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'OPEN',
		note VARCHAR(1024) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME NULL,
		UNIQUE KEY uq_reconciliation_payment (payment_id),
		KEY idx_reconciliation_status (status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
