package db

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		id                     INTEGER PRIMARY KEY CHECK (id = 1),
		asaas_enabled          INTEGER NOT NULL DEFAULT 0,
		allow_credit_card      INTEGER NOT NULL DEFAULT 1,
		allow_pix              INTEGER NOT NULL DEFAULT 1,
		manual_card_processing INTEGER NOT NULL DEFAULT 0,
		manual_card_status     TEXT    NOT NULL DEFAULT 'ANALYSIS',
		sandbox_mode           INTEGER NOT NULL DEFAULT 1,
		updated_at             TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,
	`INSERT OR IGNORE INTO settings (id) VALUES (1)`,

	`CREATE TABLE IF NOT EXISTS products (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		name                   TEXT    NOT NULL,
		slug                   TEXT    NOT NULL UNIQUE,
		price                  TEXT    NOT NULL,
		is_digital             INTEGER NOT NULL DEFAULT 0,
		override_global_status INTEGER NOT NULL DEFAULT 0,
		custom_manual_status   TEXT,
		created_at             TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_name      TEXT    NOT NULL,
		customer_email     TEXT    NOT NULL,
		customer_cpf       TEXT    NOT NULL,
		customer_phone     TEXT,
		customer_address   TEXT,
		product_id         INTEGER,
		product_name       TEXT    NOT NULL,
		price              TEXT    NOT NULL,
		is_digital_product INTEGER NOT NULL DEFAULT 0,
		payment_method     TEXT    NOT NULL CHECK (payment_method IN ('CARD', 'PIX')),
		payment_status     TEXT    NOT NULL DEFAULT 'PENDING' CHECK (payment_status IN ('PENDING', 'PAID', 'DENIED')),
		payment_id         TEXT UNIQUE,
		charge_id          TEXT UNIQUE,
		card_brand         TEXT,
		card_last4         TEXT,
		card_expiry        TEXT,
		qr_code            TEXT,
		qr_code_image      TEXT,
		qr_expires_at      TEXT,
		device_type        TEXT    NOT NULL DEFAULT 'desktop',
		created_at         TEXT    NOT NULL,
		updated_at         TEXT    NOT NULL,
		CHECK (NOT (card_last4 IS NOT NULL AND qr_code IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_method ON orders (payment_status, payment_method)`,

	`CREATE TABLE IF NOT EXISTS order_status_history (
		id         TEXT PRIMARY KEY,
		order_id   INTEGER NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		old_status TEXT,
		new_status TEXT NOT NULL,
		reason     TEXT,
		source     TEXT NOT NULL,
		charge_id  TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_history_order ON order_status_history (order_id)`,

	`CREATE TABLE IF NOT EXISTS webhook_events (
		id                TEXT PRIMARY KEY,
		provider_event_id TEXT NOT NULL UNIQUE,
		event_type        TEXT NOT NULL,
		charge_id         TEXT,
		processed         INTEGER NOT NULL DEFAULT 0,
		processed_at      TEXT,
		created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
