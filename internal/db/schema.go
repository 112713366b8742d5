package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'operator' CHECK (role IN ('admin', 'manager', 'operator')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id                  INTEGER PRIMARY KEY,
    name                TEXT NOT NULL,
    code                TEXT,
    barcode             TEXT,
    description         TEXT,
    english_description TEXT,
    location            TEXT,
    equipment           TEXT,
    current_inventory   INTEGER NOT NULL DEFAULT 0,
    pending_po          INTEGER NOT NULL DEFAULT 0 CHECK (pending_po >= 0),
    used_inventory      INTEGER NOT NULL DEFAULT 0 CHECK (used_inventory >= 0),
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at          DATETIME
);

CREATE INDEX IF NOT EXISTS idx_items_barcode ON items(barcode) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_items_code ON items(code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS usage (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    from_current INTEGER NOT NULL DEFAULT 0,
    from_pending INTEGER NOT NULL DEFAULT 0,
    notes        TEXT,
    used_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    used_by      INTEGER REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_usage_item ON usage(item_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
