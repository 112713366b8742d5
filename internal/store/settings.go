package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Setting keys.
const (
	SettingJWTSecret = "jwt_secret"
)

// GetOrCreateSecret returns the random secret stored under key, generating
// and storing a 32-byte one on first use. INSERT OR IGNORE followed by a
// read keeps concurrent first calls consistent.
func GetOrCreateSecret(ctx context.Context, db *sql.DB, key string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, hex.EncodeToString(buf),
	); err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var secret string
	if err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&secret); err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}
	return secret, nil
}
