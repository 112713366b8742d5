// Package store holds the SQL queries behind the local catalog.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/skener/internal/model"
)

const itemColumns = `id, name, code, barcode, description, english_description, location, equipment,
	current_inventory, pending_po, used_inventory, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var code, barcode, description, english, location, equipment sql.NullString
	err := row.Scan(&item.ID, &item.Name, &code, &barcode, &description, &english, &location, &equipment,
		&item.CurrentInventory, &item.PendingPO, &item.UsedInventory, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	item.Code = code.String
	item.Barcode = barcode.String
	item.Description = description.String
	item.EnglishDescription = english.String
	item.Location = location.String
	item.Equipment = equipment.String
	return item, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateItem inserts an item and returns the stored record.
func CreateItem(ctx context.Context, db *sql.DB, item model.Item) (*model.Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if item.PendingPO < 0 || item.UsedInventory < 0 {
		return nil, fmt.Errorf("pending and used quantities cannot be negative")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (name, code, barcode, description, english_description, location, equipment,
		                    current_inventory, pending_po, used_inventory)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(item.Name), nullable(item.Code), nullable(item.Barcode), nullable(item.Description),
		nullable(item.EnglishDescription), nullable(item.Location), nullable(item.Equipment),
		item.CurrentInventory, item.PendingPO, item.UsedInventory,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including soft-deleted ones.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// FindItemByCode returns the active item whose barcode, code or decimal ID
// equals code, preferring a barcode match over a code match over an ID
// match. It returns nil when nothing matches.
func FindItemByCode(ctx context.Context, db *sql.DB, code string) (*model.Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE deleted_at IS NULL AND (barcode = ?1 OR code = ?1 OR CAST(id AS TEXT) = ?1)
		 ORDER BY CASE WHEN barcode = ?1 THEN 0 WHEN code = ?1 THEN 1 ELSE 2 END, id
		 LIMIT 1`, code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item by code: %w", err)
	}
	return item, nil
}

// ListItems returns all active items ordered by name.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE deleted_at IS NULL ORDER BY name COLLATE NOCASE, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListSearchable returns the search projection of every active item.
func ListSearchable(ctx context.Context, db *sql.DB) ([]model.SearchableItem, error) {
	items, err := ListItems(ctx, db)
	if err != nil {
		return nil, err
	}
	catalog := make([]model.SearchableItem, len(items))
	for i, item := range items {
		catalog[i] = item.Searchable()
	}
	return catalog, nil
}

// DeleteItem soft-deletes an item. Deleted items disappear from lookups and
// the catalog but keep their usage history.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}
