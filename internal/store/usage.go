package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/skener/internal/model"
)

// ErrItemNotFound is returned when usage is recorded against a missing or
// deleted item.
var ErrItemNotFound = errors.New("item not found")

// RecordUsage takes quantity out of an item's stock in a single transaction.
// Current inventory is drawn first; the remainder comes out of pending
// purchase orders.
func RecordUsage(ctx context.Context, db *sql.DB, itemID int64, quantity int, notes string, usedBy *int64) (*model.Usage, error) {
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current, pending int
	err = tx.QueryRowContext(ctx,
		`SELECT current_inventory, pending_po FROM items WHERE id = ? AND deleted_at IS NULL`,
		itemID,
	).Scan(&current, &pending)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking available quantity: %w", err)
	}

	stock := model.ResolvedItem{CurrentInventory: current, PendingPO: pending}
	if err := model.ValidateUsageQuantity(quantity, stock); err != nil {
		return nil, err
	}

	fromCurrent := min(quantity, max(current, 0))
	fromPending := quantity - fromCurrent

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET current_inventory = current_inventory - ?, pending_po = pending_po - ?,
		                  used_inventory = used_inventory + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		fromCurrent, fromPending, quantity, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item stock: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO usage (item_id, quantity, from_current, from_pending, notes, used_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		itemID, quantity, fromCurrent, fromPending, nullable(notes), usedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing usage: %w", err)
	}

	usageID, _ := result.LastInsertId()
	return GetUsage(ctx, db, usageID)
}

const usageQuery = `SELECT u.id, u.item_id, u.quantity, u.from_current, u.from_pending, u.notes,
	       u.used_at, u.used_by, i.name
	FROM usage u
	JOIN items i ON i.id = u.item_id`

func scanUsage(row rowScanner) (*model.Usage, error) {
	u := &model.Usage{}
	var notes sql.NullString
	var usedBy sql.NullInt64
	if err := row.Scan(&u.ID, &u.ItemID, &u.Quantity, &u.FromCurrent, &u.FromPending, &notes,
		&u.UsedAt, &usedBy, &u.ItemName); err != nil {
		return nil, err
	}
	u.Notes = notes.String
	if usedBy.Valid {
		u.UsedBy = &usedBy.Int64
	}
	return u, nil
}

// GetUsage returns a usage record by ID.
func GetUsage(ctx context.Context, db *sql.DB, id int64) (*model.Usage, error) {
	u, err := scanUsage(db.QueryRowContext(ctx, usageQuery+` WHERE u.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting usage: %w", err)
	}
	return u, nil
}

// ListUsage returns the usage history of an item, newest first.
func ListUsage(ctx context.Context, db *sql.DB, itemID int64) ([]model.Usage, error) {
	rows, err := db.QueryContext(ctx, usageQuery+` WHERE u.item_id = ? ORDER BY u.used_at DESC, u.id DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	var history []model.Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		history = append(history, *u)
	}
	return history, rows.Err()
}
