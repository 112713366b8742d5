// Package lookup resolves codes to items, either against the local catalog
// or a remote inventory backend.
package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/store"
)

// ErrNotFound reports that no item matches a code.
var ErrNotFound = errors.New("item not found")

// Local looks items up in the SQLite catalog.
type Local struct {
	DB *sql.DB
}

// LookupByCode returns the item whose barcode, code or ID equals code.
func (l *Local) LookupByCode(ctx context.Context, code string) (*model.ResolvedItem, error) {
	item, err := store.FindItemByCode(ctx, l.DB, code)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", code, err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item.Resolved(), nil
}

// ListAllForSearch returns the search projection of the whole catalog.
func (l *Local) ListAllForSearch(ctx context.Context) ([]model.SearchableItem, error) {
	catalog, err := store.ListSearchable(ctx, l.DB)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return catalog, nil
}
