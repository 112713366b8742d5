package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Usage records a quantity of an item taken out of stock.
type Usage struct {
	ID       int64     `json:"id"`
	ItemID   int64     `json:"item_id"`
	Quantity int       `json:"quantity"`
	Notes    string    `json:"notes,omitempty"`
	UsedAt   time.Time `json:"used_at"`
	UsedBy   *int64    `json:"used_by,omitempty"`

	// Split of Quantity between current stock and pending orders.
	FromCurrent int `json:"from_current"`
	FromPending int `json:"from_pending"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
}

var (
	// ErrInvalidQuantity is returned for usage quantities that are zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInsufficientQuantity is returned for usage exceeding the available quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// ValidateUsageQuantity checks a requested usage against what the item has available.
func ValidateUsageQuantity(quantity int, item ResolvedItem) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if available := item.AvailableQuantity(); quantity > available {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientQuantity, available, quantity)
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
