package model

import (
	"encoding/json"
	"time"
)

// Item is a catalog item as stored in the local inventory database.
type Item struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Code               string     `json:"code,omitempty"`
	Barcode            string     `json:"barcode,omitempty"`
	Description        string     `json:"description,omitempty"`
	EnglishDescription string     `json:"english_description,omitempty"`
	Location           string     `json:"location,omitempty"`
	Equipment          string     `json:"equipment,omitempty"`
	CurrentInventory   int        `json:"current_inventory"`
	PendingPO          int        `json:"pending_po"`
	UsedInventory      int        `json:"used_inventory"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// SearchableItem is the read-only projection of an item used for ranking.
// Everything except ID is optional.
type SearchableItem struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name,omitempty"`
	Code               string `json:"code,omitempty"`
	Description        string `json:"description,omitempty"`
	EnglishDescription string `json:"english_description,omitempty"`
	Location           string `json:"location,omitempty"`
	Equipment          string `json:"equipment,omitempty"`
	Barcode            string `json:"barcode,omitempty"`
	CurrentInventory   string `json:"current_inventory,omitempty"`
}

// ResolvedItem is the canonical item record returned by a lookup, carrying
// live inventory figures.
type ResolvedItem struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Code               string `json:"code,omitempty"`
	Barcode            string `json:"barcode,omitempty"`
	Description        string `json:"description,omitempty"`
	EnglishDescription string `json:"english_description,omitempty"`
	Location           string `json:"location,omitempty"`
	Equipment          string `json:"equipment,omitempty"`
	CurrentInventory   int    `json:"current_inventory"`
	PendingPO          int    `json:"pending_po"`
	UsedInventory      int    `json:"used_inventory"`
}

// AvailableQuantity is what can still be drawn: current stock plus pending
// purchase orders, never negative.
func (r ResolvedItem) AvailableQuantity() int {
	return max(0, r.CurrentInventory+r.PendingPO)
}

// MarshalJSON adds available_quantity to the encoded record.
func (r ResolvedItem) MarshalJSON() ([]byte, error) {
	type plain ResolvedItem
	return json.Marshal(struct {
		plain
		AvailableQuantity int `json:"available_quantity"`
	}{plain(r), r.AvailableQuantity()})
}

// Searchable projects an item for the ranking engine.
func (i Item) Searchable() SearchableItem {
	return SearchableItem{
		ID:                 i.ID,
		Name:               i.Name,
		Code:               i.Code,
		Description:        i.Description,
		EnglishDescription: i.EnglishDescription,
		Location:           i.Location,
		Equipment:          i.Equipment,
		Barcode:            i.Barcode,
		CurrentInventory:   itoa(i.CurrentInventory),
	}
}

// Resolved converts a stored item into the record handed to usage entry.
func (i Item) Resolved() *ResolvedItem {
	return &ResolvedItem{
		ID:                 i.ID,
		Name:               i.Name,
		Code:               i.Code,
		Barcode:            i.Barcode,
		Description:        i.Description,
		EnglishDescription: i.EnglishDescription,
		Location:           i.Location,
		Equipment:          i.Equipment,
		CurrentInventory:   i.CurrentInventory,
		PendingPO:          i.PendingPO,
		UsedInventory:      i.UsedInventory,
	}
}
