package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/skener/internal/db"
	"github.com/erazemk/skener/internal/model"
)

func TestRecordUsageDrawsCurrentFirst(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "op", "hash", model.RoleOperator)
	item, _ := CreateItem(ctx, database, model.Item{Name: "Gloves", CurrentInventory: 3, PendingPO: 5})

	usage, err := RecordUsage(ctx, database, item.ID, 4, "line 2", &user.ID)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if usage.FromCurrent != 3 || usage.FromPending != 1 {
		t.Errorf("expected split 3/1, got %d/%d", usage.FromCurrent, usage.FromPending)
	}
	if usage.ItemName != "Gloves" || usage.Notes != "line 2" || usage.UsedBy == nil || *usage.UsedBy != user.ID {
		t.Errorf("unexpected usage: %+v", usage)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.CurrentInventory != 0 || got.PendingPO != 4 || got.UsedInventory != 4 {
		t.Errorf("unexpected stock after usage: current=%d pending=%d used=%d",
			got.CurrentInventory, got.PendingPO, got.UsedInventory)
	}
}

func TestRecordUsageNegativeCurrent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, model.Item{Name: "Tape", CurrentInventory: -2, PendingPO: 5})

	// Available is max(0, -2+5) = 3.
	if _, err := RecordUsage(ctx, database, item.ID, 4, "", nil); !errors.Is(err, model.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}

	usage, err := RecordUsage(ctx, database, item.ID, 3, "", nil)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if usage.FromCurrent != 0 || usage.FromPending != 3 {
		t.Errorf("expected split 0/3, got %d/%d", usage.FromCurrent, usage.FromPending)
	}
}

func TestRecordUsageErrors(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, model.Item{Name: "Rope", CurrentInventory: 1})

	if _, err := RecordUsage(ctx, database, item.ID, 0, "", nil); !errors.Is(err, model.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := RecordUsage(ctx, database, 999, 1, "", nil); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := RecordUsage(ctx, database, item.ID, 2, "", nil); !errors.Is(err, model.ErrInsufficientQuantity) {
		t.Errorf("expected ErrInsufficientQuantity, got %v", err)
	}

	// Failed attempts leave stock untouched.
	got, _ := GetItem(ctx, database, item.ID)
	if got.CurrentInventory != 1 || got.UsedInventory != 0 {
		t.Errorf("stock changed by failed usage: %+v", got)
	}
}

func TestListUsage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, model.Item{Name: "Bolts", CurrentInventory: 10})
	RecordUsage(ctx, database, item.ID, 1, "first", nil)
	RecordUsage(ctx, database, item.ID, 2, "second", nil)

	history, err := ListUsage(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Notes != "second" {
		t.Errorf("expected newest first, got %q", history[0].Notes)
	}
}
