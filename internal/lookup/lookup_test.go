package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erazemk/skener/internal/db"
	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/store"
)

func TestLocal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	store.CreateItem(ctx, database, model.Item{Name: "Belt", Barcode: "123", CurrentInventory: 2, PendingPO: 1})
	l := &Local{DB: database}

	item, err := l.LookupByCode(ctx, "123")
	if err != nil {
		t.Fatalf("LookupByCode: %v", err)
	}
	if item.Name != "Belt" || item.AvailableQuantity() != 3 {
		t.Errorf("unexpected item: %+v", item)
	}

	if _, err := l.LookupByCode(ctx, "999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	catalog, err := l.ListAllForSearch(ctx)
	if err != nil {
		t.Fatalf("ListAllForSearch: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Barcode != "123" {
		t.Errorf("unexpected catalog: %+v", catalog)
	}
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items/lookup", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("code") {
		case "A 1":
			json.NewEncoder(w).Encode(model.ResolvedItem{ID: 7, Name: "Anchor", CurrentInventory: 1})
		case "boom":
			http.Error(w, "database down", http.StatusInternalServerError)
		case "slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.Error(w, `{"error":"item not found"}`, http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /api/items/catalog", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.SearchableItem{{ID: 7, Name: "Anchor"}, {ID: 8, Name: "Bolt"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newBackend(t)
	c, err := NewClient(srv.URL+"/", "secret", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	item, err := c.LookupByCode(ctx, "A 1")
	if err != nil {
		t.Fatalf("LookupByCode: %v", err)
	}
	if item.ID != 7 || item.Name != "Anchor" {
		t.Errorf("unexpected item: %+v", item)
	}

	if _, err := c.LookupByCode(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, code := range []string{"boom", "slow"} {
		_, err := c.LookupByCode(ctx, code)
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected transport error, got %v", code, err)
		}
	}

	catalog, err := c.ListAllForSearch(ctx)
	if err != nil {
		t.Fatalf("ListAllForSearch: %v", err)
	}
	if len(catalog) != 2 {
		t.Errorf("expected 2 items, got %d", len(catalog))
	}
}

func TestClientUnauthorized(t *testing.T) {
	srv := newBackend(t)
	c, _ := NewClient(srv.URL, "", 0)
	if _, err := c.LookupByCode(context.Background(), "A 1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://host", "::bad", ""} {
		if _, err := NewClient(u, "", 0); err == nil {
			t.Errorf("NewClient(%q): expected error", u)
		}
	}
}
