package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/skener/internal/lookup"
	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/store"
)

// ItemsHandler handles the local catalog endpoints. Lookup and Catalog are
// the endpoints a remote lookup client talks to.
type ItemsHandler struct {
	DB *sql.DB
}

type createItemRequest struct {
	Name               string `json:"name"`
	Code               string `json:"code"`
	Barcode            string `json:"barcode"`
	Description        string `json:"description"`
	EnglishDescription string `json:"english_description"`
	Location           string `json:"location"`
	Equipment          string `json:"equipment"`
	CurrentInventory   int    `json:"current_inventory"`
	PendingPO          int    `json:"pending_po"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.PendingPO < 0 {
		jsonError(w, http.StatusBadRequest, "pending_po cannot be negative")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, model.Item{
		Name:               req.Name,
		Code:               req.Code,
		Barcode:            req.Barcode,
		Description:        req.Description,
		EnglishDescription: req.EnglishDescription,
		Location:           req.Location,
		Equipment:          req.Equipment,
		CurrentInventory:   req.CurrentInventory,
		PendingPO:          req.PendingPO,
	})
	if err != nil {
		slog.Error("failed to create item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item created", "user", claims.Username, "item", item.ID, "name", item.Name)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		slog.Error("failed to delete item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item deleted", "user", claims.Username, "item", id, "name", item.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// Lookup handles GET /api/items/lookup?code=.
func (h *ItemsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		jsonError(w, http.StatusBadRequest, "code required")
		return
	}

	local := &lookup.Local{DB: h.DB}
	item, err := local.LookupByCode(r.Context(), code)
	if errors.Is(err, lookup.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to look up item", "code", code, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to look up item")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Catalog handles GET /api/items/catalog.
func (h *ItemsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	local := &lookup.Local{DB: h.DB}
	catalog, err := local.ListAllForSearch(r.Context())
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	jsonResponse(w, http.StatusOK, catalog)
}

// History handles GET /api/items/{id}/usage.
func (h *ItemsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	usage, err := store.ListUsage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list usage", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list usage")
		return
	}
	if usage == nil {
		usage = []model.Usage{}
	}
	jsonResponse(w, http.StatusOK, usage)
}
