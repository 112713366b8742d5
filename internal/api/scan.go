package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/resolve"
	"github.com/erazemk/skener/internal/search"
	"github.com/erazemk/skener/internal/store"
)

// DefaultScanTimeout bounds how long POST /api/scan waits for a barcode.
const DefaultScanTimeout = 2 * time.Minute

// ScanHandler handles the scanning dialog: scanning, search, resolution and
// usage entry for the resolved item.
type ScanHandler struct {
	DB          *sql.DB
	Sessions    *Sessions
	ScanTimeout time.Duration
}

type selectRequest struct {
	ID int64 `json:"id"`
}

type usageRequest struct {
	ItemID   int64  `json:"item_id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []search.RankedResult `json:"results"`
}

// Scan handles POST /api/scan. It waits for the camera to detect a code and
// resolves it.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	timeout := h.ScanTimeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	item, err := ws.Orchestrator.Scan(ctx)
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Search handles GET /api/search?q=.
func (h *ScanHandler) Search(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	query := r.URL.Query().Get("q")
	results, err := ws.Orchestrator.Search(r.Context(), query)
	if err != nil {
		scanError(w, err)
		return
	}
	if results == nil {
		results = []search.RankedResult{}
	}
	jsonResponse(w, http.StatusOK, searchResponse{Query: query, Results: results})
}

// Select handles POST /api/search/select.
func (h *ScanHandler) Select(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := ws.Orchestrator.Select(r.Context(), req.ID)
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Resolve handles POST /api/resolve with either a code or a catalog item.
func (h *ScanHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	var req resolve.Request
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := ws.Orchestrator.Resolve(r.Context(), req)
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Dismiss handles POST /api/dismiss.
func (h *ScanHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}
	ws.Orchestrator.Dismiss()
	jsonResponse(w, http.StatusOK, map[string]string{"message": "dismissed"})
}

// Resolved handles GET /api/resolved, the item awaiting usage entry.
func (h *ScanHandler) Resolved(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}
	item := ws.Resolved()
	if item == nil {
		jsonError(w, http.StatusNotFound, "no resolved item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Usage handles POST /api/usage. It records usage of the resolved item; the
// item must be the one last resolved in this workspace.
func (h *ScanHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	var req usageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item := ws.Resolved()
	if item == nil {
		jsonError(w, http.StatusConflict, "resolve an item first")
		return
	}
	if req.ItemID == 0 {
		req.ItemID = item.ID
	}
	if req.ItemID != item.ID {
		jsonError(w, http.StatusConflict, "item is not the resolved item")
		return
	}
	if err := model.ValidateUsageQuantity(req.Quantity, *item); err != nil {
		usageError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	usage, err := store.RecordUsage(r.Context(), h.DB, item.ID, req.Quantity, strings.TrimSpace(req.Notes), &claims.UserID)
	if err != nil {
		usageError(w, err)
		return
	}
	ws.takeResolved(item.ID)

	slog.Info("usage recorded", "user", claims.Username, "item", item.ID, "quantity", req.Quantity)
	jsonResponse(w, http.StatusCreated, usage)
}

func usageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidQuantity):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrInsufficientQuantity):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found in the local catalog")
	default:
		slog.Error("failed to record usage", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to record usage")
	}
}
