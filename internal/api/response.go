package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/resolve"
	"github.com/erazemk/skener/internal/search"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonErrorKind writes a JSON error response carrying a machine-readable kind.
func jsonErrorKind(w http.ResponseWriter, status int, message, kind string) {
	jsonResponse(w, status, map[string]string{"error": message, "kind": kind})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// scanError maps capture, search and lookup failures to responses.
func scanError(w http.ResponseWriter, err error) {
	var lerr *resolve.LookupError
	var cerr *capture.Error
	switch {
	case errors.As(err, &lerr):
		if lerr.Kind == resolve.KindNotFound {
			jsonErrorKind(w, http.StatusNotFound, "no item matches "+lerr.Key, lerr.Kind.String())
			return
		}
		jsonErrorKind(w, http.StatusBadGateway, "item lookup failed, try again", lerr.Kind.String())
	case errors.As(err, &cerr):
		jsonErrorKind(w, http.StatusConflict, cerr.Message(), cerr.Kind.String())
	case errors.Is(err, capture.ErrStopped):
		jsonErrorKind(w, http.StatusConflict, "capture was stopped", "stopped")
	case errors.Is(err, search.ErrSuperseded):
		jsonErrorKind(w, http.StatusConflict, "superseded by a newer query", "superseded")
	case errors.Is(err, resolve.ErrUnknownItem):
		jsonError(w, http.StatusNotFound, "item is not in the current search results")
	case errors.Is(err, resolve.ErrInvalidRequest):
		jsonError(w, http.StatusBadRequest, "exactly one of code or item required")
	case errors.Is(err, context.DeadlineExceeded):
		jsonErrorKind(w, http.StatusRequestTimeout, "no barcode detected in time", "timeout")
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		slog.Error("scan request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
