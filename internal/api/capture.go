package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/erazemk/skener/internal/auth"
	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/media"
	"github.com/erazemk/skener/internal/store"
)

// CaptureHandler exposes an operator's capture session and camera feed.
type CaptureHandler struct {
	DB        *sql.DB
	JWTSecret string
	Sessions  *Sessions
}

type captureError struct {
	Kind    capture.Kind `json:"kind"`
	Message string       `json:"message"`
}

type captureStatus struct {
	Session string             `json:"session,omitempty"`
	State   capture.State      `json:"state"`
	Profile string             `json:"profile,omitempty"`
	Code    string             `json:"code,omitempty"`
	Torch   bool               `json:"torch"`
	Error   *captureError      `json:"error,omitempty"`
	Cameras []media.CameraInfo `json:"cameras"`
}

type torchRequest struct {
	On bool `json:"on"`
}

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
	FeedURL   string    `json:"feed_url"`
}

func statusOf(ws *Workspace, s *capture.Session) captureStatus {
	st := captureStatus{State: capture.StateIdle, Cameras: ws.Hub.Cameras()}
	if s == nil {
		return st
	}
	st.Session = s.ID
	st.State = s.State()
	st.Profile = s.Profile()
	st.Code = s.Code()
	st.Torch = s.TorchEnabled()
	if err := s.Err(); err != nil {
		st.Error = &captureError{Kind: err.Kind, Message: err.Message()}
	}
	return st
}

// workspace resolves the caller's workspace or writes an error.
func workspace(w http.ResponseWriter, r *http.Request, sessions *Sessions) *Workspace {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	ws, err := sessions.Get(claims.Username)
	if err != nil {
		slog.Error("failed to open workspace", "user", claims.Username, "error", err)
		jsonError(w, http.StatusServiceUnavailable, "scanning unavailable")
		return nil
	}
	return ws
}

// Status handles GET /api/capture.
func (h *CaptureHandler) Status(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}
	jsonResponse(w, http.StatusOK, statusOf(ws, ws.Orchestrator.Controller().Current()))
}

// Start handles POST /api/capture/start. The session outlives the request;
// poll Status or call /api/scan to wait for a code.
func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}
	s := ws.Orchestrator.StartCapture()
	jsonResponse(w, http.StatusAccepted, statusOf(ws, s))
}

// Stop handles POST /api/capture/stop.
func (h *CaptureHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}
	ctrl := ws.Orchestrator.Controller()
	ctrl.Stop()
	jsonResponse(w, http.StatusOK, statusOf(ws, ctrl.Current()))
}

// Torch handles POST /api/capture/torch.
func (h *CaptureHandler) Torch(w http.ResponseWriter, r *http.Request) {
	ws := workspace(w, r, h.Sessions)
	if ws == nil {
		return
	}

	var req torchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := ws.Orchestrator.Controller().Current()
	if s == nil || !s.State().Active() {
		jsonError(w, http.StatusConflict, "no active capture session")
		return
	}
	s.SetTorch(req.On)
	jsonResponse(w, http.StatusOK, statusOf(ws, s))
}

// Ticket handles POST /api/capture/ticket. The ticket lets a camera client
// open the feed without the operator's API token.
func (h *CaptureHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	ttl := h.Sessions.TicketTTL()
	if ttl <= 0 {
		ttl = auth.TicketExpiry
	}
	ticket, err := auth.GenerateFeedTicket(h.JWTSecret, claims, ttl)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate ticket")
		return
	}

	jsonResponse(w, http.StatusCreated, ticketResponse{
		Ticket:    ticket,
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
		FeedURL:   "/api/capture/feed?ticket=" + url.QueryEscape(ticket),
	})
}

// Feed handles GET /api/capture/feed?ticket=. It upgrades to the camera
// websocket of the ticket's operator.
func (h *CaptureHandler) Feed(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateToken(h.JWTSecret, r.URL.Query().Get("ticket"), auth.ScopeFeed)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, "invalid ticket")
		return
	}
	// A ticket dies with the API token it was issued under.
	for _, id := range []string{claims.ID, claims.Parent} {
		revoked, err := store.IsTokenRevoked(r.Context(), h.DB, id)
		if err != nil {
			slog.Error("failed to check ticket revocation", "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if revoked {
			jsonError(w, http.StatusUnauthorized, "ticket revoked")
			return
		}
	}

	ws, err := h.Sessions.Get(claims.Username)
	if err != nil {
		slog.Error("failed to open workspace", "user", claims.Username, "error", err)
		jsonError(w, http.StatusServiceUnavailable, "scanning unavailable")
		return
	}

	slog.Info("camera feed connecting", "user", claims.Username, "remote", r.RemoteAddr)
	ws.Hub.ServeFeed(w, r)
}
