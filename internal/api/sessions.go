package api

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/decode"
	"github.com/erazemk/skener/internal/media"
	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/resolve"
)

// SessionConfig configures the scanning workspace of each operator.
type SessionConfig struct {
	Formats      []string
	Decode       decode.Options
	Ladder       []capture.Constraints
	PollInterval time.Duration
	Debounce     time.Duration
	TicketTTL    time.Duration
}

// Workspace is one operator's scanning dialog: the cameras they connected,
// a capture controller over them and the orchestrator that resolves items.
type Workspace struct {
	User         string
	Hub          *media.Hub
	Decoder      *decode.Decoder
	Orchestrator *resolve.Orchestrator

	mu       sync.Mutex
	resolved *model.ResolvedItem
}

// Resolved returns the item last handed to usage entry, if any.
func (ws *Workspace) Resolved() *model.ResolvedItem {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.resolved
}

// takeResolved returns and clears the handed-off item if it has the given ID.
func (ws *Workspace) takeResolved(id int64) *model.ResolvedItem {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	item := ws.resolved
	if item == nil || item.ID != id {
		return nil
	}
	ws.resolved = nil
	return item
}

func (ws *Workspace) handoff(item *model.ResolvedItem) {
	ws.mu.Lock()
	ws.resolved = item
	ws.mu.Unlock()
}

// Sessions holds a workspace per operator, created on first use.
type Sessions struct {
	cfg    SessionConfig
	lookup resolve.Lookup
	log    *slog.Logger

	mu     sync.Mutex
	byUser map[string]*Workspace
	closed bool
}

// NewSessions returns an empty registry resolving items through l.
func NewSessions(l resolve.Lookup, cfg SessionConfig, logger *slog.Logger) (*Sessions, error) {
	if logger == nil {
		logger = slog.Default()
	}
	formats, err := decode.ParseFormats(cfg.Formats)
	if err != nil {
		return nil, fmt.Errorf("parsing formats: %w", err)
	}
	cfg.Formats = formats
	return &Sessions{
		cfg:    cfg,
		lookup: l,
		log:    logger,
		byUser: make(map[string]*Workspace),
	}, nil
}

// TicketTTL is the lifetime of feed tickets.
func (s *Sessions) TicketTTL() time.Duration {
	return s.cfg.TicketTTL
}

// Get returns the workspace of user, creating it if needed.
func (s *Sessions) Get(user string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("sessions closed")
	}
	if ws, ok := s.byUser[user]; ok {
		return ws, nil
	}

	logger := s.log.With("user", user)
	dec, err := decode.New(s.cfg.Formats, s.cfg.Decode, logger)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	ws := &Workspace{
		User:    user,
		Hub:     media.NewHub(s.cfg.Decode.MaxDimension, logger),
		Decoder: dec,
	}
	ctrl := capture.NewController(ws.Hub, dec, capture.Options{
		Ladder:       s.cfg.Ladder,
		PollInterval: s.cfg.PollInterval,
	}, logger)
	ws.Orchestrator = resolve.New(ctrl, s.lookup, resolve.Options{
		Debounce: s.cfg.Debounce,
		Handoff:  ws.handoff,
		Logger:   logger,
	})

	s.byUser[user] = ws
	logger.Info("workspace created")
	return ws, nil
}

// Active reports whether user has an open workspace.
func (s *Sessions) Active(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUser[user]
	return ok
}

// Drop stops the capture of user and disconnects their cameras. It reports
// whether a workspace was open.
func (s *Sessions) Drop(user string) bool {
	s.mu.Lock()
	ws, ok := s.byUser[user]
	delete(s.byUser, user)
	s.mu.Unlock()

	if ok {
		ws.Orchestrator.Dismiss()
		ws.Hub.Close()
	}
	return ok
}

// Close shuts every workspace down.
func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	all := s.byUser
	s.byUser = make(map[string]*Workspace)
	s.mu.Unlock()

	for _, ws := range all {
		ws.Orchestrator.Dismiss()
		ws.Hub.Close()
	}
}
