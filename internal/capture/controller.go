package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the pause between manual decode attempts.
const DefaultPollInterval = 100 * time.Millisecond

// Options configure a Controller.
type Options struct {
	// Ladder is the sequence of constraint profiles tried on acquisition.
	// Defaults to DefaultLadder(LadderOptions{}).
	Ladder []Constraints

	// PollInterval is the manual decode loop period.
	PollInterval time.Duration
}

// Controller runs capture sessions against one device, one at a time.
type Controller struct {
	device  Device
	decoder Decoder
	ladder  []Constraints
	poll    time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewController returns a controller for device and decoder.
func NewController(device Device, decoder Decoder, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ladder := opts.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder(LadderOptions{})
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Controller{
		device:  device,
		decoder: decoder,
		ladder:  ladder,
		poll:    poll,
		log:     logger,
	}
}

// Start begins a new capture session. Any session still running is stopped
// first, so no two sessions ever hold a stream at once. Cancelling ctx ends
// the session as if Stop had been called.
func (c *Controller) Start(ctx context.Context) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Stop()
	}

	s := newSession(ctx, c)
	c.current = s
	c.log.Info("capture session started", "session", s.ID)

	go s.run()
	return s
}

// Stop stops the current session, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Stop()
	}
}

// Current returns the most recently started session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the state of the running session, or StateIdle when none runs.
func (c *Controller) State() State {
	s := c.Current()
	if s == nil {
		return StateIdle
	}
	select {
	case <-s.Done():
		return StateIdle
	default:
		return s.State()
	}
}
