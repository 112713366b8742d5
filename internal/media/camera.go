package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/imaging"
)

// OutboxSize is the number of control messages buffered per camera.
const OutboxSize = 16

var (
	errCameraGone       = errors.New("camera disconnected")
	errOutboxFull       = errors.New("camera outbox full")
	errPromptSuperseded = errors.New("permission prompt taken over by a newer request")
)

type answer struct {
	granted    bool
	errName    string
	superseded bool
}

// Camera is a remote camera, usually a browser tab connected over a feed.
// Control messages for it are queued on its outbox.
type Camera struct {
	ID      string
	Profile Profile

	maxDim int
	log    *slog.Logger
	out    chan Message

	mu         sync.Mutex
	permission Permission
	pending    chan answer
	stream     *Stream
	closed     bool
}

// NewCamera returns a camera with the given profile and initial permission
// state. An empty id gets a random one.
func NewCamera(id string, p Profile, perm Permission) *Camera {
	if id == "" {
		id = uuid.NewString()
	}
	switch perm {
	case PermissionGranted, PermissionDenied:
	default:
		perm = PermissionPrompt
	}
	return &Camera{
		ID:         id,
		Profile:    p,
		log:        slog.Default(),
		out:        make(chan Message, OutboxSize),
		permission: perm,
	}
}

// Outbox returns the control messages to deliver to the client. It is closed
// when the camera is unregistered.
func (c *Camera) Outbox() <-chan Message {
	return c.out
}

// Permission returns the current permission state.
func (c *Camera) Permission() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// Streaming reports whether a stream is open.
func (c *Camera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// sendLocked queues m. The caller holds c.mu.
func (c *Camera) sendLocked(m Message) error {
	if c.closed {
		return errCameraGone
	}
	select {
	case c.out <- m:
		return nil
	default:
		return errOutboxFull
	}
}

func (c *Camera) acquire(ctx context.Context, con capture.Constraints) (capture.Stream, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, capture.NewError(capture.KindNoDeviceFound, errCameraGone)
	case c.permission == PermissionDenied:
		c.mu.Unlock()
		return nil, capture.NewError(capture.KindPermissionDenied, errors.New("camera permission denied"))
	case c.stream != nil:
		c.mu.Unlock()
		return nil, capture.NewError(capture.KindDeviceBusy, errors.New("camera already streaming"))
	}

	settings, err := Negotiate(c.Profile, con)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	if c.permission == PermissionGranted {
		defer c.mu.Unlock()
		return c.openLocked(con, settings)
	}

	// One prompt is outstanding at a time; a newer request takes it over and
	// the client's reply goes to the newest waiter.
	if c.pending != nil {
		c.pending <- answer{superseded: true}
	}
	ans := make(chan answer, 1)
	c.pending = ans
	if err := c.sendLocked(Message{Type: TypeRequestPermission, Constraints: &con}); err != nil {
		c.pending = nil
		c.mu.Unlock()
		return nil, capture.NewError(capture.KindNoDeviceFound, err)
	}
	c.mu.Unlock()

	c.log.Debug("waiting for camera permission", "camera", c.ID, "profile", con.Profile)

	select {
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == ans {
			c.pending = nil
		}
		c.mu.Unlock()
		return nil, ctx.Err()

	case a := <-ans:
		if a.superseded {
			return nil, capture.NewError(capture.KindDeviceBusy, errPromptSuperseded)
		}
		if !a.granted {
			kind := capture.KindFromName(a.errName)
			if kind == capture.KindUnknown {
				kind = capture.KindPermissionDenied
			}
			return nil, capture.NewError(kind, fmt.Errorf("camera refused: %s", nameOr(a.errName, "permission not granted")))
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return nil, capture.NewError(capture.KindNoDeviceFound, errCameraGone)
		}
		if c.stream != nil {
			return nil, capture.NewError(capture.KindDeviceBusy, errors.New("camera already streaming"))
		}
		return c.openLocked(con, settings)
	}
}

func (c *Camera) openLocked(con capture.Constraints, settings Settings) (capture.Stream, error) {
	s := newStream(c, con, settings)
	if err := c.sendLocked(Message{Type: TypeStart, StreamID: s.id, Constraints: &con, Settings: &settings}); err != nil {
		return nil, capture.NewError(capture.KindNoDeviceFound, err)
	}
	c.stream = s
	c.log.Info("camera stream opened", "camera", c.ID, "stream", s.id, "profile", con.Profile,
		"width", settings.Width, "height", settings.Height)

	if c.Profile.Continuous {
		return pushStream{s}, nil
	}
	return s, nil
}

func (c *Camera) release(s *Stream) {
	c.mu.Lock()
	if c.stream == s {
		c.stream = nil
		if err := c.sendLocked(Message{Type: TypeStop, StreamID: s.id}); err != nil && !errors.Is(err, errCameraGone) {
			c.log.Warn("failed to send stop", "camera", c.ID, "error", err)
		}
	}
	c.mu.Unlock()

	if s.close() {
		c.log.Info("camera stream closed", "camera", c.ID, "stream", s.id)
	}
}

func (c *Camera) applyTorch(s *Stream, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != s {
		return errStreamClosed
	}
	if !c.Profile.Torch {
		return errors.New("camera has no torch")
	}
	return c.sendLocked(Message{Type: TypeTorch, StreamID: s.id, Torch: &on})
}

// Answer delivers the client's reply to a permission prompt. A reply that
// arrives with no prompt pending only updates the permission state.
func (c *Camera) Answer(granted bool, errName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case granted:
		c.permission = PermissionGranted
	case capture.KindFromName(errName) == capture.KindPermissionDenied, errName == "":
		c.permission = PermissionDenied
	}

	if c.pending != nil {
		c.pending <- answer{granted: granted, errName: errName}
		c.pending = nil
	}
}

// ReportError handles a platform error the client reports outside of a
// permission reply. A pending prompt fails with it.
func (c *Camera) ReportError(name string) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		pending <- answer{errName: name}
		return
	}
	c.log.Warn("camera reported error", "camera", c.ID, "error", name, "kind", capture.KindFromName(name))
}

// PushFrame decodes an encoded frame and delivers it to the open stream.
// Frames arriving while no stream is open are dropped.
func (c *Camera) PushFrame(data []byte) error {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	img, err := imaging.DecodeFrame(data, c.maxDim)
	if err != nil {
		return fmt.Errorf("camera %s: %w", c.ID, err)
	}
	s.push(img)
	return nil
}

// close disconnects the camera: a pending prompt fails, the open stream
// ends and the outbox is closed.
func (c *Camera) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	s := c.stream
	c.stream = nil
	if c.pending != nil {
		c.pending <- answer{errName: "NotFoundError"}
		c.pending = nil
	}
	close(c.out)
	c.mu.Unlock()

	if s != nil {
		s.close()
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
