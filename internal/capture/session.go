package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one attempt to read a barcode from a camera. It exclusively owns
// the stream it acquires and releases it exactly once.
type Session struct {
	ID string

	ctrl   *Controller
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	teardownOnce sync.Once
	detections   chan Detection

	mu        sync.Mutex
	state     State
	stream    Stream
	handle    Handle
	detection Detection
	err       *Error
	torch     bool
	profile   string
	started   time.Time
}

func newSession(parent context.Context, c *Controller) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:         uuid.NewString(),
		ctrl:       c,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		detections: make(chan Detection, 1),
		state:      StateRequestingPermission,
		started:    time.Now(),
	}
}

// State returns the session state. A finished session keeps its terminal
// state: StateDetected, StateFailed, or StateIdle after a stop.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Code returns the decoded code, or "" if nothing was detected.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detection.Code
}

// Err returns the classified failure, or nil.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TorchEnabled reports whether the torch is on.
func (s *Session) TorchEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torch
}

// Profile returns the name of the constraint profile the stream was acquired
// with, or "" before acquisition.
func (s *Session) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Done is closed once the session has finished and released its stream.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes and returns what it detected. A
// failed session returns its *Error; a stopped one returns ErrStopped.
func (s *Session) Wait(ctx context.Context) (Detection, error) {
	select {
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateDetected:
		return s.detection, nil
	case s.err != nil:
		return Detection{}, s.err
	default:
		return Detection{}, ErrStopped
	}
}

// Stop ends the session. While the session is still waiting for a device it
// returns immediately; a stream granted afterwards is released on arrival.
// Otherwise Stop waits until the stream has been released.
func (s *Session) Stop() {
	s.mu.Lock()
	state := s.state
	s.cancel()
	s.mu.Unlock()

	if state == StateRequestingPermission {
		return
	}
	<-s.done
}

// SetTorch switches the torch on or off if the stream supports it. It reports
// whether the torch is now on. It never changes the session state.
func (s *Session) SetTorch(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || !s.state.Active() {
		return s.torch
	}
	if !s.ctrl.device.Capabilities(s.stream).Torch {
		return s.torch
	}
	if err := s.ctrl.device.ApplyTorch(s.stream, on); err != nil {
		s.ctrl.log.Warn("failed to toggle torch", "session", s.ID, "error", err)
		return s.torch
	}
	s.torch = on
	return s.torch
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			s.ctrl.log.Error("capture session panicked", "session", s.ID, "panic", r)
			kind := KindConstraintsUnsupported
			if s.State() != StateRequestingPermission {
				kind = KindDecoderUnavailable
			}
			s.fail(NewError(kind, fmt.Errorf("panic: %v", r)))
		}
	}()

	stream, profile, err := s.acquire()
	if err != nil {
		if s.ctx.Err() == nil {
			s.fail(err)
		}
		return
	}
	if !s.attach(stream, profile) {
		return
	}
	s.decode(stream)
}

// acquire walks the constraint ladder until a profile is accepted.
func (s *Session) acquire() (Stream, string, error) {
	log := s.ctrl.log
	busy := false
	var last error

	for _, c := range s.ctrl.ladder {
		if err := s.ctx.Err(); err != nil {
			return nil, "", err
		}

		stream, err := s.ctrl.device.Acquire(s.ctx, c)
		if err == nil {
			return stream, c.Profile, nil
		}
		if stream != nil {
			s.ctrl.device.Release(stream)
		}
		if s.ctx.Err() != nil {
			return nil, "", s.ctx.Err()
		}

		kind := KindOf(err)
		log.Debug("camera rejected constraints", "session", s.ID, "profile", c.Profile, "kind", kind, "error", err)
		if kind.terminal() {
			return nil, "", err
		}
		if kind == KindDeviceBusy {
			busy = true
		}
		last = err
	}

	var ce *Error
	if errors.As(last, &ce) {
		last = ce.Err
	}
	if busy {
		return nil, "", NewError(KindDeviceBusy, last)
	}
	return nil, "", NewError(KindConstraintsUnsupported, last)
}

// attach hands a freshly acquired stream to the session. A stream that
// arrives after the session was stopped is released at once.
func (s *Session) attach(stream Stream, profile string) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		s.ctrl.log.Info("releasing stream granted after stop", "session", s.ID, "stream", stream.ID())
		s.ctrl.device.Release(stream)
		return false
	}
	s.stream = stream
	s.profile = profile
	s.state = StateStreaming
	s.mu.Unlock()

	s.ctrl.log.Info("camera stream acquired", "session", s.ID, "stream", stream.ID(), "profile", profile)
	return true
}

func (s *Session) decode(stream Stream) {
	handle, err := s.ctrl.decoder.AttachContinuous(s.ctx, stream, func(d Detection, err error) {
		if err != nil {
			return
		}
		select {
		case s.detections <- d:
		default:
		}
	})
	if err != nil {
		s.ctrl.log.Warn("continuous decoding unavailable, polling frames", "session", s.ID, "error", err)
		s.manualLoop(stream)
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		s.ctrl.decoder.Detach(handle)
		return
	}
	s.handle = handle
	s.state = StateDecoding
	s.mu.Unlock()

	select {
	case <-s.ctx.Done():
	case d := <-s.detections:
		s.detect(d)
	}
}

// manualLoop decodes single frames at the poll interval until a code is
// found or the session leaves the loop.
func (s *Session) manualLoop(stream Stream) {
	src, ok := stream.(FrameSource)
	if !ok {
		s.fail(NewError(KindDecoderUnavailable, errors.New("stream exposes no frames")))
		return
	}
	if !s.transition(StateStreaming, StateManualDecodeLoop) {
		return
	}

	ticker := time.NewTicker(s.ctrl.poll)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil || s.State() != StateManualDecodeLoop {
			return
		}

		d, err := s.ctrl.decoder.DecodeSingleFrame(s.ctx, src)
		switch {
		case err == nil:
			s.detect(d)
			return
		case errors.Is(err, ErrDecoderUnavailable):
			s.fail(NewError(KindDecoderUnavailable, err))
			return
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoFrame):
		default:
			s.ctrl.log.Debug("frame decode failed", "session", s.ID, "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from || s.ctx.Err() != nil {
		return false
	}
	s.state = to
	return true
}

// detect records d unless the session already left its decoding states.
func (s *Session) detect(d Detection) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil || (s.state != StateDecoding && s.state != StateManualDecodeLoop) {
		s.mu.Unlock()
		return false
	}
	s.state = StateDetected
	s.detection = d
	s.mu.Unlock()

	s.ctrl.log.Info("barcode detected", "session", s.ID, "code", d.Code, "format", d.Format,
		"elapsed", time.Since(s.started).Round(time.Millisecond))
	s.cancel()
	return true
}

func (s *Session) fail(err error) {
	var ce *Error
	if !errors.As(err, &ce) {
		ce = NewError(KindUnknown, err)
	}

	s.mu.Lock()
	if s.state == StateDetected {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = ce
	s.mu.Unlock()

	s.ctrl.log.Warn("capture failed", "session", s.ID, "kind", ce.Kind, "error", ce.Err)
}

// teardown detaches the decoder, turns the torch off and releases the stream.
// It runs once, on every exit path of run.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		stream, handle, torch := s.stream, s.handle, s.torch
		s.stream, s.handle, s.torch = nil, nil, false
		if s.state.Active() {
			s.state = StateIdle
		}
		s.mu.Unlock()

		if handle != nil {
			s.ctrl.decoder.Detach(handle)
		}
		if stream == nil {
			return
		}
		if torch {
			if err := s.ctrl.device.ApplyTorch(stream, false); err != nil {
				s.ctrl.log.Debug("failed to switch torch off", "session", s.ID, "error", err)
			}
		}
		s.ctrl.device.Release(stream)
		s.ctrl.log.Info("camera stream released", "session", s.ID, "stream", stream.ID())
	})
}
