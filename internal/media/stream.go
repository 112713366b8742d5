package media

import (
	"errors"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/erazemk/skener/internal/capture"
)

var errStreamClosed = errors.New("stream closed")

// Stream is a live stream from a remote camera. It keeps the latest frame
// for polling and fans frames out to subscribers.
type Stream struct {
	id          string
	camera      *Camera
	constraints capture.Constraints
	settings    Settings

	mu     sync.Mutex
	latest image.Image
	subs   map[int]chan image.Image
	nextID int
	closed bool
}

func newStream(cam *Camera, c capture.Constraints, settings Settings) *Stream {
	return &Stream{
		id:          uuid.NewString(),
		camera:      cam,
		constraints: c,
		settings:    settings,
		subs:        make(map[int]chan image.Image),
	}
}

// ID returns the stream ID.
func (s *Stream) ID() string { return s.id }

// Settings returns the negotiated settings.
func (s *Stream) Settings() Settings { return s.settings }

// LatestFrame returns the most recent frame.
func (s *Stream) LatestFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStreamClosed
	}
	if s.latest == nil {
		return nil, capture.ErrNoFrame
	}
	return s.latest, nil
}

func (s *Stream) subscribe() (<-chan image.Image, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan image.Image, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// push stores img as the latest frame and hands it to every subscriber. A
// subscriber that has not taken the previous frame gets it replaced.
func (s *Stream) push(img image.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.latest = img
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- img
	}
	return true
}

func (s *Stream) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.latest = nil
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	return true
}

// pushStream is handed out for cameras that stream continuously, so the
// decoder can subscribe to frames instead of polling.
type pushStream struct {
	*Stream
}

func (p pushStream) Subscribe() (<-chan image.Image, func()) {
	return p.subscribe()
}

func baseStream(s capture.Stream) (*Stream, bool) {
	switch v := s.(type) {
	case *Stream:
		return v, v != nil
	case pushStream:
		return v.Stream, v.Stream != nil
	}
	return nil, false
}
