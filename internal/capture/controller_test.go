package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	id string
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) LatestFrame() (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

type bareStream struct {
	id string
}

func (s *bareStream) ID() string { return s.id }

type fakeDevice struct {
	mu sync.Mutex

	reject  map[string]error // profile -> error returned by Acquire
	partial bool             // return a stream alongside rejections
	bare    bool             // hand out streams without frames
	grant   chan struct{}    // when set, Acquire waits for it and ignores ctx
	torch   bool

	attempts  []string
	active    map[string]bool
	maxActive int
	acquired  int
	released  int
	torchLog  []bool
	torchOnAt map[string]bool // torch state of each stream at release
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		reject:    map[string]error{},
		active:    map[string]bool{},
		torchOnAt: map[string]bool{},
	}
}

func (d *fakeDevice) newStream() Stream {
	d.acquired++
	id := fmt.Sprintf("stream-%d", d.acquired)
	d.active[id] = true
	if len(d.active) > d.maxActive {
		d.maxActive = len(d.active)
	}
	if d.bare {
		return &bareStream{id: id}
	}
	return &fakeStream{id: id}
}

func (d *fakeDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if d.grant != nil {
		<-d.grant
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts = append(d.attempts, c.Profile)
	if err, ok := d.reject[c.Profile]; ok {
		if d.partial {
			return d.newStream(), err
		}
		return nil, err
	}
	return d.newStream(), nil
}

func (d *fakeDevice) Release(s Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active[s.ID()] {
		panic("stream released twice: " + s.ID())
	}
	delete(d.active, s.ID())
	d.released++
}

func (d *fakeDevice) Capabilities(Stream) Capabilities {
	return Capabilities{Torch: d.torch}
}

func (d *fakeDevice) ApplyTorch(s Stream, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active[s.ID()] {
		return errors.New("stream not active")
	}
	d.torchLog = append(d.torchLog, on)
	d.torchOnAt[s.ID()] = on
	return nil
}

func (d *fakeDevice) snapshot() (attempts []string, active, maxActive, acquired, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempts...), len(d.active), d.maxActive, d.acquired, d.released
}

type fakeDecoder struct {
	mu sync.Mutex

	continuous  bool          // AttachContinuous succeeds
	emitAfter   time.Duration // continuous: delay before reporting code; 0 never reports
	code        string
	detectOn    int  // manual: call number that finds the code; 0 never
	unavailable bool // manual: report ErrDecoderUnavailable

	calls    int
	attached int
	detached int
}

type fakeHandle struct {
	stop chan struct{}
	once sync.Once
}

func (d *fakeDecoder) AttachContinuous(ctx context.Context, s Stream, onResult func(Detection, error)) (Handle, error) {
	if !d.continuous {
		return nil, errors.New("continuous decoding not supported")
	}
	d.mu.Lock()
	d.attached++
	d.mu.Unlock()

	h := &fakeHandle{stop: make(chan struct{})}
	if d.emitAfter > 0 {
		go func() {
			select {
			case <-h.stop:
			case <-time.After(d.emitAfter):
				onResult(Detection{}, ErrNotFound)
				onResult(Detection{Code: d.code, Format: "qr_code"}, nil)
			}
		}()
	}
	return h, nil
}

func (d *fakeDecoder) DecodeSingleFrame(ctx context.Context, src FrameSource) (Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.unavailable {
		return Detection{}, ErrDecoderUnavailable
	}
	if _, err := src.LatestFrame(); err != nil {
		return Detection{}, err
	}
	if d.detectOn > 0 && d.calls >= d.detectOn {
		return Detection{Code: d.code, Format: "ean_13"}, nil
	}
	return Detection{}, ErrNotFound
}

func (d *fakeDecoder) Detach(h Handle) {
	fh := h.(*fakeHandle)
	fh.once.Do(func() {
		close(fh.stop)
		d.mu.Lock()
		d.detached++
		d.mu.Unlock()
	})
}

func (d *fakeDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(dev Device, dec Decoder) *Controller {
	return NewController(dev, dec, Options{PollInterval: 5 * time.Millisecond}, testLogger())
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish, state %s", s.State())
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", s.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionContinuousDetection(t *testing.T) {
	dev := newFakeDevice()
	dec := &fakeDecoder{continuous: true, emitAfter: 10 * time.Millisecond, code: "12345"}
	c := newTestController(dev, dec)

	s := c.Start(context.Background())
	d, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Code != "12345" {
		t.Errorf("Code = %q, want %q", d.Code, "12345")
	}
	if s.State() != StateDetected {
		t.Errorf("State = %s, want detected", s.State())
	}
	if s.Profile() != ProfileFull {
		t.Errorf("Profile = %q, want %q", s.Profile(), ProfileFull)
	}

	_, active, _, acquired, released := dev.snapshot()
	if active != 0 || acquired != released {
		t.Errorf("active = %d, acquired = %d, released = %d", active, acquired, released)
	}
	if dec.detached != 1 {
		t.Errorf("detached = %d, want 1", dec.detached)
	}
	if c.State() != StateIdle {
		t.Errorf("controller state = %s, want idle", c.State())
	}
}

func TestSessionLadderFallback(t *testing.T) {
	dev := newFakeDevice()
	dev.partial = true
	dev.reject[ProfileFull] = NewError(KindConstraintsUnsupported, errors.New("overconstrained"))
	dev.reject[ProfileFacing] = errors.New("something odd")
	dec := &fakeDecoder{continuous: true, emitAfter: 5 * time.Millisecond, code: "A1"}
	c := newTestController(dev, dec)

	s := c.Start(context.Background())
	if _, err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	attempts, active, maxActive, acquired, released := dev.snapshot()
	want := []string{ProfileFull, ProfileFacing, ProfileMinimal}
	if fmt.Sprint(attempts) != fmt.Sprint(want) {
		t.Errorf("attempts = %v, want %v", attempts, want)
	}
	if s.Profile() != ProfileMinimal {
		t.Errorf("Profile = %q, want %q", s.Profile(), ProfileMinimal)
	}
	if acquired != 3 || released != 3 || active != 0 {
		t.Errorf("acquired = %d, released = %d, active = %d", acquired, released, active)
	}
	if maxActive != 1 {
		t.Errorf("maxActive = %d, want 1", maxActive)
	}
}

func TestSessionLadderAbortsOnTerminalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"permission denied", NewError(KindPermissionDenied, errors.New("denied")), KindPermissionDenied},
		{"no device", NewError(KindNoDeviceFound, errors.New("none")), KindNoDeviceFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			for _, p := range []string{ProfileFull, ProfileFacing, ProfileMinimal, ProfileFixed} {
				dev.reject[p] = tt.err
			}
			c := newTestController(dev, &fakeDecoder{continuous: true})

			s := c.Start(context.Background())
			_, err := s.Wait(context.Background())
			if KindOf(err) != tt.want {
				t.Fatalf("Wait error = %v, want kind %s", err, tt.want)
			}
			attempts, _, _, _, _ := dev.snapshot()
			if len(attempts) != 1 {
				t.Errorf("attempts = %v, want only the first profile", attempts)
			}
			if s.State() != StateFailed {
				t.Errorf("State = %s, want failed", s.State())
			}
			if s.Err().Message() == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestSessionLadderExhausted(t *testing.T) {
	tests := []struct {
		name   string
		reject map[string]error
		want   Kind
	}{
		{
			name: "all unsupported",
			reject: map[string]error{
				ProfileFull:    NewError(KindConstraintsUnsupported, nil),
				ProfileFacing:  NewError(KindConstraintsUnsupported, nil),
				ProfileMinimal: errors.New("weird"),
				ProfileFixed:   NewError(KindConstraintsUnsupported, nil),
			},
			want: KindConstraintsUnsupported,
		},
		{
			name: "busy somewhere",
			reject: map[string]error{
				ProfileFull:    NewError(KindConstraintsUnsupported, nil),
				ProfileFacing:  NewError(KindDeviceBusy, nil),
				ProfileMinimal: NewError(KindConstraintsUnsupported, nil),
				ProfileFixed:   NewError(KindConstraintsUnsupported, nil),
			},
			want: KindDeviceBusy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.reject = tt.reject
			c := newTestController(dev, &fakeDecoder{continuous: true})

			s := c.Start(context.Background())
			_, err := s.Wait(context.Background())
			if KindOf(err) != tt.want {
				t.Fatalf("Wait error = %v, want kind %s", err, tt.want)
			}
			attempts, _, _, _, _ := dev.snapshot()
			if len(attempts) != 4 {
				t.Errorf("attempts = %v, want all four profiles", attempts)
			}
		})
	}
}

func TestSessionManualLoopDetects(t *testing.T) {
	dev := newFakeDevice()
	dec := &fakeDecoder{detectOn: 3, code: "3830000000001"}
	c := newTestController(dev, dec)

	s := c.Start(context.Background())
	d, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Code != "3830000000001" || d.Format != "ean_13" {
		t.Errorf("Detection = %+v", d)
	}
	if got := dec.callCount(); got != 3 {
		t.Errorf("decode calls = %d, want 3", got)
	}
	_, active, _, _, _ := dev.snapshot()
	if active != 0 {
		t.Errorf("active streams = %d, want 0", active)
	}
}

func TestSessionManualLoopStopsOnStop(t *testing.T) {
	dev := newFakeDevice()
	dec := &fakeDecoder{}
	c := newTestController(dev, dec)

	s := c.Start(context.Background())
	waitState(t, s, StateManualDecodeLoop)
	time.Sleep(20 * time.Millisecond)

	s.Stop()
	after := dec.callCount()
	time.Sleep(30 * time.Millisecond)

	if got := dec.callCount(); got != after {
		t.Errorf("decode calls grew after Stop: %d -> %d", after, got)
	}
	if s.State() != StateIdle {
		t.Errorf("State = %s, want idle", s.State())
	}
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Wait error = %v, want ErrStopped", err)
	}
	_, active, _, _, _ := dev.snapshot()
	if active != 0 {
		t.Errorf("active streams = %d, want 0", active)
	}
}

func TestSessionManualLoopUnavailable(t *testing.T) {
	tests := []struct {
		name string
		bare bool
		dec  *fakeDecoder
	}{
		{"stream without frames", true, &fakeDecoder{}},
		{"decoder unavailable", false, &fakeDecoder{unavailable: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.bare = tt.bare
			c := newTestController(dev, tt.dec)

			s := c.Start(context.Background())
			_, err := s.Wait(context.Background())
			if KindOf(err) != KindDecoderUnavailable {
				t.Fatalf("Wait error = %v, want decoder unavailable", err)
			}
			if s.State() != StateFailed {
				t.Errorf("State = %s, want failed", s.State())
			}
			_, active, _, _, _ := dev.snapshot()
			if active != 0 {
				t.Errorf("active streams = %d, want 0", active)
			}
		})
	}
}

func TestSessionStopDuringPermissionReleasesLateGrant(t *testing.T) {
	dev := newFakeDevice()
	dev.grant = make(chan struct{})
	dec := &fakeDecoder{continuous: true, emitAfter: time.Millisecond, code: "late"}
	c := newTestController(dev, dec)

	s := c.Start(context.Background())
	if s.State() != StateRequestingPermission {
		t.Fatalf("State = %s, want requesting_permission", s.State())
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a pending permission prompt")
	}

	close(dev.grant)
	waitDone(t, s)

	if s.State() == StateDetected {
		t.Error("late grant produced a detection")
	}
	_, active, _, acquired, released := dev.snapshot()
	if acquired != 1 || released != 1 || active != 0 {
		t.Errorf("acquired = %d, released = %d, active = %d", acquired, released, active)
	}
	if dec.attached != 0 {
		t.Errorf("decoder attached %d times after stop", dec.attached)
	}
}

func TestControllerStartStopsPrevious(t *testing.T) {
	dev := newFakeDevice()
	dec := &fakeDecoder{continuous: true}
	c := newTestController(dev, dec)

	first := c.Start(context.Background())
	waitState(t, first, StateDecoding)

	second := c.Start(context.Background())
	waitState(t, second, StateDecoding)

	select {
	case <-first.Done():
	default:
		t.Fatal("first session still running")
	}
	if c.Current() != second {
		t.Error("Current is not the latest session")
	}

	c.Stop()
	waitDone(t, second)

	_, active, maxActive, acquired, released := dev.snapshot()
	if maxActive != 1 {
		t.Errorf("maxActive = %d, want 1", maxActive)
	}
	if active != 0 || acquired != released {
		t.Errorf("active = %d, acquired = %d, released = %d", active, acquired, released)
	}
}

func TestSessionContextCancel(t *testing.T) {
	dev := newFakeDevice()
	c := newTestController(dev, &fakeDecoder{continuous: true})

	ctx, cancel := context.WithCancel(context.Background())
	s := c.Start(ctx)
	waitState(t, s, StateDecoding)
	cancel()
	waitDone(t, s)

	_, active, _, _, _ := dev.snapshot()
	if active != 0 {
		t.Errorf("active streams = %d, want 0", active)
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	dev := newFakeDevice()
	c := newTestController(dev, &fakeDecoder{continuous: true})

	s := c.Start(context.Background())
	waitState(t, s, StateDecoding)
	s.Stop()
	s.Stop()
	c.Stop()

	_, _, _, acquired, released := dev.snapshot()
	if acquired != 1 || released != 1 {
		t.Errorf("acquired = %d, released = %d", acquired, released)
	}
}

func TestSessionTorch(t *testing.T) {
	t.Run("supported", func(t *testing.T) {
		dev := newFakeDevice()
		dev.torch = true
		c := newTestController(dev, &fakeDecoder{continuous: true})

		s := c.Start(context.Background())
		waitState(t, s, StateDecoding)

		if !s.SetTorch(true) {
			t.Fatal("SetTorch(true) = false")
		}
		if !s.TorchEnabled() {
			t.Error("TorchEnabled = false")
		}
		if s.State() != StateDecoding {
			t.Errorf("torch changed state to %s", s.State())
		}

		s.Stop()
		dev.mu.Lock()
		defer dev.mu.Unlock()
		if on := dev.torchOnAt["stream-1"]; on {
			t.Error("torch still on when stream was released")
		}
		if s.TorchEnabled() {
			t.Error("TorchEnabled after stop")
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		dev := newFakeDevice()
		c := newTestController(dev, &fakeDecoder{continuous: true})

		s := c.Start(context.Background())
		waitState(t, s, StateDecoding)
		if s.SetTorch(true) {
			t.Error("SetTorch(true) = true without torch capability")
		}
		s.Stop()
		if len(dev.torchLog) != 0 {
			t.Errorf("torch applied: %v", dev.torchLog)
		}
	})

	t.Run("no stream", func(t *testing.T) {
		dev := newFakeDevice()
		dev.torch = true
		dev.grant = make(chan struct{})
		c := newTestController(dev, &fakeDecoder{continuous: true})

		s := c.Start(context.Background())
		if s.SetTorch(true) {
			t.Error("SetTorch(true) = true before a stream was acquired")
		}
		s.Stop()
		close(dev.grant)
		waitDone(t, s)
	})
}

func TestSessionLadderExhaustedKeepsCause(t *testing.T) {
	dev := newFakeDevice()
	inUse := errors.New("camera in use by another tab")
	for _, p := range []string{ProfileFull, ProfileFacing, ProfileMinimal, ProfileFixed} {
		dev.reject[p] = NewError(KindDeviceBusy, inUse)
	}
	c := newTestController(dev, &fakeDecoder{continuous: true})

	_, err := c.Start(context.Background()).Wait(context.Background())
	if got, want := err.Error(), "device_busy: camera in use by another tab"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inUse) {
		t.Errorf("err = %v, want it to wrap the device error", err)
	}
}
