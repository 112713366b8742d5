// Package media implements the capture device on top of remote cameras that
// stream frames to the service over a websocket feed.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/erazemk/skener/internal/capture"
)

var errNoCamera = errors.New("no camera connected")

// CameraInfo describes a connected camera.
type CameraInfo struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	Facing     string     `json:"facing,omitempty"`
	Torch      bool       `json:"torch"`
	Continuous bool       `json:"continuous"`
	Permission Permission `json:"permission"`
	Streaming  bool       `json:"streaming"`
}

// Hub tracks the cameras of one operator and implements capture.Device.
type Hub struct {
	maxDim int
	log    *slog.Logger

	mu      sync.Mutex
	cameras []*Camera
}

// NewHub returns an empty hub. Frames are downscaled to maxDim before
// decoding; zero keeps the imaging default.
func NewHub(maxDim int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{maxDim: maxDim, log: logger}
}

// Register adds a camera. A camera with the same ID replaces the old one,
// which is disconnected.
func (h *Hub) Register(c *Camera) {
	c.maxDim = h.maxDim
	c.log = h.log

	h.mu.Lock()
	var old *Camera
	for i, existing := range h.cameras {
		if existing.ID == c.ID {
			old = existing
			h.cameras = append(h.cameras[:i], h.cameras[i+1:]...)
			break
		}
	}
	h.cameras = append(h.cameras, c)
	h.mu.Unlock()

	if old != nil {
		old.close()
		h.log.Info("camera replaced", "camera", c.ID)
	}
	h.log.Info("camera connected", "camera", c.ID, "label", c.Profile.Label, "facing", c.Profile.Facing)
}

// Unregister removes and disconnects a camera.
func (h *Hub) Unregister(c *Camera) {
	h.mu.Lock()
	found := false
	for i, existing := range h.cameras {
		if existing == c {
			h.cameras = append(h.cameras[:i], h.cameras[i+1:]...)
			found = true
			break
		}
	}
	h.mu.Unlock()

	c.close()
	if found {
		h.log.Info("camera disconnected", "camera", c.ID)
	}
}

// Close disconnects every camera.
func (h *Hub) Close() {
	h.mu.Lock()
	cameras := h.cameras
	h.cameras = nil
	h.mu.Unlock()

	for _, c := range cameras {
		c.close()
	}
}

// Cameras lists the connected cameras in registration order.
func (h *Hub) Cameras() []CameraInfo {
	h.mu.Lock()
	cameras := append([]*Camera(nil), h.cameras...)
	h.mu.Unlock()

	infos := make([]CameraInfo, 0, len(cameras))
	for _, c := range cameras {
		infos = append(infos, CameraInfo{
			ID:         c.ID,
			Label:      c.Profile.Label,
			Facing:     c.Profile.Facing,
			Torch:      c.Profile.Torch,
			Continuous: c.Profile.Continuous,
			Permission: c.Permission(),
			Streaming:  c.Streaming(),
		})
	}
	return infos
}

// pick prefers an idle camera facing the requested way, then any idle
// camera, then the first one.
func (h *Hub) pick(facing string) *Camera {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.cameras) == 0 {
		return nil
	}
	var idle *Camera
	for _, c := range h.cameras {
		if c.Streaming() {
			continue
		}
		if facing != "" && c.Profile.Facing == facing {
			return c
		}
		if idle == nil {
			idle = c
		}
	}
	if idle != nil {
		return idle
	}
	return h.cameras[0]
}

// Acquire opens a stream on the best matching camera. It blocks while the
// client answers a permission prompt.
func (h *Hub) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	cam := h.pick(c.FacingMode)
	if cam == nil {
		return nil, capture.NewError(capture.KindNoDeviceFound, errNoCamera)
	}
	return cam.acquire(ctx, c)
}

// Release closes a stream and tells its camera to stop. Releasing twice is a
// no-op.
func (h *Hub) Release(s capture.Stream) {
	base, ok := baseStream(s)
	if !ok {
		return
	}
	base.camera.release(base)
}

// Capabilities reports the features of the stream's camera.
func (h *Hub) Capabilities(s capture.Stream) capture.Capabilities {
	base, ok := baseStream(s)
	if !ok {
		return capture.Capabilities{}
	}
	return capture.Capabilities{Torch: base.camera.Profile.Torch}
}

// ApplyTorch asks the stream's camera to switch its torch.
func (h *Hub) ApplyTorch(s capture.Stream, on bool) error {
	base, ok := baseStream(s)
	if !ok {
		return errStreamClosed
	}
	return base.camera.applyTorch(base, on)
}
