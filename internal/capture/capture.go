// Package capture owns the camera side of scanning: acquiring a stream under a
// ladder of progressively looser constraints, running the decode loop against
// it and releasing it again on every exit path.
package capture

import (
	"context"
	"errors"
	"image"
)

// State is the state of a capture session.
type State int

// Session states.
const (
	StateIdle State = iota
	StateRequestingPermission
	StateStreaming
	StateDecoding
	StateManualDecodeLoop
	StateDetected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateStreaming:
		return "streaming"
	case StateDecoding:
		return "decoding"
	case StateManualDecodeLoop:
		return "manual_decode_loop"
	case StateDetected:
		return "detected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a session in this state may still hold a stream.
func (s State) Active() bool {
	switch s {
	case StateRequestingPermission, StateStreaming, StateDecoding, StateManualDecodeLoop:
		return true
	}
	return false
}

// Facing modes.
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// Dimension constrains a width or height in pixels. Zero fields are unset.
// Min and Max form a range; Exact pins the value.
type Dimension struct {
	Min   int `json:"min,omitempty"`
	Ideal int `json:"ideal,omitempty"`
	Max   int `json:"max,omitempty"`
	Exact int `json:"exact,omitempty"`
}

// IsZero reports whether no field is set.
func (d Dimension) IsZero() bool {
	return d == Dimension{}
}

// HasRange reports whether the dimension asks for a min/max range.
func (d Dimension) HasRange() bool {
	return d.Min > 0 || d.Max > 0
}

// Constraints describe the video a session asks a device for.
type Constraints struct {
	Profile     string    `json:"profile"`
	FacingMode  string    `json:"facing_mode,omitempty"`
	Width       Dimension `json:"width,omitzero"`
	Height      Dimension `json:"height,omitzero"`
	FrameRate   float64   `json:"frame_rate,omitempty"`
	AspectRatio float64   `json:"aspect_ratio,omitempty"`
}

// Capabilities are the optional features of an active video track.
type Capabilities struct {
	Torch bool `json:"torch"`
}

// Stream is a live video stream handed out by a Device.
type Stream interface {
	ID() string
}

// FrameSource yields the most recent still frame of a stream.
type FrameSource interface {
	LatestFrame() (image.Image, error)
}

// Device acquires and releases camera streams.
type Device interface {
	// Acquire requests a stream satisfying c. It may block for as long as the
	// user takes to answer a permission prompt. A partially acquired stream may
	// be returned together with an error; the caller releases it.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	Release(s Stream)
	Capabilities(s Stream) Capabilities
	ApplyTorch(s Stream, on bool) error
}

// Detection is a decoded barcode.
type Detection struct {
	Code   string `json:"code"`
	Format string `json:"format,omitempty"`
}

// Handle identifies a continuous decode attachment.
type Handle any

// Decoder decodes barcodes from streams and frames.
type Decoder interface {
	// AttachContinuous decodes frames of s until detached, calling onResult
	// for every attempt. Attempts that find nothing report ErrNotFound.
	AttachContinuous(ctx context.Context, s Stream, onResult func(Detection, error)) (Handle, error)
	// DecodeSingleFrame decodes the current frame of src once.
	DecodeSingleFrame(ctx context.Context, src FrameSource) (Detection, error)
	Detach(h Handle)
}

var (
	// ErrNotFound reports that a frame held no readable barcode. It means
	// "keep trying", never failure.
	ErrNotFound = errors.New("no barcode found in frame")

	// ErrNoFrame reports that a stream has not produced a frame yet.
	ErrNoFrame = errors.New("no frame available yet")

	// ErrDecoderUnavailable reports that the decoder cannot decode at all.
	ErrDecoderUnavailable = errors.New("decoder unavailable")

	// ErrStopped is returned by Session.Wait for a session stopped before
	// anything was detected.
	ErrStopped = errors.New("capture stopped")
)
