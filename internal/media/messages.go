package media

import "github.com/erazemk/skener/internal/capture"

// Message types exchanged over a camera feed.
const (
	// Client to server.
	TypeHello      = "hello"
	TypePermission = "permission"
	TypeError      = "error"

	// Server to client.
	TypeRequestPermission = "request_permission"
	TypeStart             = "start"
	TypeStop              = "stop"
	TypeTorch             = "torch"
)

// Permission is the camera permission state a client reports.
type Permission string

// Permission states.
const (
	PermissionGranted Permission = "granted"
	PermissionPrompt  Permission = "prompt"
	PermissionDenied  Permission = "denied"
)

// Sizing modes describe which dimension constraints a camera accepts.
const (
	SizingAny    = "any"
	SizingRanges = "ranges"
	SizingExact  = "exact"
)

// Profile describes a camera as announced in its hello message.
type Profile struct {
	Label        string  `json:"label,omitempty"`
	Facing       string  `json:"facing,omitempty"`
	MaxWidth     int     `json:"max_width,omitempty"`
	MaxHeight    int     `json:"max_height,omitempty"`
	MaxFrameRate float64 `json:"max_frame_rate,omitempty"`
	Sizing       string  `json:"sizing,omitempty"`
	AspectRatio  bool    `json:"aspect_ratio,omitempty"`
	Torch        bool    `json:"torch,omitempty"`
	Continuous   bool    `json:"continuous,omitempty"`
}

// Settings are the video settings negotiated for a stream.
type Settings struct {
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	FacingMode string  `json:"facing_mode,omitempty"`
}

// Message is the JSON envelope of every text frame on a camera feed.
// Binary frames carry encoded JPEG or PNG images and have no envelope.
type Message struct {
	Type string `json:"type"`

	// hello
	CameraID   string     `json:"camera_id,omitempty"`
	Profile    *Profile   `json:"profile,omitempty"`
	Permission Permission `json:"permission,omitempty"`

	// permission, error
	Granted bool   `json:"granted,omitempty"`
	Error   string `json:"error,omitempty"`

	// request_permission, start, stop, torch
	StreamID    string               `json:"stream_id,omitempty"`
	Constraints *capture.Constraints `json:"constraints,omitempty"`
	Settings    *Settings            `json:"settings,omitempty"`
	Torch       *bool                `json:"torch,omitempty"`
}
