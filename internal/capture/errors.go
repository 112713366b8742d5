package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a capture session failed.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindNoDeviceFound
	KindDeviceBusy
	KindConstraintsUnsupported
	KindDecoderUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNoDeviceFound:
		return "no_device_found"
	case KindDeviceBusy:
		return "device_busy"
	case KindConstraintsUnsupported:
		return "constraints_unsupported"
	case KindDecoderUnavailable:
		return "decode_library_unavailable"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified capture failure.
type Error struct {
	Kind Kind
	Err  error
}

// NewError returns a classified error wrapping err.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text shown to the operator.
func (e *Error) Message() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Camera access was denied. Allow camera access for this site and try again."
	case KindNoDeviceFound:
		return "No camera was found. Connect a camera or search for the item instead."
	case KindDeviceBusy:
		return "The camera is in use by another application or tab. Close it and try again."
	case KindConstraintsUnsupported:
		return "The camera does not support any of the requested video settings."
	case KindDecoderUnavailable:
		return "Barcode decoding is unavailable on this device. Search for the item instead."
	default:
		return "The camera could not be started."
	}
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// KindFromName maps a platform media error name, as reported by browsers
// from getUserMedia, to a failure kind.
func KindFromName(name string) Kind {
	switch strings.TrimSpace(name) {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return KindPermissionDenied
	case "NotFoundError", "DevicesNotFoundError":
		return KindNoDeviceFound
	case "NotReadableError", "TrackStartError", "AbortError":
		return KindDeviceBusy
	case "OverconstrainedError", "ConstraintNotSatisfiedError", "TypeError":
		return KindConstraintsUnsupported
	default:
		return KindUnknown
	}
}

// terminal reports whether an acquisition failure of this kind makes looser
// constraints pointless.
func (k Kind) terminal() bool {
	return k == KindPermissionDenied || k == KindNoDeviceFound
}
