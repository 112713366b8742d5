package resolve

import (
	"errors"
	"fmt"
)

// Kind classifies a failed lookup.
type Kind int

// Lookup failure kinds.
const (
	KindNotFound Kind = iota + 1
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "lookup_not_found"
	case KindTransport:
		return "lookup_transport_failure"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// LookupError is a failed lookup. It never ends the scanning session; the
// operator may retry, scan again or search.
type LookupError struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Kind == KindNotFound {
		return fmt.Sprintf("no item matches %q", e.Key)
	}
	return fmt.Sprintf("looking up %q: %v", e.Key, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ErrInvalidRequest is returned for a resolution request that names neither
// or both of a code and a catalog item.
var ErrInvalidRequest = errors.New("request must carry exactly one of a code or an item")

// ErrUnknownItem is returned by Select for an ID outside the current catalog.
var ErrUnknownItem = fmt.Errorf("%w: item is not in the current catalog", ErrInvalidRequest)

// KindOf returns the lookup failure kind of err, or 0.
func KindOf(err error) Kind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
