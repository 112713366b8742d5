package media

import (
	"errors"
	"fmt"

	"github.com/erazemk/skener/internal/capture"
)

// Negotiate checks constraints against what a camera announced and returns
// the settings it should stream with. Rejections are classified as
// capture.KindConstraintsUnsupported.
func Negotiate(p Profile, c capture.Constraints) (Settings, error) {
	if c.AspectRatio > 0 && !p.AspectRatio {
		return Settings{}, unsupported("aspect ratio constraint not supported")
	}

	sizing := p.Sizing
	if sizing == "" {
		sizing = SizingAny
	}

	w, err := resolveDimension("width", c.Width, p.MaxWidth, sizing)
	if err != nil {
		return Settings{}, err
	}
	h, err := resolveDimension("height", c.Height, p.MaxHeight, sizing)
	if err != nil {
		return Settings{}, err
	}

	fps := p.MaxFrameRate
	if c.FrameRate > 0 && (fps == 0 || c.FrameRate < fps) {
		fps = c.FrameRate
	}

	return Settings{Width: w, Height: h, FrameRate: fps, FacingMode: p.Facing}, nil
}

func resolveDimension(name string, d capture.Dimension, limit int, sizing string) (int, error) {
	switch {
	case d.IsZero():
		return limit, nil

	case d.Exact > 0:
		if sizing == SizingRanges {
			return 0, unsupported("exact " + name + " not supported")
		}
		if limit > 0 && d.Exact > limit {
			return 0, unsupported(fmt.Sprintf("exact %s %d exceeds %d", name, d.Exact, limit))
		}
		return d.Exact, nil

	case d.HasRange():
		if sizing == SizingExact {
			return 0, unsupported(name + " ranges not supported")
		}
		if limit > 0 && d.Min > limit {
			return 0, unsupported(fmt.Sprintf("minimum %s %d exceeds %d", name, d.Min, limit))
		}
	}

	v := d.Ideal
	if v == 0 {
		v = limit
	}
	if limit > 0 && v > limit {
		v = limit
	}
	if d.Max > 0 && v > d.Max {
		v = d.Max
	}
	if v < d.Min {
		v = d.Min
	}
	return v, nil
}

func unsupported(msg string) error {
	return capture.NewError(capture.KindConstraintsUnsupported, errors.New(msg))
}
