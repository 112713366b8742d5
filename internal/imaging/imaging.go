// Package imaging turns raw camera frames into images the decoder can read.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
)

// DefaultMaxDimension is the largest width or height handed to the decoder.
const DefaultMaxDimension = 1280

// MaxFrameBytes caps the size of a single encoded frame.
const MaxFrameBytes = 8 << 20

// AllowedMIME lists the accepted frame encodings.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ErrEmptyFrame is returned for a zero-length frame.
var ErrEmptyFrame = errors.New("empty frame")

// DecodeFrame validates an encoded frame by sniffing its bytes, decodes it
// and downscales it so neither side exceeds maxDim. A maxDim of zero or less
// uses DefaultMaxDimension.
func DecodeFrame(data []byte, maxDim int) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data) > MaxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d bytes", len(data))
	}

	// Client-declared types are not trusted.
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return nil, fmt.Errorf("unsupported frame format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return Downscale(img, maxDim), nil
}

// Downscale resizes img so neither dimension exceeds maxDim, preserving the
// aspect ratio. Images already within bounds are returned as is.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
