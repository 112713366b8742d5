// Package decode reads barcodes out of camera frames with gozxing.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/imaging"
)

// Supported symbologies.
const (
	FormatQRCode  = "qr_code"
	FormatEAN13   = "ean_13"
	FormatEAN8    = "ean_8"
	FormatUPCA    = "upc_a"
	FormatUPCE    = "upc_e"
	FormatCode128 = "code_128"
	FormatCode39  = "code_39"
	FormatCode93  = "code_93"
	FormatITF     = "itf"
	FormatCodabar = "codabar"
)

// AllFormats lists every supported symbology in the order readers are tried.
var AllFormats = []string{
	FormatQRCode,
	FormatEAN13,
	FormatEAN8,
	FormatUPCA,
	FormatUPCE,
	FormatCode128,
	FormatCode39,
	FormatCode93,
	FormatITF,
	FormatCodabar,
}

var readerFactories = map[string]func() gozxing.Reader{
	FormatQRCode:  func() gozxing.Reader { return qrcode.NewQRCodeReader() },
	FormatEAN13:   func() gozxing.Reader { return oned.NewEAN13Reader() },
	FormatEAN8:    func() gozxing.Reader { return oned.NewEAN8Reader() },
	FormatUPCA:    func() gozxing.Reader { return oned.NewUPCAReader() },
	FormatUPCE:    func() gozxing.Reader { return oned.NewUPCEReader() },
	FormatCode128: func() gozxing.Reader { return oned.NewCode128Reader() },
	FormatCode39:  func() gozxing.Reader { return oned.NewCode39Reader() },
	FormatCode93:  func() gozxing.Reader { return oned.NewCode93Reader() },
	FormatITF:     func() gozxing.Reader { return oned.NewITFReader() },
	FormatCodabar: func() gozxing.Reader { return oned.NewCodaBarReader() },
}

// ErrContinuousUnsupported is returned by AttachContinuous for streams that
// cannot push frames.
var ErrContinuousUnsupported = errors.New("stream does not support frame subscriptions")

// ParseFormats normalizes and validates a symbology allow-list. An empty list
// selects AllFormats. Duplicates are dropped.
func ParseFormats(names []string) ([]string, error) {
	if len(names) == 0 {
		return append([]string(nil), AllFormats...), nil
	}

	seen := make(map[string]bool, len(names))
	var formats []string
	for _, n := range names {
		f := strings.ToLower(strings.TrimSpace(n))
		f = strings.ReplaceAll(f, "-", "_")
		if f == "" {
			continue
		}
		if _, ok := readerFactories[f]; !ok {
			return nil, fmt.Errorf("unsupported barcode format: %q", n)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, errors.New("no barcode formats selected")
	}
	return formats, nil
}

// Subscriber is implemented by streams that push decoded frames as they
// arrive. The returned cancel func ends the subscription and closes the
// channel.
type Subscriber interface {
	Subscribe() (<-chan image.Image, func())
}

// Options configure a Decoder.
type Options struct {
	// TryHarder trades speed for accuracy on difficult frames.
	TryHarder bool

	// MaxDimension downscales frames before decoding. Zero uses
	// imaging.DefaultMaxDimension.
	MaxDimension int
}

type namedReader struct {
	format string
	reader gozxing.Reader
}

// Decoder implements capture.Decoder for a fixed set of symbologies.
type Decoder struct {
	maxDim int
	hints  map[gozxing.DecodeHintType]interface{}
	log    *slog.Logger

	// gozxing readers keep per-call state.
	mu      sync.Mutex
	readers []namedReader
}

// New returns a decoder for the given symbologies. An empty list enables all
// of them.
func New(formats []string, opts Options, logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	formats, err := ParseFormats(formats)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		maxDim: opts.MaxDimension,
		hints:  map[gozxing.DecodeHintType]interface{}{},
		log:    logger,
	}
	if d.maxDim <= 0 {
		d.maxDim = imaging.DefaultMaxDimension
	}
	if opts.TryHarder {
		d.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	for _, f := range formats {
		d.readers = append(d.readers, namedReader{format: f, reader: readerFactories[f]()})
	}
	return d, nil
}

// Formats returns the configured symbologies.
func (d *Decoder) Formats() []string {
	formats := make([]string, len(d.readers))
	for i, r := range d.readers {
		formats[i] = r.format
	}
	return formats
}

// DecodeImage tries every configured reader on img. It returns
// capture.ErrNotFound when none of them reads a code.
func (d *Decoder) DecodeImage(img image.Image) (capture.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return capture.Detection{}, capture.ErrNoFrame
	}
	img = imaging.Downscale(img, d.maxDim)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return capture.Detection{}, fmt.Errorf("binarizing frame: %w", capture.ErrNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.readers {
		if text, ok := d.read(r.reader, bmp); ok {
			return capture.Detection{Code: text, Format: r.format}, nil
		}
	}
	return capture.Detection{}, capture.ErrNotFound
}

// read runs one reader. gozxing can panic on degenerate bitmaps; those count
// as a miss.
func (d *Decoder) read(r gozxing.Reader, bmp *gozxing.BinaryBitmap) (text string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Debug("barcode reader panicked", "panic", p)
			text, ok = "", false
		}
		r.Reset()
	}()

	result, err := r.Decode(bmp, d.hints)
	if err != nil || result == nil || result.GetText() == "" {
		return "", false
	}
	return result.GetText(), true
}

// DecodeSingleFrame decodes the latest frame of src once.
func (d *Decoder) DecodeSingleFrame(ctx context.Context, src capture.FrameSource) (capture.Detection, error) {
	if err := ctx.Err(); err != nil {
		return capture.Detection{}, err
	}
	img, err := src.LatestFrame()
	if err != nil {
		return capture.Detection{}, err
	}
	return d.DecodeImage(img)
}

type attachment struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// AttachContinuous decodes every frame s pushes until the handle is detached
// or ctx ends. Streams that are not a Subscriber are rejected with
// ErrContinuousUnsupported.
func (d *Decoder) AttachContinuous(ctx context.Context, s capture.Stream, onResult func(capture.Detection, error)) (capture.Handle, error) {
	sub, ok := s.(Subscriber)
	if !ok {
		return nil, ErrContinuousUnsupported
	}

	frames, unsubscribe := sub.Subscribe()
	ctx, cancel := context.WithCancel(ctx)
	a := &attachment{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(a.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case img, ok := <-frames:
				if !ok {
					return
				}
				det, err := d.DecodeImage(img)
				if ctx.Err() != nil {
					return
				}
				onResult(det, err)
			}
		}
	}()

	d.log.Debug("continuous decoding attached", "stream", s.ID())
	return a, nil
}

// Detach stops a continuous attachment and waits for its goroutine.
func (d *Decoder) Detach(h capture.Handle) {
	a, ok := h.(*attachment)
	if !ok || a == nil {
		return
	}
	a.cancel()
	<-a.done
}
