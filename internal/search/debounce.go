package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned by Debouncer.Wait when a newer call arrived
// before the delay elapsed.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Debouncer lets only the most recent of a burst of calls through.
type Debouncer struct {
	delay time.Duration

	mu  sync.Mutex
	gen uint64
}

// NewDebouncer returns a Debouncer that waits delay before letting a call through.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Wait blocks for the debounce delay. It returns nil if no other call to Wait
// started in the meantime, ErrSuperseded if one did, or the context error.
func (d *Debouncer) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.gen++
	mine := d.gen
	d.mu.Unlock()

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != mine {
		return ErrSuperseded
	}
	return nil
}

// Cancel supersedes any call currently waiting.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.gen++
	d.mu.Unlock()
}
