package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDebouncerSingleCallPasses(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestDebouncerLatestWins(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.Wait(context.Background())
		}()
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	if !errors.Is(errs[0], ErrSuperseded) || !errors.Is(errs[1], ErrSuperseded) {
		t.Errorf("expected earlier calls to be superseded, got %v, %v", errs[0], errs[1])
	}
	if errs[2] != nil {
		t.Errorf("expected latest call to pass, got %v", errs[2])
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- d.Wait(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	d.Cancel()

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded after Cancel, got %v", err)
	}
}

func TestDebouncerContext(t *testing.T) {
	d := NewDebouncer(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
