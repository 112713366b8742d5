package resolve

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/lookup"
	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLookup struct {
	mu       sync.Mutex
	items    map[string]*model.ResolvedItem
	catalog  []model.SearchableItem
	failKey  string
	failList bool
	keys     []string
	lists    atomic.Int32
	listWait time.Duration
}

func (f *fakeLookup) LookupByCode(ctx context.Context, code string) (*model.ResolvedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, code)
	if code == f.failKey {
		return nil, errors.New("connection refused")
	}
	item, ok := f.items[code]
	if !ok {
		return nil, lookup.ErrNotFound
	}
	return item, nil
}

func (f *fakeLookup) ListAllForSearch(ctx context.Context) ([]model.SearchableItem, error) {
	f.lists.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.listWait):
	}
	if f.failList {
		return nil, errors.New("backend unavailable")
	}
	return f.catalog, nil
}

func (f *fakeLookup) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) == 0 {
		return ""
	}
	return f.keys[len(f.keys)-1]
}

type stream struct{}

func (stream) ID() string                         { return "s" }
func (stream) LatestFrame() (image.Image, error) { return image.NewGray(image.Rect(0, 0, 1, 1)), nil }

type device struct {
	mu     sync.Mutex
	active int
}

func (d *device) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active++
	return stream{}, nil
}

func (d *device) Release(capture.Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
}

func (d *device) Capabilities(capture.Stream) capture.Capabilities { return capture.Capabilities{} }
func (d *device) ApplyTorch(capture.Stream, bool) error           { return errors.New("no torch") }

func (d *device) activeStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// decoder finds code on the third polled frame; an empty code never matches.
type decoder struct {
	code  string
	calls atomic.Int32
}

func (d *decoder) AttachContinuous(context.Context, capture.Stream, func(capture.Detection, error)) (capture.Handle, error) {
	return nil, errors.New("unsupported")
}

func (d *decoder) DecodeSingleFrame(ctx context.Context, src capture.FrameSource) (capture.Detection, error) {
	if d.calls.Add(1) >= 3 && d.code != "" {
		return capture.Detection{Code: d.code}, nil
	}
	return capture.Detection{}, capture.ErrNotFound
}

func (d *decoder) Detach(capture.Handle) {}

type fixture struct {
	orch    *Orchestrator
	lookup  *fakeLookup
	device  *device
	handoff []*model.ResolvedItem
}

func newFixture(t *testing.T, code string) *fixture {
	t.Helper()
	f := &fixture{
		lookup: &fakeLookup{
			items: map[string]*model.ResolvedItem{
				"4006381333931": {ID: 1, Name: "White belt", CurrentInventory: 2},
				"B-2":           {ID: 2, Name: "Black belt"},
				"3":             {ID: 3, Name: "Buckle"},
			},
			catalog: []model.SearchableItem{
				{ID: 1, Name: "White belt", Barcode: "4006381333931", Code: "W-1"},
				{ID: 2, Name: "Black belt", Code: "B-2"},
				{ID: 3, Name: "Buckle"},
			},
		},
		device: &device{},
	}
	ctrl := capture.NewController(f.device, &decoder{code: code}, capture.Options{PollInterval: 2 * time.Millisecond}, testLogger())
	f.orch = New(ctrl, f.lookup, Options{
		Debounce: -1,
		Logger:   testLogger(),
		Handoff:  func(item *model.ResolvedItem) { f.handoff = append(f.handoff, item) },
	})
	t.Cleanup(f.orch.Dismiss)
	return f
}

func TestLookupKeyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		item model.SearchableItem
		want string
	}{
		{"barcode wins", model.SearchableItem{ID: 9, Barcode: " 123 ", Code: "C"}, "123"},
		{"code next", model.SearchableItem{ID: 9, Code: "C-9"}, "C-9"},
		{"blank barcode skipped", model.SearchableItem{ID: 9, Barcode: "  ", Code: "C-9"}, "C-9"},
		{"id last", model.SearchableItem{ID: 9}, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LookupKey(tt.item); got != tt.want {
				t.Errorf("LookupKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveByCode(t *testing.T) {
	f := newFixture(t, "")
	item, err := f.orch.Resolve(context.Background(), Request{Code: " B-2 "})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if item.ID != 2 {
		t.Errorf("resolved item %d, want 2", item.ID)
	}
	if len(f.handoff) != 1 || f.handoff[0] != item {
		t.Errorf("handoff = %v", f.handoff)
	}
}

func TestResolveInvalidRequest(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	for _, req := range []Request{{}, {Code: "  "}, {Code: "1", Item: &model.SearchableItem{ID: 1}}} {
		if _, err := f.orch.Resolve(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Resolve(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestResolveFailures(t *testing.T) {
	f := newFixture(t, "")
	f.lookup.failKey = "down"
	ctx := context.Background()

	_, err := f.orch.Resolve(ctx, Request{Code: "nope"})
	if KindOf(err) != KindNotFound || !errors.Is(err, lookup.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}

	_, err = f.orch.Resolve(ctx, Request{Code: "down"})
	if KindOf(err) != KindTransport {
		t.Errorf("err = %v, want transport failure", err)
	}
	if len(f.handoff) != 0 {
		t.Error("failed lookups reached the handoff")
	}
}

func TestSearchThenSelect(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	results, err := f.orch.Search(ctx, "belt")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if _, err := f.orch.Search(ctx, "buckle"); err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if n := f.lookup.lists.Load(); n != 1 {
		t.Errorf("catalog fetched %d times, want 1", n)
	}
	if got := f.orch.Results(); len(got) != 1 || got[0].Item.ID != 3 {
		t.Errorf("Results = %+v", got)
	}

	item, err := f.orch.Select(ctx, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if item.ID != 1 || f.lookup.lastKey() != "4006381333931" {
		t.Errorf("resolved %d via %q", item.ID, f.lookup.lastKey())
	}

	// Success drops the catalog snapshot.
	if f.orch.Results() != nil {
		t.Error("results kept after success")
	}
	if _, err := f.orch.Select(ctx, 1); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("Select after reset err = %v, want ErrUnknownItem", err)
	}
	f.orch.Search(ctx, "belt")
	if n := f.lookup.lists.Load(); n != 2 {
		t.Errorf("catalog fetched %d times, want 2", n)
	}
}

func TestSelectByIDFallback(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.orch.Search(ctx, "buckle")
	item, err := f.orch.Select(ctx, 3)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if item.ID != 3 || f.lookup.lastKey() != "3" {
		t.Errorf("resolved %d via %q", item.ID, f.lookup.lastKey())
	}
}

func TestSearchCatalogFailure(t *testing.T) {
	f := newFixture(t, "")
	f.lookup.failList = true

	_, err := f.orch.Search(context.Background(), "belt")
	if KindOf(err) != KindTransport {
		t.Fatalf("err = %v, want transport failure", err)
	}

	f.lookup.failList = false
	if _, err := f.orch.Search(context.Background(), "belt"); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestSearchConcurrentCatalogFetch(t *testing.T) {
	f := newFixture(t, "")
	f.lookup.listWait = 20 * time.Millisecond

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orch.Search(context.Background(), "belt")
		}()
	}
	wg.Wait()

	if n := f.lookup.lists.Load(); n != 1 {
		t.Errorf("catalog fetched %d times, want 1", n)
	}
}

func waitForLists(t *testing.T, l *fakeLookup, n int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for l.lists.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("catalog fetch count stuck at %d, want %d", l.lists.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSearchCancelledCallerLeavesSharedFetch(t *testing.T) {
	f := newFixture(t, "")
	f.lookup.listWait = 100 * time.Millisecond

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := f.orch.Search(short, "belt")
		first <- err
	}()
	waitForLists(t, f.lookup, 1)

	results, err := f.orch.Search(context.Background(), "belt")
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
	if err := <-first; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("first search err = %v, want DeadlineExceeded", err)
	}
	if n := f.lookup.lists.Load(); n != 1 {
		t.Errorf("catalog fetched %d times, want 1", n)
	}
}

func TestSearchFinishingAfterDismiss(t *testing.T) {
	f := newFixture(t, "")
	f.lookup.listWait = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Search(context.Background(), "belt")
		done <- err
	}()
	waitForLists(t, f.lookup, 1)
	f.orch.Dismiss()

	if err := <-done; !errors.Is(err, search.ErrSuperseded) {
		t.Errorf("search err = %v, want ErrSuperseded", err)
	}
	if r := f.orch.Results(); r != nil {
		t.Errorf("results = %v after dismiss, want none", r)
	}
}

func TestSearchDebounce(t *testing.T) {
	f := newFixture(t, "")
	orch := New(f.orch.Controller(), f.lookup, Options{Debounce: 30 * time.Millisecond, Logger: testLogger()})

	first := make(chan error, 1)
	go func() {
		_, err := orch.Search(context.Background(), "bel")
		first <- err
	}()
	time.Sleep(5 * time.Millisecond)

	results, err := orch.Search(context.Background(), "belt")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
	if err := <-first; !errors.Is(err, search.ErrSuperseded) {
		t.Errorf("first search err = %v, want ErrSuperseded", err)
	}
}

func TestScan(t *testing.T) {
	f := newFixture(t, "4006381333931")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	item, err := f.orch.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if item.ID != 1 {
		t.Errorf("scanned item %d, want 1", item.ID)
	}
	if n := f.device.activeStreams(); n != 0 {
		t.Errorf("active streams = %d after resolve", n)
	}
	if got := f.orch.Controller().State(); got != capture.StateIdle {
		t.Errorf("controller state = %s, want idle", got)
	}
}

func TestScanUnknownCodeKeepsDialog(t *testing.T) {
	f := newFixture(t, "0000")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f.orch.Search(ctx, "belt")
	_, err := f.orch.Scan(ctx)
	if KindOf(err) != KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(f.orch.Results()) != 2 {
		t.Error("search results dropped by a failed lookup")
	}
}

func TestScanJoinsRunningSession(t *testing.T) {
	f := newFixture(t, "B-2")
	s := f.orch.StartCapture()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	item, err := f.orch.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if item.ID != 2 {
		t.Errorf("scanned item %d, want 2", item.ID)
	}
	if f.orch.Controller().Current() != s {
		t.Error("Scan started a second session")
	}
}

func TestDismiss(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	s := f.orch.StartCapture()
	f.orch.Search(ctx, "belt")
	f.orch.Dismiss()
	<-s.Done()

	if f.orch.Results() != nil {
		t.Error("results kept after dismiss")
	}
	if n := f.device.activeStreams(); n != 0 {
		t.Errorf("active streams = %d after dismiss", n)
	}
}
