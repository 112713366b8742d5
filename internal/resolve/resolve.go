// Package resolve turns a scanned code or a chosen search result into a live
// item record, coordinating the camera, the search engine and the lookup
// backend for one operator.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/lookup"
	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/search"
)

const (
	// DefaultDebounce is the search debounce delay.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultFetchTimeout bounds one catalog fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Lookup is the item backend.
type Lookup interface {
	// LookupByCode returns the item for a barcode, code or ID. It returns an
	// error wrapping lookup.ErrNotFound when nothing matches.
	LookupByCode(ctx context.Context, code string) (*model.ResolvedItem, error)
	ListAllForSearch(ctx context.Context) ([]model.SearchableItem, error)
}

// Request asks for one item, either by a decoded code or by a catalog entry.
type Request struct {
	Code string                `json:"code,omitempty"`
	Item *model.SearchableItem `json:"item,omitempty"`
}

// Options configure an Orchestrator.
type Options struct {
	// Debounce delays searches; zero uses DefaultDebounce, negative disables.
	Debounce time.Duration

	// FetchTimeout bounds a catalog fetch shared by concurrent searches;
	// zero uses DefaultFetchTimeout.
	FetchTimeout time.Duration

	// Handoff receives every successfully resolved item.
	Handoff func(*model.ResolvedItem)

	Logger *slog.Logger
}

// Orchestrator drives one operator's scanning dialog.
type Orchestrator struct {
	ctrl     *capture.Controller
	lookup   Lookup
	debounce *search.Debouncer
	fetchTTL time.Duration
	handoff  func(*model.ResolvedItem)
	log      *slog.Logger
	group    singleflight.Group

	mu      sync.Mutex
	catalog []model.SearchableItem
	results []search.RankedResult
	gen     uint64
	scanned *capture.Session
}

// New returns an orchestrator.
func New(ctrl *capture.Controller, l Lookup, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := opts.Debounce
	switch {
	case delay == 0:
		delay = DefaultDebounce
	case delay < 0:
		delay = 0
	}
	fetchTTL := opts.FetchTimeout
	if fetchTTL <= 0 {
		fetchTTL = DefaultFetchTimeout
	}
	return &Orchestrator{
		ctrl:     ctrl,
		lookup:   l,
		debounce: search.NewDebouncer(delay),
		fetchTTL: fetchTTL,
		handoff:  opts.Handoff,
		log:      logger,
	}
}

// Controller returns the capture controller.
func (o *Orchestrator) Controller() *capture.Controller {
	return o.ctrl
}

// LookupKey returns the key a catalog item is resolved by: its barcode, else
// its code, else its decimal ID.
func LookupKey(item model.SearchableItem) string {
	if b := strings.TrimSpace(item.Barcode); b != "" {
		return b
	}
	if c := strings.TrimSpace(item.Code); c != "" {
		return c
	}
	return strconv.FormatInt(item.ID, 10)
}

// Resolve looks up the item a request names. On success all capture and
// search state is reset and the item goes to the handoff. Lookup failures
// are returned as *LookupError and leave the state alone.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (*model.ResolvedItem, error) {
	code := strings.TrimSpace(req.Code)
	if (code == "") == (req.Item == nil) {
		return nil, ErrInvalidRequest
	}

	key := code
	if req.Item != nil {
		key = LookupKey(*req.Item)
	}

	item, err := o.lookup.LookupByCode(ctx, key)
	switch {
	case errors.Is(err, lookup.ErrNotFound), err == nil && item == nil:
		o.log.Info("no item for code", "code", key)
		return nil, &LookupError{Kind: KindNotFound, Key: key, Err: lookup.ErrNotFound}
	case err != nil:
		o.log.Warn("item lookup failed", "code", key, "error", err)
		return nil, &LookupError{Kind: KindTransport, Key: key, Err: err}
	}

	o.log.Info("item resolved", "code", key, "item", item.ID, "name", item.Name)
	o.ctrl.Stop()
	o.reset()
	if o.handoff != nil {
		o.handoff(item)
	}
	return item, nil
}

// StartCapture starts a capture session that outlives the calling request.
func (o *Orchestrator) StartCapture() *capture.Session {
	return o.ctrl.Start(context.Background())
}

// Scan waits for a barcode and resolves it. It joins the running capture
// session, or one that already detected a code nobody resolved yet, and
// starts a new session otherwise. Cancelling ctx stops waiting without
// stopping the camera.
func (o *Orchestrator) Scan(ctx context.Context) (*model.ResolvedItem, error) {
	s := o.claimSession()

	det, err := s.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return o.Resolve(ctx, Request{Code: det.Code})
}

func (o *Orchestrator) claimSession() *capture.Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.ctrl.Current()
	if s != nil && s != o.scanned {
		select {
		case <-s.Done():
			if s.State() != capture.StateDetected {
				s = nil
			}
		default:
		}
	} else {
		s = nil
	}
	if s == nil {
		s = o.ctrl.Start(context.Background())
	}
	o.scanned = s
	return s
}

// Search ranks the catalog against query. Calls arriving within the
// debounce delay of a newer one, or still ranking when the dialog is
// dismissed, return search.ErrSuperseded. The catalog is fetched once per
// search session and shared by concurrent callers.
func (o *Orchestrator) Search(ctx context.Context, query string) ([]search.RankedResult, error) {
	if err := o.debounce.Wait(ctx); err != nil {
		return nil, err
	}

	catalog, gen, err := o.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	results := search.Rank(query, catalog)
	o.mu.Lock()
	stale := o.gen != gen
	if !stale {
		o.results = results
	}
	o.mu.Unlock()
	if stale {
		return nil, search.ErrSuperseded
	}

	o.log.Debug("search ranked", "query", query, "catalog", len(catalog), "results", len(results))
	return results, nil
}

func (o *Orchestrator) loadCatalog(ctx context.Context) ([]model.SearchableItem, uint64, error) {
	o.mu.Lock()
	catalog, gen := o.catalog, o.gen
	o.mu.Unlock()
	if catalog != nil {
		return catalog, gen, nil
	}

	// The fetch is shared, so it must not die with whichever caller started it.
	ch := o.group.DoChan("catalog", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTTL)
		defer cancel()
		return o.lookup.ListAllForSearch(fctx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, gen, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		o.log.Warn("catalog fetch failed", "error", res.Err)
		return nil, gen, &LookupError{Kind: KindTransport, Key: "catalog", Err: res.Err}
	}

	catalog = res.Val.([]model.SearchableItem)
	if catalog == nil {
		catalog = []model.SearchableItem{}
	}

	o.mu.Lock()
	if o.gen == gen && o.catalog == nil {
		o.catalog = catalog
	}
	o.mu.Unlock()
	return catalog, gen, nil
}

// Results returns the results of the latest search.
func (o *Orchestrator) Results() []search.RankedResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results
}

// Select resolves the catalog entry with the given ID.
func (o *Orchestrator) Select(ctx context.Context, itemID int64) (*model.ResolvedItem, error) {
	o.mu.Lock()
	var found *model.SearchableItem
	for i := range o.catalog {
		if o.catalog[i].ID == itemID {
			item := o.catalog[i]
			found = &item
			break
		}
	}
	o.mu.Unlock()

	if found == nil {
		return nil, ErrUnknownItem
	}
	return o.Resolve(ctx, Request{Item: found})
}

// Dismiss closes the dialog: the camera is released and the catalog and
// results are dropped.
func (o *Orchestrator) Dismiss() {
	o.ctrl.Stop()
	o.debounce.Cancel()
	o.reset()
	o.log.Debug("scanning dialog dismissed")
}

func (o *Orchestrator) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.catalog = nil
	o.results = nil
	o.gen++
}
