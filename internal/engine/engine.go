package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

// Config wires an Engine to its subject and feeds. Everything the engine
// needs is passed in here; there is no ambient or shared state, so one
// engine can be built per subject/screen (or per batch job) independently.
type Config struct {
	Subject     core.Subject
	Periods     feeds.PeriodFeed
	Allocations feeds.AllocationFeed

	// FetchTimeout bounds each feed call. Defaults to 10s.
	FetchTimeout time.Duration

	// OnSnapshotsChanged fires after a completed reload or range change
	// commits new KPIs. OnAllocationChanged fires once both endpoint
	// breakdowns for the applied range are committed. Both are optional
	// and are invoked outside the engine's lock.
	OnSnapshotsChanged  func(core.KpiResult)
	OnAllocationChanged func(start, end core.AllocationBreakdown)
}

// Engine is the performance and allocation engine for one subject. It owns
// a snapshot store, a range selector and an allocation resolver, and keeps
// them consistent across live refreshes.
//
// Concurrency: refreshes and range changes may run concurrently; a
// monotonically increasing sequence token decides which in-flight operation
// is current, and results from superseded operations are discarded at the
// commit boundary. In-flight fetches are not cancelled, which keeps the
// model portable.
type Engine struct {
	cfg      Config
	resolver *AllocationResolver
	seq      atomic.Uint64

	mu         sync.Mutex
	store      *SnapshotStore
	selector   *RangeSelector
	kpis       core.KpiResult
	kpisValid  bool
	allocStart core.AllocationBreakdown
	allocEnd   core.AllocationBreakdown
}

// New builds an engine. The period feed is required; the allocation feed is
// optional and, when absent, every breakdown takes the fallback path.
func New(cfg Config) (*Engine, error) {
	if cfg.Periods == nil {
		return nil, errors.New("engine: period feed is required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		resolver: NewAllocationResolver(cfg.Allocations, cfg.Subject, cfg.FetchTimeout),
	}, nil
}

// Subject returns the scope this engine was built for.
func (e *Engine) Subject() core.Subject { return e.cfg.Subject }

// Refresh reloads the snapshot feed, re-validates the applied range against
// the new month set, and recomputes KPIs and both endpoint breakdowns.
//
// Returns core.ErrStaleResponse when a newer refresh superseded this one
// (benign), and core.ErrNoData when the feed came back empty.
func (e *Engine) Refresh(ctx context.Context) error {
	token := e.seq.Add(1)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	snapshots, err := e.cfg.Periods.ListPeriods(cctx, e.cfg.Subject)
	cancel()
	if err != nil {
		return fmt.Errorf("load periods: %w", err)
	}

	store := NewSnapshotStore(snapshots)

	e.mu.Lock()
	if token != e.seq.Load() {
		e.mu.Unlock()
		return core.ErrStaleResponse
	}
	e.store = store
	if e.selector == nil {
		e.selector = NewRangeSelector(store.MonthKeys())
	} else if !e.selector.SetMonths(store.MonthKeys()) {
		slog.DebugContext(ctx, "Applied range no longer valid after reload, reset to full span",
			"sheet", e.cfg.Subject.Sheet, "investor", e.cfg.Subject.Investor)
	}
	if store.IsEmpty() {
		e.kpis = core.KpiResult{}
		e.kpisValid = false
		e.allocStart = core.AllocationBreakdown{}
		e.allocEnd = core.AllocationBreakdown{}
		e.mu.Unlock()
		return core.ErrNoData
	}
	e.mu.Unlock()

	return e.recompute(ctx, token)
}

// ApplyRange commits a new window and recomputes. The applied state is left
// untouched when validation fails.
func (e *Engine) ApplyRange(ctx context.Context, from, to core.MonthKey) error {
	token := e.seq.Add(1)

	e.mu.Lock()
	if e.selector == nil || e.store == nil {
		e.mu.Unlock()
		return core.ErrNoData
	}
	e.selector.SetPending(from, to)
	if err := e.selector.Apply(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	return e.recompute(ctx, token)
}

// ResetRange restores the full available span and recomputes.
func (e *Engine) ResetRange(ctx context.Context) error {
	token := e.seq.Add(1)

	e.mu.Lock()
	if e.selector == nil || e.store == nil || e.store.IsEmpty() {
		e.mu.Unlock()
		return core.ErrNoData
	}
	e.selector.Reset()
	e.mu.Unlock()

	return e.recompute(ctx, token)
}

// recompute derives KPIs for the applied range, commits them if the token
// is still current, then resolves both endpoint breakdowns concurrently and
// commits those under the same staleness check.
func (e *Engine) recompute(ctx context.Context, token uint64) error {
	e.mu.Lock()
	store := e.store
	from, to := e.selector.Applied()
	e.mu.Unlock()

	kpis, err := ComputeKPIs(store, from, to)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if token != e.seq.Load() {
		e.mu.Unlock()
		return core.ErrStaleResponse
	}
	e.kpis = kpis
	e.kpisValid = true
	e.mu.Unlock()

	if cb := e.cfg.OnSnapshotsChanged; cb != nil {
		cb(kpis)
	}

	// Start-side total: the value entering the window is the KPI initial
	// value only for the degenerate single-month case; otherwise it is the
	// ending balance at fromMonth, which initialValue already equals.
	var start, end core.AllocationBreakdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start = e.resolver.Resolve(gctx, from, kpis.InitialValue)
		return nil
	})
	g.Go(func() error {
		end = e.resolver.Resolve(gctx, to, kpis.CurrentValue)
		return nil
	})
	_ = g.Wait() // resolvers degrade internally and never return errors

	e.mu.Lock()
	if token != e.seq.Load() {
		e.mu.Unlock()
		return core.ErrStaleResponse
	}
	e.allocStart = start
	e.allocEnd = end
	e.mu.Unlock()

	if cb := e.cfg.OnAllocationChanged; cb != nil {
		cb(start, end)
	}
	return nil
}

// KPIs returns the last committed metrics. ok is false before the first
// successful refresh or when the feed is empty.
func (e *Engine) KPIs() (result core.KpiResult, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kpis, e.kpisValid
}

// Allocations returns the committed breakdowns for the applied range's
// start and end months.
func (e *Engine) Allocations() (start, end core.AllocationBreakdown) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocStart, e.allocEnd
}

// AppliedRange returns the committed window, zero keys when no data.
func (e *Engine) AppliedRange() (from, to core.MonthKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selector == nil {
		return core.MonthKey{}, core.MonthKey{}
	}
	return e.selector.Applied()
}

// MonthKeys returns the available months from the last completed reload.
func (e *Engine) MonthKeys() []core.MonthKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	return e.store.MonthKeys()
}

// Store returns the current snapshot store, or nil before the first reload.
func (e *Engine) Store() *SnapshotStore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// HasData reports whether the last reload produced at least one month.
func (e *Engine) HasData() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store != nil && !e.store.IsEmpty()
}
