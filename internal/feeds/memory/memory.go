// Package memory provides an in-memory feed backend, used for local
// development and as the fixture store in tests.
package memory

import (
	"context"
	"sync"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

type subjectKey struct {
	investor string
	sheet    string
}

type monthKeyed struct {
	subjectKey
	month core.MonthKey
}

// Store holds period and allocation fixtures keyed by subject. The zero
// value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	periods     map[subjectKey][]core.PeriodSnapshot
	allocations map[monthKeyed]core.AllocationBreakdown

	periodErr error
	allocErr  error

	// BeforeListPeriods, when set, runs at the start of every ListPeriods
	// call. Tests use it to sequence overlapping reloads.
	BeforeListPeriods func(ctx context.Context)
}

// Ensure interface conformance
var (
	_ feeds.PeriodFeed     = (*Store)(nil)
	_ feeds.AllocationFeed = (*Store)(nil)
	_ feeds.Feed           = (*Store)(nil)
)

func New() *Store {
	return &Store{
		periods:     make(map[subjectKey][]core.PeriodSnapshot),
		allocations: make(map[monthKeyed]core.AllocationBreakdown),
	}
}

func keyOf(subject core.Subject) subjectKey {
	return subjectKey{investor: subject.Investor, sheet: subject.Sheet}
}

// SetPeriods replaces the period rows for a subject.
func (s *Store) SetPeriods(subject core.Subject, snapshots []core.PeriodSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[keyOf(subject)] = append([]core.PeriodSnapshot(nil), snapshots...)
}

// SetBreakdown replaces the allocation fixture for a subject and month.
func (s *Store) SetBreakdown(subject core.Subject, month core.MonthKey, breakdown core.AllocationBreakdown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[monthKeyed{keyOf(subject), month}] = breakdown
}

// FailPeriods makes subsequent ListPeriods calls return err (nil to clear).
func (s *Store) FailPeriods(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodErr = err
}

// FailAllocations makes subsequent Breakdown calls return err (nil to clear).
func (s *Store) FailAllocations(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocErr = err
}

// ListPeriods implements feeds.PeriodFeed.
func (s *Store) ListPeriods(ctx context.Context, subject core.Subject) ([]core.PeriodSnapshot, error) {
	if hook := s.hook(); hook != nil {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.periodErr != nil {
		return nil, s.periodErr
	}
	rows := s.periods[keyOf(subject)]
	out := make([]core.PeriodSnapshot, len(rows))
	copy(out, rows)
	return out, nil
}

// Breakdown implements feeds.AllocationFeed.
func (s *Store) Breakdown(ctx context.Context, subject core.Subject, month core.MonthKey) (core.AllocationBreakdown, error) {
	if err := ctx.Err(); err != nil {
		return core.AllocationBreakdown{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocErr != nil {
		return core.AllocationBreakdown{}, s.allocErr
	}
	b, ok := s.allocations[monthKeyed{keyOf(subject), month}]
	if !ok {
		return core.AllocationBreakdown{Month: month}, nil
	}
	out := b
	out.Items = append([]core.AllocationItem(nil), b.Items...)
	return out, nil
}

func (s *Store) hook() func(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BeforeListPeriods
}
