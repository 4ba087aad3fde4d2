package engine

import (
	"fmt"

	"fundpulse/internal/core"
)

// RangeSelector keeps a pending (user-editing) and an applied (committed)
// month pair. Pending mutates freely; the applied pair only changes through
// a successful Apply, a Reset, or a month-set reload that invalidated it.
type RangeSelector struct {
	months map[core.MonthKey]int
	order  []core.MonthKey

	pendingFrom core.MonthKey
	pendingTo   core.MonthKey
	appliedFrom core.MonthKey
	appliedTo   core.MonthKey
}

// NewRangeSelector builds a selector over the given ascending month set and
// initializes both pairs to the full span.
func NewRangeSelector(months []core.MonthKey) *RangeSelector {
	s := &RangeSelector{}
	s.setMonthSet(months)
	s.Reset()
	return s
}

func (s *RangeSelector) setMonthSet(months []core.MonthKey) {
	s.order = make([]core.MonthKey, len(months))
	copy(s.order, months)
	s.months = make(map[core.MonthKey]int, len(months))
	for i, mk := range months {
		s.months[mk] = i
	}
}

// HasData reports whether any months are available. With no months, range
// interaction is disabled: Apply fails and the applied pair stays empty.
func (s *RangeSelector) HasData() bool { return len(s.order) > 0 }

// SetPending records the user's in-progress edit without validation.
func (s *RangeSelector) SetPending(from, to core.MonthKey) {
	s.pendingFrom, s.pendingTo = from, to
}

// Pending returns the in-progress pair.
func (s *RangeSelector) Pending() (from, to core.MonthKey) {
	return s.pendingFrom, s.pendingTo
}

// Applied returns the committed pair driving computation.
func (s *RangeSelector) Applied() (from, to core.MonthKey) {
	return s.appliedFrom, s.appliedTo
}

// Apply validates the pending pair and commits it. On failure the applied
// state is left untouched and the error says why; the range is never
// silently clamped to the available span.
func (s *RangeSelector) Apply() error {
	if !s.HasData() {
		return core.ErrNoData
	}
	fromIdx, ok := s.months[s.pendingFrom]
	if !ok {
		return fmt.Errorf("%w: %s is not an available month", core.ErrInvalidRange, s.pendingFrom)
	}
	toIdx, ok := s.months[s.pendingTo]
	if !ok {
		return fmt.Errorf("%w: %s is not an available month", core.ErrInvalidRange, s.pendingTo)
	}
	if fromIdx > toIdx {
		return fmt.Errorf("%w: %s is after %s", core.ErrInvalidRange, s.pendingFrom, s.pendingTo)
	}
	s.appliedFrom, s.appliedTo = s.pendingFrom, s.pendingTo
	return nil
}

// Reset sets both pending and applied pairs to the full available span.
func (s *RangeSelector) Reset() {
	if !s.HasData() {
		s.pendingFrom, s.pendingTo = core.MonthKey{}, core.MonthKey{}
		s.appliedFrom, s.appliedTo = core.MonthKey{}, core.MonthKey{}
		return
	}
	first, last := s.order[0], s.order[len(s.order)-1]
	s.pendingFrom, s.pendingTo = first, last
	s.appliedFrom, s.appliedTo = first, last
}

// SetMonths replaces the available month set after a reload. If both applied
// endpoints survive in the new set the window is preserved; otherwise the
// selector resets to the new full span. Returns whether the window survived.
func (s *RangeSelector) SetMonths(months []core.MonthKey) bool {
	prevFrom, prevTo := s.appliedFrom, s.appliedTo
	s.setMonthSet(months)

	if !prevFrom.IsZero() && !prevTo.IsZero() {
		fromIdx, okFrom := s.months[prevFrom]
		toIdx, okTo := s.months[prevTo]
		if okFrom && okTo && fromIdx <= toIdx {
			s.appliedFrom, s.appliedTo = prevFrom, prevTo
			s.pendingFrom, s.pendingTo = prevFrom, prevTo
			return true
		}
	}
	s.Reset()
	return false
}
