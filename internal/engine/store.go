package engine

import (
	"sort"

	"fundpulse/internal/core"
)

// SnapshotStore holds the ordered monthly snapshots for one subject/source
// and exposes month-keyed lookup. It is immutable once built; refreshes
// replace the whole store rather than mutating it.
type SnapshotStore struct {
	months  []core.MonthKey
	byMonth map[core.MonthKey]core.PeriodSnapshot
}

// NewSnapshotStore normalizes a feed result: snapshots are keyed by month,
// sorted ascending, and de-duplicated keeping the latest record per month.
// Rows without a usable date are dropped.
func NewSnapshotStore(snapshots []core.PeriodSnapshot) *SnapshotStore {
	index := make(map[core.MonthKey]core.PeriodSnapshot, len(snapshots))
	for _, snap := range snapshots {
		if snap.Month.IsZero() {
			snap.Month = core.MonthKeyOf(snap.AsOfDate)
		}
		if snap.Month.IsZero() {
			continue
		}
		if prev, ok := index[snap.Month]; ok {
			// Latest record wins for a duplicated month.
			if !snap.AsOfDate.After(prev.AsOfDate) {
				continue
			}
		}
		index[snap.Month] = snap
	}

	months := make([]core.MonthKey, 0, len(index))
	for mk := range index {
		months = append(months, mk)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	return &SnapshotStore{months: months, byMonth: index}
}

// MonthKeys returns the distinct months in ascending order.
func (s *SnapshotStore) MonthKeys() []core.MonthKey {
	out := make([]core.MonthKey, len(s.months))
	copy(out, s.months)
	return out
}

// ByMonth returns the snapshot for a month, if present.
func (s *SnapshotStore) ByMonth(mk core.MonthKey) (core.PeriodSnapshot, bool) {
	snap, ok := s.byMonth[mk]
	return snap, ok
}

// Contains reports whether the month is in the store's month set.
func (s *SnapshotStore) Contains(mk core.MonthKey) bool {
	_, ok := s.byMonth[mk]
	return ok
}

// IsEmpty reports whether the store holds no months.
func (s *SnapshotStore) IsEmpty() bool { return len(s.months) == 0 }

// Len returns the number of distinct months.
func (s *SnapshotStore) Len() int { return len(s.months) }

// FirstMonth returns the earliest month, or the zero key when empty.
func (s *SnapshotStore) FirstMonth() core.MonthKey {
	if len(s.months) == 0 {
		return core.MonthKey{}
	}
	return s.months[0]
}

// LastMonth returns the latest month, or the zero key when empty.
func (s *SnapshotStore) LastMonth() core.MonthKey {
	if len(s.months) == 0 {
		return core.MonthKey{}
	}
	return s.months[len(s.months)-1]
}

// Snapshots returns the records in ascending month order.
func (s *SnapshotStore) Snapshots() []core.PeriodSnapshot {
	out := make([]core.PeriodSnapshot, 0, len(s.months))
	for _, mk := range s.months {
		out = append(out, s.byMonth[mk])
	}
	return out
}
