package engine

import (
	"fmt"
	"strings"
	"time"

	"fundpulse/internal/core"
)

// Basis names a convenience window over the available months, used when a
// caller asks for KPIs without an explicit from/to pair.
type Basis string

const (
	BasisInception Basis = "inception"
	BasisYTD       Basis = "ytd"
	BasisQuarter   Basis = "quarter"
	BasisLatest    Basis = "latest"
)

// ParseBasis maps a query value onto a Basis, defaulting to inception.
func ParseBasis(s string) (Basis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inception":
		return BasisInception, nil
	case "ytd":
		return BasisYTD, nil
	case "quarter":
		return BasisQuarter, nil
	case "latest", "month":
		return BasisLatest, nil
	default:
		return BasisInception, fmt.Errorf("unknown basis %q", s)
	}
}

// ResolveBasis turns a basis plus an optional period end into a concrete
// window over the month set. The end defaults to the latest month and is
// clamped to it; the start snaps to the earliest available month at or
// after the basis boundary so the pair always validates against the set.
func ResolveBasis(months []core.MonthKey, basis Basis, periodEnd core.MonthKey) (from, to core.MonthKey, err error) {
	if len(months) == 0 {
		return core.MonthKey{}, core.MonthKey{}, core.ErrNoData
	}
	first, last := months[0], months[len(months)-1]

	to = last
	if !periodEnd.IsZero() {
		for i := len(months) - 1; i >= 0; i-- {
			if !months[i].After(periodEnd) {
				to = months[i]
				break
			}
		}
	}

	var boundary core.MonthKey
	switch basis {
	case BasisLatest:
		return to, to, nil
	case BasisYTD:
		boundary = core.NewMonthKey(to.Year(), time.January)
	case BasisQuarter:
		q := (int(to.Month()) - 1) / 3
		boundary = core.NewMonthKey(to.Year(), time.Month(q*3+1))
	default: // inception
		return first, to, nil
	}

	from = to
	for _, mk := range months {
		if !mk.Before(boundary) {
			from = mk
			break
		}
	}
	if from.After(to) {
		from = to
	}
	return from, to, nil
}
