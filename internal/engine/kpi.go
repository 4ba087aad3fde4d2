package engine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
)

const monthsPerYear = 12.0

// ComputeKPIs derives the point-to-point metrics for an applied month range.
// Both endpoints must be members of the store's month set.
//
// The annualized figure is a CAGR on the two endpoint values, not a
// cash-flow-weighted IRR: no interim contribution/distribution timing is
// available at this boundary, so callers must not conflate the two.
func ComputeKPIs(store *SnapshotStore, from, to core.MonthKey) (core.KpiResult, error) {
	if store == nil || store.IsEmpty() {
		return core.KpiResult{}, core.ErrNoData
	}
	current, ok := store.ByMonth(to)
	if !ok {
		return core.KpiResult{}, fmt.Errorf("%w: %s is not an available month", core.ErrInvalidRange, to)
	}
	first, ok := store.ByMonth(from)
	if !ok {
		return core.KpiResult{}, fmt.Errorf("%w: %s is not an available month", core.ErrInvalidRange, from)
	}
	if from.After(to) {
		return core.KpiResult{}, fmt.Errorf("%w: %s is after %s", core.ErrInvalidRange, from, to)
	}

	currentValue := valueOrZero(current.EndingBalance)
	initialValue := initialValueFor(store, first, from, to, currentValue)

	result := core.KpiResult{
		InitialValue: initialValue,
		CurrentValue: currentValue,
		FromMonth:    from,
		AsOfMonth:    to,
		Months:       maxInt(1, from.MonthsBetween(to)),
	}

	initF, _ := initialValue.Float64()
	currF, _ := currentValue.Float64()

	if initF != 0 {
		moic := currF / initF
		roi := (currF - initF) / initF * 100
		result.Moic = &moic
		result.RoiPct = &roi
	}
	if initF > 0 && currF > 0 {
		years := float64(result.Months) / monthsPerYear
		irr := (math.Pow(currF/initF, 1/years) - 1) * 100
		result.IrrPct = &irr
	}
	return result, nil
}

// initialValueFor picks the range's starting value.
//
// Multi-month ranges use the ending balance at fromMonth. A single-month
// range prefers that month's beginning balance; when absent it falls back
// to the preceding month's ending balance, located by month arithmetic so
// gaps in the feed do not shift the lookup. With neither available, the
// current value itself is used (ROI 0, MOIC 1).
func initialValueFor(store *SnapshotStore, first core.PeriodSnapshot, from, to core.MonthKey, currentValue decimal.Decimal) decimal.Decimal {
	if from != to {
		return valueOrZero(first.EndingBalance)
	}
	if first.BeginningBalance.Valid {
		return first.BeginningBalance.Decimal
	}
	if prev, ok := store.ByMonth(from.Prev()); ok && prev.EndingBalance.Valid {
		return prev.EndingBalance.Decimal
	}
	return currentValue
}

func valueOrZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
