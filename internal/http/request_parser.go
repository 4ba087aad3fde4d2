package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fundpulse/internal/core"
	"fundpulse/internal/engine"
)

// queryValue trims a single query parameter.
func queryValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// parseSubject reads the investor/sheet pair from the query, falling back
// to the server defaults. An empty investor means the fund-wide view.
func parseSubject(r *http.Request, defaults core.Subject) core.Subject {
	subject := core.Subject{
		Investor: queryValue(r, "investor"),
		Sheet:    queryValue(r, "sheet"),
	}
	if subject.Sheet == "" {
		subject.Sheet = defaults.Sheet
	}
	if subject.Investor == "" {
		subject.Investor = defaults.Investor
	}
	return subject
}

// rangeParams carries the window selection from a request. Exactly one of
// three modes applies: an explicit from/to pair, a named basis, or neither
// (keep the currently applied window).
type rangeParams struct {
	from       core.MonthKey
	to         core.MonthKey
	basis      engine.Basis
	basisGiven bool
	periodEnd  core.MonthKey
}

func (p rangeParams) explicit() bool { return !p.from.IsZero() && !p.to.IsZero() }

func parseRangeParams(r *http.Request) (rangeParams, error) {
	var p rangeParams

	fromRaw, toRaw := queryValue(r, "from"), queryValue(r, "to")
	if (fromRaw == "") != (toRaw == "") {
		return p, fmt.Errorf("from and to must be provided together")
	}
	if fromRaw != "" {
		from, err := core.ParseMonthKey(fromRaw)
		if err != nil {
			return p, fmt.Errorf("invalid from: %s", fromRaw)
		}
		to, err := core.ParseMonthKey(toRaw)
		if err != nil {
			return p, fmt.Errorf("invalid to: %s", toRaw)
		}
		p.from, p.to = from, to
	}

	if raw := queryValue(r, "basis"); raw != "" {
		basis, err := engine.ParseBasis(raw)
		if err != nil {
			return p, fmt.Errorf("invalid basis: %s", raw)
		}
		p.basis = basis
		p.basisGiven = true
	}

	if raw := queryValue(r, "period_end"); raw != "" {
		mk, err := core.ParseMonthKey(raw)
		if err != nil {
			return p, fmt.Errorf("invalid period_end: %s", raw)
		}
		p.periodEnd = mk
	}

	return p, nil
}

// parseMinPct reads the min_pct grouping threshold, keeping the server
// default when absent.
func parseMinPct(r *http.Request, def float64) (float64, error) {
	raw := queryValue(r, "min_pct")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v >= 100 {
		return 0, fmt.Errorf("invalid min_pct: %s", raw)
	}
	return v, nil
}
