package http

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/engine"
)

// handleOverview serves fund-wide KPIs plus the two endpoint allocation
// breakdowns for the applied range.
//
//	GET /api/metrics/overview?sheet=&from=&to=&basis=&period_end=
//
// An explicit from/to pair applies that window; otherwise a basis
// (inception, ytd, quarter, latest) resolves one. Without either the
// subject's currently applied window is served unchanged.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	subject := parseSubject(r, s.defaults)
	subject.Investor = "" // fund-wide view
	s.serveOverview(w, r, subject)
}

// handleInvestorOverview is the per-investor variant of the overview. The
// investor parameter is required; the response carries the investor's
// join date and covered time span on top of the shared overview shape.
func (s *Server) handleInvestorOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	subject := parseSubject(r, s.defaults)
	if subject.IsFundWide() {
		writeError(w, http.StatusBadRequest, "investor parameter is required")
		return
	}
	s.serveOverview(w, r, subject)
}

func (s *Server) serveOverview(w http.ResponseWriter, r *http.Request, subject core.Subject) {
	ctx := r.Context()

	eng, err := s.engineFor(subject)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.ensureLoaded(ctx, eng); err != nil {
		writeEngineError(w, r, err)
		return
	}

	rng, err := parseRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case rng.explicit():
		err = eng.ApplyRange(ctx, rng.from, rng.to)
	case rng.basisGiven:
		var from, to core.MonthKey
		from, to, err = engine.ResolveBasis(eng.MonthKeys(), rng.basis, rng.periodEnd)
		if err == nil {
			err = eng.ApplyRange(ctx, from, to)
		}
	default:
		// No window named: keep the subject's applied range.
	}
	if err != nil && !core.IsStale(err) {
		writeEngineError(w, r, err)
		return
	}
	if core.IsStale(err) {
		// A newer operation superseded this one; the committed state
		// below is that newer result.
		slog.DebugContext(ctx, "Range change superseded, serving committed state",
			"investor", subject.Investor, "sheet", subject.Sheet)
	}

	kpis, ok := eng.KPIs()
	if !ok {
		writeEngineError(w, r, core.ErrNoData)
		return
	}

	payload := s.overviewPayload(eng, subject, rng, kpis)

	if !subject.IsFundWide() {
		if store := eng.Store(); store != nil && !store.IsEmpty() {
			snaps := store.Snapshots()
			payload.JoinDate = snaps[0].AsOfDate.Format("2006-01-02")
			payload.TimeSpanMonths = store.FirstMonth().MonthsBetween(store.LastMonth()) + 1
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) overviewPayload(eng *engine.Engine, subject core.Subject, rng rangeParams, kpis core.KpiResult) *overviewResponse {
	from, to := eng.AppliedRange()
	start, end := eng.Allocations()

	months := eng.MonthKeys()
	available := make([]string, len(months))
	for i, mk := range months {
		available[i] = mk.String()
	}

	return &overviewResponse{
		Investor:        subject.Investor,
		Sheet:           subject.Sheet,
		Basis:           string(rng.basis),
		Kpis:            kpiPayloadFrom(kpis),
		AllocationStart: allocationPayloadFrom(start, s.minPct),
		AllocationEnd:   allocationPayloadFrom(end, s.minPct),
		AvailableMonths: available,
		AppliedFrom:     from.String(),
		AppliedTo:       to.String(),
	}
}

// handleAllocation serves a single month's breakdown without touching the
// subject's applied range.
//
//	GET /api/metrics/allocation?sheet=&investor=&period_end=&min_pct=
func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	subject := parseSubject(r, s.defaults)

	eng, err := s.engineFor(subject)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.ensureLoaded(ctx, eng); err != nil {
		writeEngineError(w, r, err)
		return
	}

	store := eng.Store()
	if store == nil || store.IsEmpty() {
		writeEngineError(w, r, core.ErrNoData)
		return
	}

	month := store.LastMonth()
	if v := queryValue(r, "period_end"); v != "" {
		mk, err := core.ParseMonthKey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid period_end: "+v)
			return
		}
		month = mk
	}

	minPct, err := parseMinPct(r, s.minPct)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var knownTotal decimal.Decimal
	if snap, ok := store.ByMonth(month); ok && snap.EndingBalance.Valid {
		knownTotal = snap.EndingBalance.Decimal
	}

	resolver := engine.NewAllocationResolver(s.feed, subject, s.fetchTimeout)
	breakdown := resolver.Resolve(ctx, month, knownTotal)

	writeJSON(w, http.StatusOK, allocationPayloadFrom(breakdown, minPct))
}

// handlePeriods lists the stored month snapshots for a subject.
//
//	GET /api/metrics/periods?sheet=&investor=
func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	subject := parseSubject(r, s.defaults)
	cacheKey := subjectKey(subject) + "|periods"

	if rows, found := s.periodsCache.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, periodsResponse{Periods: rows})
		return
	}

	eng, err := s.engineFor(subject)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.ensureLoaded(ctx, eng); err != nil {
		writeEngineError(w, r, err)
		return
	}

	store := eng.Store()
	if store == nil || store.IsEmpty() {
		writeEngineError(w, r, core.ErrNoData)
		return
	}

	snaps := store.Snapshots()
	rows := make([]periodRow, len(snaps))
	for i, snap := range snaps {
		rows[i] = periodRowFrom(snap)
	}

	s.periodsCache.Set(cacheKey, rows)
	writeJSON(w, http.StatusOK, periodsResponse{Periods: rows})
}

// handleRoiMonthly serves the month-over-month return series. Months in
// the requested window with no snapshot are emitted with missing set, so
// chart consumers can render gaps instead of collapsing the axis.
//
//	GET /api/portfolio/roi_monthly?sheet=&investor=&start=&end=
func (s *Server) handleRoiMonthly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	subject := parseSubject(r, s.defaults)

	eng, err := s.engineFor(subject)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.ensureLoaded(ctx, eng); err != nil {
		writeEngineError(w, r, err)
		return
	}

	store := eng.Store()
	if store == nil || store.IsEmpty() {
		writeEngineError(w, r, core.ErrNoData)
		return
	}

	start, end := store.FirstMonth(), store.LastMonth()
	if v := queryValue(r, "start"); v != "" {
		mk, err := core.ParseMonthKey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start: "+v)
			return
		}
		start = mk
	}
	if v := queryValue(r, "end"); v != "" {
		mk, err := core.ParseMonthKey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end: "+v)
			return
		}
		end = mk
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start is after end")
		return
	}

	cacheKey := subjectKey(subject) + "|roi|" + start.String() + "|" + end.String()
	if rows, found := s.roiCache.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, roiMonthlyResponse{Rows: rows})
		return
	}

	rows := buildRoiMonthly(store, start, end)
	s.roiCache.Set(cacheKey, rows)
	writeJSON(w, http.StatusOK, roiMonthlyResponse{Rows: rows})
}

// buildRoiMonthly walks every month in [start, end]. A month without a
// snapshot yields a missing row; a month whose previous ending balance is
// absent or zero yields a present row with a null return.
func buildRoiMonthly(store *engine.SnapshotStore, start, end core.MonthKey) []roiMonthlyRow {
	var rows []roiMonthlyRow
	for mk := start; !mk.After(end); mk = mk.Next() {
		row := roiMonthlyRow{Month: mk.String()}

		snap, ok := store.ByMonth(mk)
		if !ok {
			row.Missing = true
			rows = append(rows, row)
			continue
		}

		if snap.EndingBalance.Valid {
			if prev, ok := store.ByMonth(mk.Prev()); ok && prev.EndingBalance.Valid && !prev.EndingBalance.Decimal.IsZero() {
				roi, _ := snap.EndingBalance.Decimal.
					Div(prev.EndingBalance.Decimal).
					Sub(oneDecimal).
					Mul(hundredDecimal).
					Float64()
				row.RoiPct = &roi
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// handleRefresh forces a reload of the subject's feed and notifies SSE
// subscribers through the engine callbacks.
//
//	POST /api/refresh?sheet=&investor=
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	subject := parseSubject(r, s.defaults)
	if err := s.RefreshSubject(r.Context(), subject); err != nil {
		if core.IsStale(err) {
			// A newer refresh took over; nothing to report.
			writeJSON(w, http.StatusOK, map[string]string{"status": "superseded"})
			return
		}
		writeEngineError(w, r, err)
		return
	}

	if s.refresh != nil {
		if err := s.refresh.PublishRefresh(r.Context(), subject.Investor, subject.Sheet, "api"); err != nil {
			slog.WarnContext(r.Context(), "Failed to forward refresh to worker", "error", err)
		}
	}

	slog.InfoContext(r.Context(), "Subject refreshed",
		"investor", subject.Investor,
		"sheet", subject.Sheet)
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
