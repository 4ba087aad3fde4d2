package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds/memory"
)

func fixtureSnapshot(month string, ending float64) core.PeriodSnapshot {
	mk := core.MustMonthKey(month)
	return core.PeriodSnapshot{
		Month:         mk,
		AsOfDate:      mk.MonthEnd(),
		EndingBalance: decimal.NewNullDecimal(decimal.NewFromFloat(ending)),
	}
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	fund := core.Subject{Sheet: "Main"}
	store.SetPeriods(fund, []core.PeriodSnapshot{
		fixtureSnapshot("2024-01", 100),
		fixtureSnapshot("2024-02", 110),
		fixtureSnapshot("2024-03", 130),
	})
	store.SetBreakdown(fund, core.MustMonthKey("2024-03"), core.AllocationBreakdown{
		Items: []core.AllocationItem{
			{Name: "Equities", Value: decimal.NewFromInt(90)},
			{Name: "Bonds", Value: decimal.NewFromInt(40)},
		},
	})
	store.SetPeriods(core.Subject{Investor: "alice", Sheet: "Main"}, []core.PeriodSnapshot{
		fixtureSnapshot("2024-02", 50),
		fixtureSnapshot("2024-03", 60),
	})

	srv := NewServer(Options{
		Addr:         ":0",
		Feed:         store,
		FetchTimeout: 2 * time.Second,
		DefaultSheet: "Main",
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestOverview_DefaultSpan(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got overviewResponse
	decodeInto(t, rec, &got)

	if got.Kpis.InitialValue != 100 || got.Kpis.CurrentValue != 130 {
		t.Errorf("kpis = %v -> %v, want 100 -> 130", got.Kpis.InitialValue, got.Kpis.CurrentValue)
	}
	if got.Kpis.RoiPct == nil || *got.Kpis.RoiPct != 30 {
		t.Errorf("roiPct = %v, want 30", got.Kpis.RoiPct)
	}
	if got.AppliedFrom != "2024-01" || got.AppliedTo != "2024-03" {
		t.Errorf("applied = %s..%s, want full span", got.AppliedFrom, got.AppliedTo)
	}
	if len(got.AvailableMonths) != 3 {
		t.Errorf("availableMonths = %v, want 3 entries", got.AvailableMonths)
	}
	if got.AllocationEnd == nil || got.AllocationEnd.IsFallback {
		t.Errorf("allocationEnd = %+v, want granular breakdown", got.AllocationEnd)
	}
	if got.AllocationStart == nil || !got.AllocationStart.IsFallback {
		t.Errorf("allocationStart = %+v, want fallback slice", got.AllocationStart)
	}
}

func TestOverview_AppliedRangePersistsAcrossRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview?from=2024-02&to=2024-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var first overviewResponse
	decodeInto(t, rec, &first)
	if first.AppliedFrom != "2024-02" || first.Kpis.InitialValue != 110 {
		t.Fatalf("applied range not honored: %+v", first.Kpis)
	}

	// A later request without range parameters serves the same window.
	rec = doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	var second overviewResponse
	decodeInto(t, rec, &second)
	if second.AppliedFrom != "2024-02" || second.AppliedTo != "2024-03" {
		t.Errorf("applied = %s..%s, want persisted 2024-02..2024-03", second.AppliedFrom, second.AppliedTo)
	}
}

func TestOverview_Basis(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview?basis=latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got overviewResponse
	decodeInto(t, rec, &got)
	if got.AppliedFrom != "2024-03" || got.AppliedTo != "2024-03" {
		t.Errorf("applied = %s..%s, want 2024-03..2024-03", got.AppliedFrom, got.AppliedTo)
	}
}

func TestOverview_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "from without to", target: "/api/metrics/overview?from=2024-01", want: http.StatusBadRequest},
		{name: "unparseable month", target: "/api/metrics/overview?from=janvier&to=2024-03", want: http.StatusBadRequest},
		{name: "month outside set", target: "/api/metrics/overview?from=2020-01&to=2024-03", want: http.StatusBadRequest},
		{name: "reversed pair", target: "/api/metrics/overview?from=2024-03&to=2024-01", want: http.StatusBadRequest},
		{name: "unknown basis", target: "/api/metrics/overview?basis=decade", want: http.StatusBadRequest},
		{name: "unknown sheet", target: "/api/metrics/overview?sheet=Nope", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestOverview_FailedRangeKeepsCommittedState(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(t, srv, http.MethodGet, "/api/metrics/overview?from=2024-02&to=2024-03")
	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview?from=2020-01&to=2024-03")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	var got overviewResponse
	decodeInto(t, rec, &got)
	if got.AppliedFrom != "2024-02" {
		t.Errorf("appliedFrom = %s, want 2024-02 after rejected range", got.AppliedFrom)
	}
}

func TestInvestorOverview(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("requires investor", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/metrics/investor-overview")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("serves join date and span", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/metrics/investor-overview?investor=alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var got overviewResponse
		decodeInto(t, rec, &got)
		if got.Investor != "alice" {
			t.Errorf("investor = %q, want alice", got.Investor)
		}
		if got.JoinDate != "2024-02-29" {
			t.Errorf("joinDate = %q, want 2024-02-29", got.JoinDate)
		}
		if got.TimeSpanMonths != 2 {
			t.Errorf("timeSpanMonths = %d, want 2", got.TimeSpanMonths)
		}
	})
}

func TestAllocation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/allocation")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got allocationPayload
	decodeInto(t, rec, &got)

	if got.Month != "2024-03" {
		t.Errorf("month = %s, want latest 2024-03", got.Month)
	}
	if len(got.Items) != 2 || got.Items[0].Name != "Equities" {
		t.Fatalf("items = %+v, want Equities first", got.Items)
	}
	if got.Items[0].Color == "" {
		t.Error("items missing assigned colors")
	}

	t.Run("earlier month falls back", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/metrics/allocation?period_end=2024-01")
		var b allocationPayload
		decodeInto(t, rec, &b)
		if !b.IsFallback {
			t.Errorf("isFallback = false, want synthesized slice for month without holdings")
		}
		if b.Total != 100 {
			t.Errorf("total = %v, want 100 from stored balance", b.Total)
		}
	})

	t.Run("invalid period_end", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/metrics/allocation?period_end=nope")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("min_pct groups small slices", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/metrics/allocation?min_pct=50")
		var b allocationPayload
		decodeInto(t, rec, &b)
		if len(b.Items) != 2 {
			t.Fatalf("items = %+v, want Equities plus Other", b.Items)
		}
		if b.Items[1].Name != "Other" {
			t.Errorf("items[1].Name = %q, want Other", b.Items[1].Name)
		}
	})
}

func TestPeriods(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/periods")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got periodsResponse
	decodeInto(t, rec, &got)
	if len(got.Periods) != 3 {
		t.Fatalf("len(periods) = %d, want 3", len(got.Periods))
	}
	if got.Periods[0].Month != "2024-01" || got.Periods[0].AsOfDate != "2024-01-31" {
		t.Errorf("periods[0] = %+v, want 2024-01 row", got.Periods[0])
	}
	if got.Periods[0].EndingBalance == nil || *got.Periods[0].EndingBalance != 100 {
		t.Errorf("endingBalance = %v, want 100", got.Periods[0].EndingBalance)
	}
	if got.Periods[0].BeginningBalance != nil {
		t.Errorf("beginningBalance = %v, want null preserved", *got.Periods[0].BeginningBalance)
	}
}

func TestRoiMonthly(t *testing.T) {
	srv, store := newTestServer(t)

	// Introduce a gap: February disappears from the feed.
	store.SetPeriods(core.Subject{Investor: "gappy", Sheet: "Main"}, []core.PeriodSnapshot{
		fixtureSnapshot("2024-01", 100),
		fixtureSnapshot("2024-03", 121),
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/roi_monthly?investor=gappy")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got roiMonthlyResponse
	decodeInto(t, rec, &got)

	if len(got.Rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3 (gap month included)", len(got.Rows))
	}
	if got.Rows[0].RoiPct != nil {
		t.Errorf("rows[0].roiPct = %v, want null without prior month", *got.Rows[0].RoiPct)
	}
	if !got.Rows[1].Missing || got.Rows[1].Month != "2024-02" {
		t.Errorf("rows[1] = %+v, want missing 2024-02", got.Rows[1])
	}
	if got.Rows[2].Missing {
		t.Error("rows[2].missing = true, want present")
	}
	// 2024-03 has no 2024-02 predecessor, so its return is null too.
	if got.Rows[2].RoiPct != nil {
		t.Errorf("rows[2].roiPct = %v, want null across the gap", *got.Rows[2].RoiPct)
	}

	t.Run("contiguous months compute returns", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/roi_monthly")
		var fund roiMonthlyResponse
		decodeInto(t, rec, &fund)
		if len(fund.Rows) != 3 {
			t.Fatalf("len(rows) = %d, want 3", len(fund.Rows))
		}
		if fund.Rows[1].RoiPct == nil || *fund.Rows[1].RoiPct != 10 {
			t.Errorf("rows[1].roiPct = %v, want 10", fund.Rows[1].RoiPct)
		}
	})

	t.Run("start after end", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/roi_monthly?start=2024-03&end=2024-01")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRefresh(t *testing.T) {
	srv, store := newTestServer(t)

	// Load the engine, then change the feed; only a refresh may surface it.
	doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	store.SetPeriods(core.Subject{Sheet: "Main"}, []core.PeriodSnapshot{
		fixtureSnapshot("2024-01", 100),
		fixtureSnapshot("2024-02", 110),
		fixtureSnapshot("2024-03", 130),
		fixtureSnapshot("2024-04", 150),
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	var before overviewResponse
	decodeInto(t, rec, &before)
	if len(before.AvailableMonths) != 3 {
		t.Fatalf("availableMonths = %v, want stale 3 before refresh", before.AvailableMonths)
	}

	if rec := doRequest(t, srv, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh status = %d, want 405", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/metrics/overview")
	var after overviewResponse
	decodeInto(t, rec, &after)
	if len(after.AvailableMonths) != 4 {
		t.Errorf("availableMonths = %v, want 4 after refresh", after.AvailableMonths)
	}
	// Both endpoints of the applied window survived the reload, so the
	// window is kept and still ends at 2024-03.
	if after.AppliedTo != "2024-03" {
		t.Errorf("appliedTo = %q, want preserved 2024-03", after.AppliedTo)
	}
	if after.Kpis.CurrentValue != 130 {
		t.Errorf("currentValue = %v, want 130 for preserved window", after.Kpis.CurrentValue)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/metrics/overview?from=2024-01&to=2024-04")
	var widened overviewResponse
	decodeInto(t, rec, &widened)
	if widened.Kpis.CurrentValue != 150 {
		t.Errorf("currentValue = %v, want 150 after widening to 2024-04", widened.Kpis.CurrentValue)
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/metrics/overview?sheet=.env")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for suspicious query", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(t, srv, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}
