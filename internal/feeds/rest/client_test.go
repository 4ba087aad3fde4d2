package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
)

func TestClient_ListPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/metrics/periods" {
			t.Errorf("path = %s, want /api/metrics/periods", r.URL.Path)
		}
		if got := r.URL.Query().Get("sheet"); got != "Main" {
			t.Errorf("sheet = %q, want Main", got)
		}
		if got := r.URL.Query().Get("investor"); got != "alice" {
			t.Errorf("investor = %q, want alice", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"periods": [
			{"as_of_date": "2024-01-31", "beginning_balance": 95, "ending_balance": "100.50"},
			{"period_date": "2024-02-29", "closing_balance": 110},
			{"ending_balance": 120},
			{"as_of_date": "2024-03-31"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.ListPeriods(context.Background(), core.Subject{Investor: "alice", Sheet: "Main"})
	if err != nil {
		t.Fatalf("ListPeriods() error = %v", err)
	}

	// The dateless row is dropped; the balance-less row survives with a
	// null ending balance.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Month != core.MustMonthKey("2024-01") {
		t.Errorf("Month = %v, want 2024-01", got[0].Month)
	}
	if !got[0].EndingBalance.Valid || !got[0].EndingBalance.Decimal.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("EndingBalance = %v, want 100.50", got[0].EndingBalance)
	}
	if !got[1].EndingBalance.Decimal.Equal(decimal.NewFromInt(110)) {
		t.Errorf("closing_balance variant not normalized: %v", got[1].EndingBalance)
	}
	if got[2].EndingBalance.Valid {
		t.Errorf("EndingBalance = %v, want null", got[2].EndingBalance)
	}
}

func TestClient_ListPeriods_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"as_of_date": "2024-05-31", "ending_balance": 42}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.ListPeriods(context.Background(), core.Subject{Sheet: "Main"})
	if err != nil {
		t.Fatalf("ListPeriods() error = %v", err)
	}
	if len(got) != 1 || got[0].Month != core.MustMonthKey("2024-05") {
		t.Fatalf("got = %+v, want one 2024-05 row", got)
	}
}

func TestClient_ListPeriods_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.ListPeriods(context.Background(), core.Subject{Sheet: "Main"})
	if err != nil {
		t.Fatalf("ListPeriods() error = %v, want empty result", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestClient_ListPeriods_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.ListPeriods(context.Background(), core.Subject{Sheet: "Main"}); err == nil {
		t.Fatal("ListPeriods() error = nil, want error on 500")
	}
}

func TestClient_Breakdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/metrics/allocation" {
			t.Errorf("path = %s, want /api/metrics/allocation", r.URL.Path)
		}
		if got := r.URL.Query().Get("period_end"); got != "2024-06" {
			t.Errorf("period_end = %q, want 2024-06", got)
		}
		w.Write([]byte(`{
			"total": 100,
			"items": [
				{"label": "Equities", "amount": 70, "pct": 70, "color": "#123456"},
				{"name": "Bonds", "value": 30},
				{"name": "", "value": 5},
				{"name": "NoValue"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.Breakdown(context.Background(), core.Subject{Sheet: "Main"}, core.MustMonthKey("2024-06"))
	if err != nil {
		t.Fatalf("Breakdown() error = %v", err)
	}

	if got.Month != core.MustMonthKey("2024-06") {
		t.Errorf("Month = %v, want 2024-06", got.Month)
	}
	if !got.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Total = %s, want 100", got.Total)
	}
	if len(got.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2 (nameless and valueless rows dropped)", len(got.Items))
	}
	if got.Items[0].Name != "Equities" || got.Items[0].Percent != 70 || got.Items[0].ColorHint != "#123456" {
		t.Errorf("Items[0] = %+v, want normalized Equities row", got.Items[0])
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.ListPeriods(ctx, core.Subject{Sheet: "Main"}); err == nil {
		t.Fatal("ListPeriods() error = nil, want context error")
	}
}
