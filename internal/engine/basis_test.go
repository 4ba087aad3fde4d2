package engine

import (
	"errors"
	"testing"

	"fundpulse/internal/core"
)

func TestParseBasis(t *testing.T) {
	tests := []struct {
		input   string
		want    Basis
		wantErr bool
	}{
		{input: "", want: BasisInception},
		{input: "inception", want: BasisInception},
		{input: "YTD", want: BasisYTD},
		{input: " quarter ", want: BasisQuarter},
		{input: "latest", want: BasisLatest},
		{input: "month", want: BasisLatest},
		{input: "fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBasis(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBasis(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBasis(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBasis(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveBasis(t *testing.T) {
	months := monthsOf(
		"2023-10", "2023-11", "2023-12",
		"2024-01", "2024-02", "2024-03", "2024-04", "2024-05",
	)

	tests := []struct {
		name      string
		basis     Basis
		periodEnd string
		wantFrom  string
		wantTo    string
	}{
		{name: "inception covers everything", basis: BasisInception, wantFrom: "2023-10", wantTo: "2024-05"},
		{name: "ytd starts at january", basis: BasisYTD, wantFrom: "2024-01", wantTo: "2024-05"},
		{name: "quarter boundary", basis: BasisQuarter, wantFrom: "2024-04", wantTo: "2024-05"},
		{name: "latest is single month", basis: BasisLatest, wantFrom: "2024-05", wantTo: "2024-05"},
		{name: "period end shifts the window", basis: BasisYTD, periodEnd: "2024-02", wantFrom: "2024-01", wantTo: "2024-02"},
		{name: "period end between months clamps down", basis: BasisLatest, periodEnd: "2024-06", wantFrom: "2024-05", wantTo: "2024-05"},
		{name: "quarter with end in first quarter", basis: BasisQuarter, periodEnd: "2024-02", wantFrom: "2024-01", wantTo: "2024-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var periodEnd core.MonthKey
			if tt.periodEnd != "" {
				periodEnd = core.MustMonthKey(tt.periodEnd)
			}
			from, to, err := ResolveBasis(months, tt.basis, periodEnd)
			if err != nil {
				t.Fatalf("ResolveBasis() error = %v", err)
			}
			if from != core.MustMonthKey(tt.wantFrom) || to != core.MustMonthKey(tt.wantTo) {
				t.Errorf("ResolveBasis() = %v..%v, want %s..%s", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}

	t.Run("empty month set", func(t *testing.T) {
		_, _, err := ResolveBasis(nil, BasisInception, core.MonthKey{})
		if !errors.Is(err, core.ErrNoData) {
			t.Errorf("ResolveBasis() error = %v, want %v", err, core.ErrNoData)
		}
	})

	t.Run("ytd in january collapses to one month", func(t *testing.T) {
		from, to, err := ResolveBasis(monthsOf("2023-11", "2023-12", "2024-01"), BasisYTD, core.MonthKey{})
		if err != nil {
			t.Fatalf("ResolveBasis() error = %v", err)
		}
		if from != to || to != core.MustMonthKey("2024-01") {
			t.Errorf("ResolveBasis() = %v..%v, want 2024-01..2024-01", from, to)
		}
	})
}
