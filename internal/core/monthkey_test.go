package core

import (
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical form", input: "2024-03", want: "2024-03"},
		{name: "full date truncates to month", input: "2024-03-31", want: "2024-03"},
		{name: "empty string is the zero key", input: "", want: ""},
		{name: "garbage", input: "march 2024", wantErr: true},
		{name: "month only", input: "03", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mk, err := ParseMonthKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMonthKey(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMonthKey(%q) error = %v", tt.input, err)
			}
			if tt.want == "" {
				if !mk.IsZero() {
					t.Errorf("ParseMonthKey(%q) = %v, want zero key", tt.input, mk)
				}
				return
			}
			if got := mk.String(); got != tt.want {
				t.Errorf("ParseMonthKey(%q).String() = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMonthKey_Arithmetic(t *testing.T) {
	dec := MustMonthKey("2023-12")
	jan := MustMonthKey("2024-01")

	if got := dec.Next(); got != jan {
		t.Errorf("Next() = %v, want %v", got, jan)
	}
	if got := jan.Prev(); got != dec {
		t.Errorf("Prev() = %v, want %v", got, dec)
	}
	if got := dec.AddMonths(13); got != MustMonthKey("2025-01") {
		t.Errorf("AddMonths(13) = %v, want 2025-01", got)
	}
	if got := dec.MonthsBetween(jan); got != 1 {
		t.Errorf("MonthsBetween adjacent = %d, want 1", got)
	}
	if got := jan.MonthsBetween(dec); got != -1 {
		t.Errorf("MonthsBetween reversed = %d, want -1", got)
	}
	if !dec.Before(jan) || jan.Before(dec) {
		t.Errorf("Before() ordering wrong for %v / %v", dec, jan)
	}
	if !jan.After(dec) {
		t.Errorf("After() = false, want true for %v after %v", jan, dec)
	}
}

func TestMonthKey_MonthEnd(t *testing.T) {
	tests := []struct {
		month string
		want  string
	}{
		{month: "2024-02", want: "2024-02-29"}, // leap year
		{month: "2023-02", want: "2023-02-28"},
		{month: "2024-12", want: "2024-12-31"},
		{month: "2024-04", want: "2024-04-30"},
	}

	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			got := MustMonthKey(tt.month).MonthEnd().Format("2006-01-02")
			if got != tt.want {
				t.Errorf("MonthEnd() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonthKeyOf(t *testing.T) {
	midMonth := time.Date(2024, time.July, 17, 14, 30, 0, 0, time.UTC)
	if got := MonthKeyOf(midMonth); got != MustMonthKey("2024-07") {
		t.Errorf("MonthKeyOf(mid-month) = %v, want 2024-07", got)
	}
	if got := MonthKeyOf(time.Time{}); !got.IsZero() {
		t.Errorf("MonthKeyOf(zero time) = %v, want zero key", got)
	}
}
