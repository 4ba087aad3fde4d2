package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

type stubAllocationFeed struct {
	breakdown core.AllocationBreakdown
	err       error
}

func (f *stubAllocationFeed) Breakdown(_ context.Context, _ core.Subject, _ core.MonthKey) (core.AllocationBreakdown, error) {
	return f.breakdown, f.err
}

func TestAllocationResolver_Granular(t *testing.T) {
	month := core.MustMonthKey("2024-06")
	feed := &stubAllocationFeed{
		breakdown: core.AllocationBreakdown{
			Items: []core.AllocationItem{
				{Name: "Bonds", Value: decimal.NewFromInt(30)},
				{Name: "Equities", Value: decimal.NewFromInt(70)},
			},
		},
	}
	r := NewAllocationResolver(feed, core.Subject{Sheet: "Main"}, time.Second)

	got := r.Resolve(context.Background(), month, decimal.NewFromInt(100))

	if got.IsFallback {
		t.Fatal("IsFallback = true, want granular breakdown")
	}
	if !got.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Total = %s, want 100 (summed)", got.Total)
	}
	if len(got.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(got.Items))
	}
	// Largest slice first.
	if got.Items[0].Name != "Equities" {
		t.Errorf("Items[0].Name = %q, want Equities", got.Items[0].Name)
	}
	if got.Items[0].Percent != 70 {
		t.Errorf("Items[0].Percent = %v, want 70", got.Items[0].Percent)
	}
	if got.Month != month {
		t.Errorf("Month = %v, want %v", got.Month, month)
	}
}

func TestAllocationResolver_Fallback(t *testing.T) {
	month := core.MustMonthKey("2024-06")

	tests := []struct {
		name string
		feed feeds.AllocationFeed
	}{
		{name: "empty items", feed: &stubAllocationFeed{}},
		{name: "feed error", feed: &stubAllocationFeed{err: errors.New("boom")}},
		{name: "nil feed", feed: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAllocationResolver(tt.feed, core.Subject{}, time.Second)

			got := r.Resolve(context.Background(), month, decimal.NewFromInt(250))

			if !got.IsFallback {
				t.Fatal("IsFallback = false, want fallback slice")
			}
			if len(got.Items) != 1 || got.Items[0].Name != core.FallbackSliceName {
				t.Fatalf("Items = %+v, want single %q slice", got.Items, core.FallbackSliceName)
			}
			if got.Items[0].Percent != 100 {
				t.Errorf("Items[0].Percent = %v, want 100", got.Items[0].Percent)
			}
			if !got.Total.Equal(decimal.NewFromInt(250)) {
				t.Errorf("Total = %s, want 250", got.Total)
			}
		})
	}
}

func TestAllocationResolver_NoKnownTotal(t *testing.T) {
	r := NewAllocationResolver(&stubAllocationFeed{}, core.Subject{}, time.Second)
	got := r.Resolve(context.Background(), core.MustMonthKey("2024-06"), decimal.Zero)

	if got.IsFallback {
		t.Error("IsFallback = true, want empty breakdown when no total is known")
	}
	if len(got.Items) != 0 {
		t.Errorf("len(Items) = %d, want 0", len(got.Items))
	}
}

func TestAssignColors(t *testing.T) {
	b := core.AllocationBreakdown{
		Items: []core.AllocationItem{
			{Name: "A"},
			{Name: "B", ColorHint: "#123456"},
			{Name: "C"},
		},
	}
	AssignColors(&b)

	if b.Items[0].ColorHint == "" || b.Items[2].ColorHint == "" {
		t.Error("AssignColors left empty hints")
	}
	if b.Items[1].ColorHint != "#123456" {
		t.Errorf("Items[1].ColorHint = %q, want feed hint preserved", b.Items[1].ColorHint)
	}
	if b.Items[0].ColorHint == b.Items[2].ColorHint {
		t.Error("adjacent palette colors collide")
	}
}

func TestGroupSmallSlices(t *testing.T) {
	build := func() core.AllocationBreakdown {
		return core.AllocationBreakdown{
			Total: decimal.NewFromInt(100),
			Items: []core.AllocationItem{
				{Name: "Equities", Value: decimal.NewFromInt(80), Percent: 80},
				{Name: "Bonds", Value: decimal.NewFromInt(15), Percent: 15},
				{Name: "Cash", Value: decimal.NewFromInt(3), Percent: 3},
				{Name: "Gold", Value: decimal.NewFromInt(2), Percent: 2},
			},
		}
	}

	t.Run("folds below threshold", func(t *testing.T) {
		b := build()
		GroupSmallSlices(&b, 5)

		if len(b.Items) != 3 {
			t.Fatalf("len(Items) = %d, want 3", len(b.Items))
		}
		other := b.Items[2]
		if other.Name != "Other" {
			t.Fatalf("Items[2].Name = %q, want Other", other.Name)
		}
		if !other.Value.Equal(decimal.NewFromInt(5)) {
			t.Errorf("Other.Value = %s, want 5", other.Value)
		}
		if other.Percent != 5 {
			t.Errorf("Other.Percent = %v, want 5", other.Percent)
		}
	})

	t.Run("zero threshold is a no-op", func(t *testing.T) {
		b := build()
		GroupSmallSlices(&b, 0)
		if len(b.Items) != 4 {
			t.Errorf("len(Items) = %d, want 4 unchanged", len(b.Items))
		}
	})

	t.Run("nothing small leaves items alone", func(t *testing.T) {
		b := build()
		GroupSmallSlices(&b, 1)
		if len(b.Items) != 4 {
			t.Errorf("len(Items) = %d, want 4 unchanged", len(b.Items))
		}
	})
}
