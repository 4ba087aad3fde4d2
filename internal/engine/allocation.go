package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

// AllocationResolver fetches the value-by-holding breakdown for a month and
// synthesizes a single aggregate slice when the feed has nothing granular.
// Feed failures degrade to the fallback path; they never block KPIs.
type AllocationResolver struct {
	feed    feeds.AllocationFeed
	subject core.Subject
	timeout time.Duration
}

// NewAllocationResolver builds a resolver. A nil feed is allowed and always
// takes the fallback path.
func NewAllocationResolver(feed feeds.AllocationFeed, subject core.Subject, timeout time.Duration) *AllocationResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AllocationResolver{feed: feed, subject: subject, timeout: timeout}
}

// Resolve returns a renderable breakdown for the month. knownTotal is the
// independently computed value for that month (from the KPI side) and feeds
// the fallback slice when the primary path yields zero items.
func (r *AllocationResolver) Resolve(ctx context.Context, month core.MonthKey, knownTotal decimal.Decimal) core.AllocationBreakdown {
	breakdown, err := r.fetch(ctx, month)
	if err != nil {
		slog.WarnContext(ctx, "Allocation fetch failed, degrading to fallback",
			"month", month.String(), "sheet", r.subject.Sheet, "error", err)
		breakdown = core.AllocationBreakdown{Month: month}
	}
	breakdown.Month = month

	if len(breakdown.Items) == 0 {
		if knownTotal.IsPositive() {
			return core.AllocationBreakdown{
				Month:      month,
				Total:      knownTotal,
				Items:      []core.AllocationItem{{Name: core.FallbackSliceName, Value: knownTotal, Percent: 100}},
				IsFallback: true,
			}
		}
		return core.AllocationBreakdown{Month: month}
	}

	normalizeBreakdown(&breakdown)
	return breakdown
}

func (r *AllocationResolver) fetch(ctx context.Context, month core.MonthKey) (core.AllocationBreakdown, error) {
	if r.feed == nil {
		return core.AllocationBreakdown{}, core.ErrAllocationUnavailable
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.feed.Breakdown(cctx, r.subject, month)
}

// normalizeBreakdown fills in totals and percentages the feed left blank
// and orders slices largest first.
func normalizeBreakdown(b *core.AllocationBreakdown) {
	if b.Total.IsZero() {
		sum := decimal.Zero
		for _, item := range b.Items {
			sum = sum.Add(item.Value)
		}
		b.Total = sum
	}
	totalF, _ := b.Total.Float64()
	if totalF > 0 {
		for i := range b.Items {
			if b.Items[i].Percent == 0 {
				v, _ := b.Items[i].Value.Float64()
				b.Items[i].Percent = v / totalF * 100
			}
		}
	}
	sort.SliceStable(b.Items, func(i, j int) bool {
		return b.Items[i].Value.GreaterThan(b.Items[j].Value)
	})
}

// palette used when the feed supplies no color hint.
var palette = []string{
	"#6366F1", "#10B981", "#60A5FA", "#F59E0B", "#EF4444",
	"#8B5CF6", "#14B8A6", "#22C55E", "#3B82F6", "#EAB308",
	"#F97316", "#EC4899", "#06B6D4", "#84CC16",
}

const otherSliceColor = "#CBD5E1"

// AssignColors fills empty color hints from the default palette.
func AssignColors(b *core.AllocationBreakdown) {
	for i := range b.Items {
		if b.Items[i].ColorHint == "" {
			b.Items[i].ColorHint = palette[i%len(palette)]
		}
	}
}

// GroupSmallSlices folds slices under minPct percent into a single "Other"
// bucket. minPct <= 0 leaves the breakdown unchanged.
func GroupSmallSlices(b *core.AllocationBreakdown, minPct float64) {
	if minPct <= 0 || len(b.Items) == 0 {
		return
	}
	major := b.Items[:0]
	otherValue := decimal.Zero
	otherPct := 0.0
	for _, item := range b.Items {
		if item.Percent >= minPct {
			major = append(major, item)
			continue
		}
		otherValue = otherValue.Add(item.Value)
		otherPct += item.Percent
	}
	if otherValue.IsZero() && otherPct == 0 {
		return
	}
	b.Items = append(major, core.AllocationItem{
		Name:      "Other",
		Value:     otherValue,
		Percent:   otherPct,
		ColorHint: otherSliceColor,
	})
}
