package feeds

import (
	"context"

	"fundpulse/internal/core"
)

// Ports for outbound data feeds. The engine consumes these read-only;
// snapshot production (ingestion, reconciliation) lives behind them.
type (
	// PeriodFeed returns the monthly balance rows for a subject. Rows may
	// arrive unordered and with source-specific field shapes; adapters
	// normalize into core.PeriodSnapshot before they cross this boundary.
	PeriodFeed interface {
		ListPeriods(ctx context.Context, subject core.Subject) ([]core.PeriodSnapshot, error)
	}

	// AllocationFeed returns the value-by-holding breakdown for one month.
	// A feed with no granular data returns an empty Items slice, not an
	// error; hard failures are mapped by callers to the fallback path.
	AllocationFeed interface {
		Breakdown(ctx context.Context, subject core.Subject, month core.MonthKey) (core.AllocationBreakdown, error)
	}

	// Feed bundles both ports for backends that serve them together.
	Feed interface {
		PeriodFeed
		AllocationFeed
	}
)
