package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Subject scopes a data feed: fund-wide when Investor is empty, or a single
// investor's view. Sheet is the source sheet label the period rows were
// ingested from. Passed explicitly at engine construction; there is no
// ambient "selected investor" state.
type Subject struct {
	Investor string
	Sheet    string
}

// IsFundWide reports whether the subject covers the whole fund.
func (s Subject) IsFundWide() bool { return strings.TrimSpace(s.Investor) == "" }

// PeriodSnapshot is one month-end balance record for a subject/source.
// EndingBalance is authoritative for "value at this month-end".
// Flow fields (gains, fees, expenses) are carried for statement consumers
// and are not used by the KPI engine.
type PeriodSnapshot struct {
	Month            MonthKey            `json:"month"`
	AsOfDate         time.Time           `json:"as_of_date"`
	BeginningBalance decimal.NullDecimal `json:"beginning_balance"`
	EndingBalance    decimal.NullDecimal `json:"ending_balance"`

	UnrealizedGainLoss decimal.NullDecimal `json:"unrealized_gain_loss,omitempty"`
	ManagementFees     decimal.NullDecimal `json:"management_fees,omitempty"`
	OperatingExpenses  decimal.NullDecimal `json:"operating_expenses,omitempty"`

	Source string `json:"source,omitempty"`
}

// KpiResult holds the point-to-point metrics for an applied month range.
// RoiPct, Moic and IrrPct are nil when undefined (zero or negative inputs);
// nil must never be coerced to 0, which is itself a valid computed value.
type KpiResult struct {
	InitialValue decimal.Decimal `json:"initial_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	RoiPct       *float64        `json:"roi_pct"`
	Moic         *float64        `json:"moic"`
	IrrPct       *float64        `json:"irr_pct"`
	FromMonth    MonthKey        `json:"from_month"`
	AsOfMonth    MonthKey        `json:"as_of_month"`
	// Months is the span used for annualization, never less than 1.
	Months int `json:"months"`
}

// AllocationItem is one slice of a breakdown.
type AllocationItem struct {
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	Percent   float64         `json:"percent"`
	ColorHint string          `json:"color,omitempty"`
}

// AllocationBreakdown is the value-by-holding split for one month.
// IsFallback marks a synthesized single-slice breakdown produced when the
// feed had no granular items but a non-zero total was known independently.
type AllocationBreakdown struct {
	Month      MonthKey         `json:"month"`
	Total      decimal.Decimal  `json:"total"`
	Items      []AllocationItem `json:"items"`
	IsFallback bool             `json:"is_fallback"`
}

// FallbackSliceName is the label of the synthesized aggregate slice.
const FallbackSliceName = "All"
