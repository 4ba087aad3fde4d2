package rest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
)

// Field-name variants seen across backend endpoints. Normalization happens
// here, once, so nothing downstream branches on payload shape.
var (
	dateFields       = []string{"as_of_date", "period_date", "as_of", "date"}
	beginningFields  = []string{"beginning_balance", "beginning", "begin_balance", "opening_balance"}
	endingFields     = []string{"ending_balance", "ending", "end_balance", "closing_balance"}
	unrealizedFields = []string{"unrealized_gain_loss", "unrealized"}
	mgmtFeeFields    = []string{"management_fees", "mgmt_fees"}
	opexFields       = []string{"operating_expenses", "opex"}

	itemNameFields  = []string{"name", "label", "investment"}
	itemValueFields = []string{"value", "amount"}
	itemPctFields   = []string{"percent", "pct", "percentage"}
	itemColorFields = []string{"color", "color_hex", "colorHint"}
)

// normalizeSnapshot maps one backend period row onto the canonical shape.
// Rows without a parseable date are rejected.
func normalizeSnapshot(row map[string]any) (core.PeriodSnapshot, bool) {
	asOf, ok := pickDate(row, dateFields...)
	if !ok {
		return core.PeriodSnapshot{}, false
	}
	return core.PeriodSnapshot{
		Month:              core.MonthKeyOf(asOf),
		AsOfDate:           asOf,
		BeginningBalance:   pickDecimal(row, beginningFields...),
		EndingBalance:      pickDecimal(row, endingFields...),
		UnrealizedGainLoss: pickDecimal(row, unrealizedFields...),
		ManagementFees:     pickDecimal(row, mgmtFeeFields...),
		OperatingExpenses:  pickDecimal(row, opexFields...),
		Source:             pickString(row, "source"),
	}, true
}

// normalizeAllocation maps the allocation payload onto the canonical shape.
func normalizeAllocation(body []byte, month core.MonthKey) (core.AllocationBreakdown, error) {
	var payload map[string]any
	if err := unmarshalNumbers(body, &payload); err != nil {
		return core.AllocationBreakdown{}, err
	}
	if payload == nil {
		return core.AllocationBreakdown{Month: month}, nil
	}

	breakdown := core.AllocationBreakdown{Month: month}
	if total := pickDecimal(payload, "total"); total.Valid {
		breakdown.Total = total.Decimal
	}
	if asOf, ok := pickDate(payload, "as_of", "as_of_date", "month"); ok {
		breakdown.Month = core.MonthKeyOf(asOf)
	}

	rawItems, ok := payload["items"].([]any)
	if !ok {
		if alt, okAlt := payload["allocations"].([]any); okAlt {
			rawItems = alt
		}
	}
	for _, raw := range rawItems {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := pickString(row, itemNameFields...)
		value := pickDecimal(row, itemValueFields...)
		if name == "" || !value.Valid {
			continue
		}
		item := core.AllocationItem{
			Name:      name,
			Value:     value.Decimal,
			ColorHint: pickString(row, itemColorFields...),
		}
		if pct := pickDecimal(row, itemPctFields...); pct.Valid {
			item.Percent, _ = pct.Decimal.Float64()
		}
		breakdown.Items = append(breakdown.Items, item)
	}
	return breakdown, nil
}

func pickString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := row[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func pickDecimal(row map[string]any, keys ...string) decimal.NullDecimal {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case json.Number:
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
				return decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case float64:
			return decimal.NullDecimal{Decimal: decimal.NewFromFloat(n), Valid: true}
		}
	}
	return decimal.NullDecimal{}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01"}

func pickDate(row map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		v, ok := row[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
