package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
)

// parsePeriodRows converts a values matrix (as returned by the Sheets API)
// into period snapshots. The first row is a header; column positions are
// resolved by name so administrators may reorder columns freely.
func parsePeriodRows(values [][]interface{}, investor string) ([]core.PeriodSnapshot, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])

	colDate := indexOfAny(headers, "date", "period", "as of", "as-of", "period end")
	colEnding := indexOfAny(headers, "ending balance", "ending")
	if colDate == -1 || colEnding == -1 {
		return nil, fmt.Errorf("unexpected header, need date and ending balance columns; got %v", headers)
	}
	colBeginning := indexOfAny(headers, "beginning balance", "beginning")
	colInvestor := indexOfAny(headers, "investor", "account")

	var out []core.PeriodSnapshot
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if colInvestor != -1 && investor != "" {
			if !strings.EqualFold(strings.TrimSpace(safeGet(row, colInvestor)), investor) {
				continue
			}
		}
		asOf, ok := parseCellDate(safeGet(row, colDate))
		if !ok {
			continue
		}
		snap := core.PeriodSnapshot{
			Month:         core.MonthKeyOf(asOf),
			AsOfDate:      asOf,
			EndingBalance: parseCellAmount(safeGet(row, colEnding)),
			Source:        "sheets",
		}
		if colBeginning != -1 {
			snap.BeginningBalance = parseCellAmount(safeGet(row, colBeginning))
		}
		out = append(out, snap)
	}
	return out, nil
}

// parseHoldingRows collects holding values for the requested month.
func parseHoldingRows(values [][]interface{}, month core.MonthKey) (core.AllocationBreakdown, error) {
	breakdown := core.AllocationBreakdown{Month: month}
	if len(values) == 0 {
		return breakdown, nil
	}
	headers := toStrings(values[0])
	colDate := indexOfAny(headers, "date", "period", "as of")
	colName := indexOfAny(headers, "name", "holding", "investment")
	colValue := indexOfAny(headers, "value", "amount")
	if colDate == -1 || colName == -1 || colValue == -1 {
		return breakdown, fmt.Errorf("unexpected header, need date, name and value columns; got %v", headers)
	}
	colColor := indexOfAny(headers, "color")

	total := decimal.Zero
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		asOf, ok := parseCellDate(safeGet(row, colDate))
		if !ok || core.MonthKeyOf(asOf) != month {
			continue
		}
		name := strings.TrimSpace(safeGet(row, colName))
		value := parseCellAmount(safeGet(row, colValue))
		if name == "" || !value.Valid {
			continue
		}
		item := core.AllocationItem{Name: name, Value: value.Decimal}
		if colColor != -1 {
			item.ColorHint = strings.TrimSpace(safeGet(row, colColor))
		}
		breakdown.Items = append(breakdown.Items, item)
		total = total.Add(value.Decimal)
	}
	breakdown.Total = total
	return breakdown, nil
}

var cellDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006-01", "Jan 2006", "January 2006"}

func parseCellDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseCellAmount tolerates currency symbols, thousands separators and
// accounting-style parentheses for negatives.
func parseCellAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.NullDecimal{}
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', ',', ' ':
			return -1
		}
		return r
	}, s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}

func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func indexOfAny(headers []string, names ...string) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}
