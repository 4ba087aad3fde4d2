package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/engine"
)

var (
	oneDecimal     = decimal.NewFromInt(1)
	hundredDecimal = decimal.NewFromInt(100)
)

// kpiPayload is the wire shape of a KPI block. Ratio metrics stay nullable
// so consumers can distinguish "undefined" from an actual zero.
type kpiPayload struct {
	InitialValue float64  `json:"initialValue"`
	CurrentValue float64  `json:"currentValue"`
	RoiPct       *float64 `json:"roiPct"`
	Moic         *float64 `json:"moic"`
	IrrPct       *float64 `json:"irrPct"`
	FromMonth    string   `json:"fromMonth"`
	AsOfMonth    string   `json:"asOfMonth"`
	Months       int      `json:"months"`
}

type allocationItemPayload struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color,omitempty"`
}

type allocationPayload struct {
	Month      string                  `json:"month"`
	Total      float64                 `json:"total"`
	Items      []allocationItemPayload `json:"items"`
	IsFallback bool                    `json:"isFallback"`
}

type overviewResponse struct {
	Investor string `json:"investor,omitempty"`
	Sheet    string `json:"sheet"`
	Basis    string `json:"basis,omitempty"`

	Kpis            kpiPayload         `json:"kpis"`
	AllocationStart *allocationPayload `json:"allocationStart"`
	AllocationEnd   *allocationPayload `json:"allocationEnd"`

	AvailableMonths []string `json:"availableMonths"`
	AppliedFrom     string   `json:"appliedFrom"`
	AppliedTo       string   `json:"appliedTo"`

	JoinDate       string `json:"joinDate,omitempty"`
	TimeSpanMonths int    `json:"timeSpanMonths,omitempty"`
}

type periodRow struct {
	Month            string   `json:"month"`
	AsOfDate         string   `json:"asOfDate"`
	BeginningBalance *float64 `json:"beginningBalance"`
	EndingBalance    *float64 `json:"endingBalance"`
	Source           string   `json:"source,omitempty"`
}

type periodsResponse struct {
	Periods []periodRow `json:"periods"`
}

type roiMonthlyRow struct {
	Month   string   `json:"month"`
	RoiPct  *float64 `json:"roiPct"`
	Missing bool     `json:"missing,omitempty"`
}

type roiMonthlyResponse struct {
	Rows []roiMonthlyRow `json:"rows"`
}

func kpiPayloadFrom(k core.KpiResult) kpiPayload {
	return kpiPayload{
		InitialValue: k.InitialValue.InexactFloat64(),
		CurrentValue: k.CurrentValue.InexactFloat64(),
		RoiPct:       k.RoiPct,
		Moic:         k.Moic,
		IrrPct:       k.IrrPct,
		FromMonth:    k.FromMonth.String(),
		AsOfMonth:    k.AsOfMonth.String(),
		Months:       k.Months,
	}
}

// allocationPayloadFrom colors and groups a copy of the breakdown before
// flattening it. The engine's committed breakdown is never mutated here.
func allocationPayloadFrom(b core.AllocationBreakdown, minPct float64) *allocationPayload {
	shaped := b
	shaped.Items = make([]core.AllocationItem, len(b.Items))
	copy(shaped.Items, b.Items)

	engine.AssignColors(&shaped)
	engine.GroupSmallSlices(&shaped, minPct)

	items := make([]allocationItemPayload, len(shaped.Items))
	for i, it := range shaped.Items {
		items[i] = allocationItemPayload{
			Name:    it.Name,
			Value:   it.Value.InexactFloat64(),
			Percent: it.Percent,
			Color:   it.ColorHint,
		}
	}
	return &allocationPayload{
		Month:      shaped.Month.String(),
		Total:      shaped.Total.InexactFloat64(),
		Items:      items,
		IsFallback: shaped.IsFallback,
	}
}

func periodRowFrom(snap core.PeriodSnapshot) periodRow {
	row := periodRow{
		Month:  snap.Month.String(),
		Source: snap.Source,
	}
	if !snap.AsOfDate.IsZero() {
		row.AsOfDate = snap.AsOfDate.Format("2006-01-02")
	}
	if snap.BeginningBalance.Valid {
		v := snap.BeginningBalance.Decimal.InexactFloat64()
		row.BeginningBalance = &v
	}
	if snap.EndingBalance.Valid {
		v := snap.EndingBalance.Decimal.InexactFloat64()
		row.EndingBalance = &v
	}
	return row
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeEngineError maps domain errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNoData):
		writeError(w, http.StatusNotFound, "no data available for subject")
	case errors.Is(err, core.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
