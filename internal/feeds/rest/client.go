// Package rest implements the period and allocation feeds against the
// backend metrics API over HTTP. It is also the normalization boundary:
// backend payloads use inconsistent field names across endpoints, and this
// package maps every variant into the canonical core shapes so the engine
// never branches on source-specific fields.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

const defaultTimeout = 10 * time.Second

// Client talks to the metrics backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// Ensure interface conformance
var (
	_ feeds.PeriodFeed     = (*Client)(nil)
	_ feeds.AllocationFeed = (*Client)(nil)
	_ feeds.Feed           = (*Client)(nil)
)

// NewClient builds a client for the given base URL, e.g.
// "https://portal.example.com". A non-positive timeout gets the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ListPeriods implements feeds.PeriodFeed.
func (c *Client) ListPeriods(ctx context.Context, subject core.Subject) ([]core.PeriodSnapshot, error) {
	q := url.Values{}
	if subject.Sheet != "" {
		q.Set("sheet", subject.Sheet)
	}
	if subject.Investor != "" {
		q.Set("investor", subject.Investor)
	}

	body, err := c.get(ctx, "/api/metrics/periods", q)
	if err != nil {
		return nil, fmt.Errorf("fetch periods: %w", err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("decode periods: %w", err)
	}

	out := make([]core.PeriodSnapshot, 0, len(rows))
	for _, row := range rows {
		snap, ok := normalizeSnapshot(row)
		if !ok {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Breakdown implements feeds.AllocationFeed.
func (c *Client) Breakdown(ctx context.Context, subject core.Subject, month core.MonthKey) (core.AllocationBreakdown, error) {
	q := url.Values{}
	q.Set("period_end", month.String())
	if subject.Sheet != "" {
		q.Set("sheet", subject.Sheet)
	}
	if subject.Investor != "" {
		q.Set("investor", subject.Investor)
	}

	body, err := c.get(ctx, "/api/metrics/allocation", q)
	if err != nil {
		return core.AllocationBreakdown{}, fmt.Errorf("fetch allocation: %w", err)
	}
	breakdown, err := normalizeAllocation(body, month)
	if err != nil {
		return core.AllocationBreakdown{}, fmt.Errorf("decode allocation: %w", err)
	}
	return breakdown, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The backend reports "nothing for this scope" as 404; treat it
		// as an empty result, not a transport failure.
		return []byte("[]"), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// decodeRows accepts either a bare array or an object wrapping the array
// under "rows", "periods", "items" or "data".
func decodeRows(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]any
		if err := unmarshalNumbers(body, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, err
	}
	for _, key := range []string{"rows", "periods", "items", "data"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var rows []map[string]any
		if err := unmarshalNumbers(raw, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return nil, nil
}

// unmarshalNumbers decodes JSON keeping numbers as json.Number, so
// monetary values survive without a float round-trip.
func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	return dec.Decode(v)
}
