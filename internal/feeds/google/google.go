// Package google implements the period and allocation feeds on top of a
// Google Sheets workbook, for funds whose administrator publishes monthly
// balances as a spreadsheet instead of an API.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
)

// Client reads period rows and holding values from one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	periodsSheet  string
	holdingsSheet string
}

// Ensure interface conformance
var (
	_ feeds.PeriodFeed     = (*Client)(nil)
	_ feeds.AllocationFeed = (*Client)(nil)
	_ feeds.Feed           = (*Client)(nil)
)

// NewFromEnv creates a Sheets-backed feed from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional sheet names: PERIODS_SHEET_NAME (default "Periods"),
// HOLDINGS_SHEET_NAME (default "Holdings").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	periodsSheet := strings.TrimSpace(os.Getenv("PERIODS_SHEET_NAME"))
	if periodsSheet == "" {
		periodsSheet = "Periods"
	}
	holdingsSheet := strings.TrimSpace(os.Getenv("HOLDINGS_SHEET_NAME"))
	if holdingsSheet == "" {
		holdingsSheet = "Holdings"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		periodsSheet:  periodsSheet,
		holdingsSheet: holdingsSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// ListPeriods implements feeds.PeriodFeed. The periods sheet is expected to
// carry a header row naming at least a date column and an ending balance
// column; an optional investor column scopes rows per investor.
func (c *Client) ListPeriods(ctx context.Context, subject core.Subject) ([]core.PeriodSnapshot, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A1:H", c.periodsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	snapshots, err := parsePeriodRows(resp.Values, subject.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse periods sheet %s: %w", c.periodsSheet, err)
	}

	slog.DebugContext(ctx, "Loaded period rows from sheet",
		"sheet", c.periodsSheet, "rows", len(snapshots), "investor", subject.Investor)
	return snapshots, nil
}

// Breakdown implements feeds.AllocationFeed. The holdings sheet carries one
// row per holding per month: date, name, value and an optional color.
func (c *Client) Breakdown(ctx context.Context, subject core.Subject, month core.MonthKey) (core.AllocationBreakdown, error) {
	if c.svc == nil {
		return core.AllocationBreakdown{}, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A1:D", c.holdingsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return core.AllocationBreakdown{}, fmt.Errorf("read %s: %w", rng, err)
	}

	breakdown, err := parseHoldingRows(resp.Values, month)
	if err != nil {
		return core.AllocationBreakdown{}, fmt.Errorf("parse holdings sheet %s: %w", c.holdingsSheet, err)
	}
	return breakdown, nil
}
