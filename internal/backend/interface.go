package backend

import (
	"context"
	"time"

	"fundpulse/internal/feeds"
)

// CleanupFunc releases resources held by a feed backend.
type CleanupFunc func() error

// FeedResult contains the feed instance and optional cleanup function.
type FeedResult struct {
	Feed    feeds.Feed
	Cleanup CleanupFunc
}

// Factory creates feed backends based on configuration.
type Factory interface {
	CreateFeed(ctx context.Context, config Config) (*FeedResult, error)
}

// Config holds configuration for feed creation.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// REST specific
	UpstreamURL string
	FeedTimeout time.Duration

	// Google Sheets specific
	GoogleSpreadsheetID string
	PeriodsSheetName    string
	HoldingsSheetName   string

	// Memory backend specific
	DataDirectory string
}

// BackendType selects the feed implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RestBackend   BackendType = "rest"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid.
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RestBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
