package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fundpulse/internal/core"
)

// fixtureFile is the on-disk seed format for local development, one JSON
// document per subject set.
type fixtureFile struct {
	Subjects []fixtureSubject `json:"subjects"`
}

type fixtureSubject struct {
	Investor    string                     `json:"investor,omitempty"`
	Sheet       string                     `json:"sheet"`
	Periods     []core.PeriodSnapshot      `json:"periods"`
	Allocations []core.AllocationBreakdown `json:"allocations,omitempty"`
}

// NewFromFiles builds a store seeded from every *.json fixture in dir. A
// missing directory yields an empty store, not an error, so a fresh
// checkout starts clean.
func NewFromFiles(dir string) *Store {
	store := New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read fixture directory", "dir", dir, "error", err)
		}
		return store
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := store.LoadFixture(path); err != nil {
			slog.Warn("Skipping fixture", "file", path, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("Loaded feed fixtures", "dir", dir, "files", loaded)
	return store
}

// LoadFixture merges one fixture file into the store.
func (s *Store) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}

	var file fixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	for _, fs := range file.Subjects {
		subject := core.Subject{Investor: fs.Investor, Sheet: fs.Sheet}
		if len(fs.Periods) > 0 {
			s.SetPeriods(subject, fs.Periods)
		}
		for _, b := range fs.Allocations {
			s.SetBreakdown(subject, b.Month, b)
		}
	}
	return nil
}
