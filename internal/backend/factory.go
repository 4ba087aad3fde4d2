package backend

import (
	"context"
	"fmt"
	"log/slog"

	"fundpulse/internal/config"
	"fundpulse/internal/feeds/google"
	"fundpulse/internal/feeds/memory"
	"fundpulse/internal/feeds/rest"
	"fundpulse/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new feed factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateFeed implements Factory.CreateFeed
func (f *DefaultFactory) CreateFeed(ctx context.Context, cfg Config) (*FeedResult, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid feed backend: %s", cfg.Type)
	}

	switch cfg.Type {
	case MemoryBackend:
		return f.createMemoryFeed(cfg)
	case SQLiteBackend:
		return f.createSQLiteFeed(cfg)
	case RestBackend:
		return f.createRestFeed(cfg)
	case SheetsBackend:
		return f.createSheetsFeed(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported feed backend: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createMemoryFeed(cfg Config) (*FeedResult, error) {
	dataDir := cfg.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory feed", "data_directory", dataDir)

	return &FeedResult{Feed: store}, nil
}

func (f *DefaultFactory) createSQLiteFeed(cfg Config) (*FeedResult, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite feed", "db_path", cfg.SQLiteDBPath)

	return &FeedResult{
		Feed:    repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createRestFeed(cfg Config) (*FeedResult, error) {
	cli := rest.NewClient(cfg.UpstreamURL, cfg.FeedTimeout)

	f.logger.Info("Initialized REST feed", "upstream", cfg.UpstreamURL)

	return &FeedResult{Feed: cli}, nil
}

func (f *DefaultFactory) createSheetsFeed(ctx context.Context, cfg Config) (*FeedResult, error) {
	cli, err := google.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets feed: %w", err)
	}

	f.logger.Info("Initialized Google Sheets feed",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"periods_sheet", cfg.PeriodsSheetName,
		"holdings_sheet", cfg.HoldingsSheetName)

	return &FeedResult{Feed: cli}, nil
}

// FromAppConfig converts the application config to feed config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.FeedBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid feed backend in config: %s", appConfig.FeedBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		UpstreamURL: appConfig.UpstreamURL,
		FeedTimeout: appConfig.FeedTimeout,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		PeriodsSheetName:    appConfig.PeriodsSheetName,
		HoldingsSheetName:   appConfig.HoldingsSheetName,

		DataDirectory: "data",
	}, nil
}
