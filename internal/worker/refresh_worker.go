package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"fundpulse/internal/amqp"
	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
	"fundpulse/internal/storage"
)

// RefreshWorker pulls snapshots from the upstream feed into SQLite on a
// schedule and announces completed syncs over AMQP so API instances can
// reload their engines. It also consumes on-demand refresh requests from
// the same queue.
type RefreshWorker struct {
	upstream  feeds.Feed
	storage   *storage.SQLiteRepository
	publisher *amqp.Client
	subjects  []core.Subject
	timeout   time.Duration
	cron      *cron.Cron
}

func NewRefreshWorker(upstream feeds.Feed, storage *storage.SQLiteRepository, publisher *amqp.Client, subjects []core.Subject, timeout time.Duration) *RefreshWorker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RefreshWorker{
		upstream:  upstream,
		storage:   storage,
		publisher: publisher,
		subjects:  subjects,
		timeout:   timeout,
	}
}

// Start registers the sync schedule and begins running it. The schedule
// accepts standard five-field cron specs and descriptors like "@every 15m".
func (w *RefreshWorker) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := w.SyncAll(ctx, "scheduled"); err != nil {
			slog.ErrorContext(ctx, "Scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register sync schedule %q: %w", schedule, err)
	}

	w.cron = c
	c.Start()

	slog.InfoContext(ctx, "Refresh worker started",
		"schedule", schedule,
		"subjects", len(w.subjects))
	return nil
}

// Stop halts the schedule and waits for any running sync to finish.
func (w *RefreshWorker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// SyncAll syncs every configured subject. Per-subject failures are logged
// and counted; the last one is returned so callers see that the pass was
// not clean.
func (w *RefreshWorker) SyncAll(ctx context.Context, reason string) error {
	start := time.Now()
	var lastErr error
	failed := 0

	for _, subject := range w.subjects {
		if err := w.SyncSubject(ctx, subject, reason); err != nil {
			slog.ErrorContext(ctx, "Subject sync failed",
				"investor", subject.Investor,
				"sheet", subject.Sheet,
				"error", err)
			lastErr = err
			failed++
		}
	}

	slog.InfoContext(ctx, "Sync pass completed",
		"subjects", len(w.subjects),
		"failed", failed,
		"reason", reason,
		"duration", time.Since(start).Round(time.Millisecond))

	if lastErr != nil {
		return fmt.Errorf("sync pass: %d of %d subjects failed: %w", failed, len(w.subjects), lastErr)
	}
	return nil
}

// SyncSubject pulls one subject's period rows and its current allocation
// breakdown from upstream, persists both, then publishes a refresh
// notification.
func (w *RefreshWorker) SyncSubject(ctx context.Context, subject core.Subject, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	snapshots, err := w.upstream.ListPeriods(ctx, subject)
	if err != nil {
		return fmt.Errorf("list periods from upstream: %w", err)
	}
	if len(snapshots) == 0 {
		slog.WarnContext(ctx, "Upstream returned no periods, keeping stored data",
			"investor", subject.Investor,
			"sheet", subject.Sheet)
		return nil
	}

	if err := w.storage.UpsertSnapshots(ctx, subject, snapshots); err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}

	// The breakdown for the latest month is the one every default view
	// needs; older months are fetched lazily on request.
	latest := snapshots[0].Month
	for _, snap := range snapshots[1:] {
		if latest.Before(snap.Month) {
			latest = snap.Month
		}
	}
	if err := w.syncBreakdown(ctx, subject, latest); err != nil {
		slog.WarnContext(ctx, "Breakdown sync failed, snapshots stored without it",
			"investor", subject.Investor,
			"sheet", subject.Sheet,
			"month", latest.String(),
			"error", err)
	}

	slog.InfoContext(ctx, "Subject synced",
		"investor", subject.Investor,
		"sheet", subject.Sheet,
		"periods", len(snapshots),
		"latest", latest.String())

	if w.publisher != nil {
		if err := w.publisher.PublishRefresh(ctx, subject.Investor, subject.Sheet, reason); err != nil {
			slog.WarnContext(ctx, "Failed to publish refresh notification", "error", err)
		}
	}
	return nil
}

func (w *RefreshWorker) syncBreakdown(ctx context.Context, subject core.Subject, month core.MonthKey) error {
	breakdown, err := w.upstream.Breakdown(ctx, subject, month)
	if err != nil {
		return fmt.Errorf("fetch breakdown: %w", err)
	}
	if len(breakdown.Items) == 0 {
		return nil
	}
	if err := w.storage.UpsertBreakdown(ctx, subject, breakdown); err != nil {
		return fmt.Errorf("store breakdown: %w", err)
	}
	return nil
}

// HandleRefreshMessage processes an on-demand refresh request from AMQP.
// A request naming no subject triggers a full pass.
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.RefreshMessage) error {
	slog.InfoContext(ctx, "Processing refresh request",
		"investor", msg.Investor,
		"sheet", msg.Sheet,
		"reason", msg.Reason)

	if msg.Sheet == "" && msg.Investor == "" {
		return w.SyncAll(ctx, msg.Reason)
	}
	return w.SyncSubject(ctx, core.Subject{Investor: msg.Investor, Sheet: msg.Sheet}, msg.Reason)
}

// StartupSync runs one full pass at startup so a fresh database serves
// data before the first scheduled tick.
func (w *RefreshWorker) StartupSync(ctx context.Context) error {
	latest, err := w.storage.LatestMonth(ctx, w.defaultSubject())
	if err == nil && !latest.IsZero() {
		slog.InfoContext(ctx, "Stored data present on startup", "latest", latest.String())
	}
	return w.SyncAll(ctx, "startup")
}

func (w *RefreshWorker) defaultSubject() core.Subject {
	if len(w.subjects) > 0 {
		return w.subjects[0]
	}
	return core.Subject{}
}
