package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fundpulse/internal/core"
	"fundpulse/internal/feeds"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists period snapshots and allocation values pulled
// from upstream feeds, and serves them back as a feeds.Feed.
type SQLiteRepository struct {
	db *sql.DB
}

var _ feeds.Feed = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListPeriods implements feeds.PeriodFeed.
func (r *SQLiteRepository) ListPeriods(ctx context.Context, subject core.Subject) ([]core.PeriodSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT as_of_date, beginning_balance, ending_balance,
		       unrealized_gain_loss, management_fees, operating_expenses, source
		FROM period_snapshots
		WHERE investor = ? AND sheet = ?
		ORDER BY as_of_date`,
		subject.Investor, subject.Sheet)
	if err != nil {
		return nil, fmt.Errorf("query period snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.PeriodSnapshot
	for rows.Next() {
		var (
			asOf                       string
			beginning, ending          sql.NullString
			unrealized, mgmtFees, opex sql.NullString
			source                     string
		)
		if err := rows.Scan(&asOf, &beginning, &ending, &unrealized, &mgmtFees, &opex, &source); err != nil {
			return nil, fmt.Errorf("scan period snapshot: %w", err)
		}
		asOfDate, err := time.Parse("2006-01-02", asOf)
		if err != nil {
			return nil, fmt.Errorf("parse as_of_date %q: %w", asOf, err)
		}
		out = append(out, core.PeriodSnapshot{
			Month:              core.MonthKeyOf(asOfDate),
			AsOfDate:           asOfDate,
			BeginningBalance:   scanDecimal(beginning),
			EndingBalance:      scanDecimal(ending),
			UnrealizedGainLoss: scanDecimal(unrealized),
			ManagementFees:     scanDecimal(mgmtFees),
			OperatingExpenses:  scanDecimal(opex),
			Source:             source,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate period snapshots: %w", err)
	}
	return out, nil
}

// Breakdown implements feeds.AllocationFeed.
func (r *SQLiteRepository) Breakdown(ctx context.Context, subject core.Subject, month core.MonthKey) (core.AllocationBreakdown, error) {
	breakdown := core.AllocationBreakdown{Month: month}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, value, color_hint
		FROM allocation_values
		WHERE investor = ? AND sheet = ? AND period_month = ?
		ORDER BY name`,
		subject.Investor, subject.Sheet, month.String())
	if err != nil {
		return breakdown, fmt.Errorf("query allocation values: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var name, value, colorHint string
		if err := rows.Scan(&name, &value, &colorHint); err != nil {
			return breakdown, fmt.Errorf("scan allocation value: %w", err)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return breakdown, fmt.Errorf("parse allocation value %q: %w", value, err)
		}
		breakdown.Items = append(breakdown.Items, core.AllocationItem{
			Name:      name,
			Value:     d,
			ColorHint: colorHint,
		})
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return breakdown, fmt.Errorf("iterate allocation values: %w", err)
	}
	breakdown.Total = total
	return breakdown, nil
}

// UpsertSnapshots stores a batch of period snapshots for a subject in a
// single transaction. Conflicting rows are updated in place so repeated
// syncs converge on the upstream state.
func (r *SQLiteRepository) UpsertSnapshots(ctx context.Context, subject core.Subject, snapshots []core.PeriodSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO period_snapshots (
			investor, sheet, as_of_date, beginning_balance, ending_balance,
			unrealized_gain_loss, management_fees, operating_expenses, source, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (investor, sheet, as_of_date) DO UPDATE SET
			beginning_balance = excluded.beginning_balance,
			ending_balance = excluded.ending_balance,
			unrealized_gain_loss = excluded.unrealized_gain_loss,
			management_fees = excluded.management_fees,
			operating_expenses = excluded.operating_expenses,
			source = excluded.source,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if s.AsOfDate.IsZero() {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			subject.Investor, subject.Sheet, s.AsOfDate.Format("2006-01-02"),
			storeDecimal(s.BeginningBalance), storeDecimal(s.EndingBalance),
			storeDecimal(s.UnrealizedGainLoss), storeDecimal(s.ManagementFees),
			storeDecimal(s.OperatingExpenses), s.Source)
		if err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", s.AsOfDate.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot upsert: %w", err)
	}

	slog.InfoContext(ctx, "Period snapshots stored",
		"investor", subject.Investor,
		"sheet", subject.Sheet,
		"count", len(snapshots))
	return nil
}

// UpsertBreakdown replaces the stored allocation values for the
// breakdown's month with the given items.
func (r *SQLiteRepository) UpsertBreakdown(ctx context.Context, subject core.Subject, breakdown core.AllocationBreakdown) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	month := breakdown.Month.String()
	_, err = tx.ExecContext(ctx, `
		DELETE FROM allocation_values
		WHERE investor = ? AND sheet = ? AND period_month = ?`,
		subject.Investor, subject.Sheet, month)
	if err != nil {
		return fmt.Errorf("clear allocation values: %w", err)
	}

	for _, item := range breakdown.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO allocation_values (investor, sheet, period_month, name, value, color_hint)
			VALUES (?, ?, ?, ?, ?, ?)`,
			subject.Investor, subject.Sheet, month, item.Name, item.Value.String(), item.ColorHint)
		if err != nil {
			return fmt.Errorf("insert allocation value %q: %w", item.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocation upsert: %w", err)
	}

	slog.InfoContext(ctx, "Allocation breakdown stored",
		"investor", subject.Investor,
		"sheet", subject.Sheet,
		"month", month,
		"items", len(breakdown.Items))
	return nil
}

// LatestMonth returns the most recent snapshot month stored for a subject,
// or the zero MonthKey when nothing is stored yet.
func (r *SQLiteRepository) LatestMonth(ctx context.Context, subject core.Subject) (core.MonthKey, error) {
	var asOf sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(as_of_date)
		FROM period_snapshots
		WHERE investor = ? AND sheet = ?`,
		subject.Investor, subject.Sheet).Scan(&asOf)
	if err != nil {
		return core.MonthKey{}, fmt.Errorf("query latest snapshot: %w", err)
	}
	if !asOf.Valid || asOf.String == "" {
		return core.MonthKey{}, nil
	}
	asOfDate, err := time.Parse("2006-01-02", asOf.String)
	if err != nil {
		return core.MonthKey{}, fmt.Errorf("parse as_of_date %q: %w", asOf.String, err)
	}
	return core.MonthKeyOf(asOfDate), nil
}

func scanDecimal(v sql.NullString) decimal.NullDecimal {
	if !v.Valid || v.String == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func storeDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
