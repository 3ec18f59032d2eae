package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// RunRepo persists monitoring run records.
type RunRepo struct {
	db *sql.DB
	q  *writeQueue
}

const runColumns = `id, run_type, retailers, categories, state, products_crawled,
	new_products, queued_for_review, cancelled, error_log, batch_file,
	started_at, completed_at, created_at, updated_at`

// Create records a run in the running state.
func (r *RunRepo) Create(ctx context.Context, run *models.MonitoringRun) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.State == "" {
		run.State = models.RunStateRunning
	}
	return r.q.do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO monitoring_runs (
				id, run_type, retailers, categories, state, products_crawled,
				new_products, queued_for_review, cancelled, error_log, batch_file,
				started_at, completed_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(run.Type), joinList(run.Retailers), joinList(run.Categories),
			string(run.State), run.ProductsCrawled, run.NewProducts,
			run.QueuedForReview, boolInt(run.Cancelled), nullString(run.ErrorLog),
			nullString(run.BatchFile), run.StartedAt.Format(time.RFC3339),
			nullTime(run.CompletedAt), run.CreatedAt.Format(time.RFC3339),
			run.UpdatedAt.Format(time.RFC3339))
		return err
	})
}

// Update rewrites the mutable fields of a run.
func (r *RunRepo) Update(ctx context.Context, run *models.MonitoringRun) error {
	run.UpdatedAt = time.Now().UTC()
	return r.q.do(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			UPDATE monitoring_runs SET
				state = ?, products_crawled = ?, new_products = ?,
				queued_for_review = ?, cancelled = ?, error_log = ?,
				batch_file = ?, completed_at = ?, updated_at = ?
			WHERE id = ?`,
			string(run.State), run.ProductsCrawled, run.NewProducts,
			run.QueuedForReview, boolInt(run.Cancelled), nullString(run.ErrorLog),
			nullString(run.BatchFile), nullTime(run.CompletedAt),
			run.UpdatedAt.Format(time.RFC3339), run.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Get returns a run by id.
func (r *RunRepo) Get(ctx context.Context, id string) (*models.MonitoringRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM monitoring_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FailStale marks runs still in the running state after the cutoff as
// failed. Called at startup so a crashed process does not leave phantom
// in-flight runs behind.
func (r *RunRepo) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	var n int64
	err := r.q.do(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			UPDATE monitoring_runs SET state = ?, error_log = ?, updated_at = ?
			WHERE state = ? AND started_at < ?`,
			string(models.RunStateFailed), "abandoned: process did not complete the run",
			time.Now().UTC().Format(time.RFC3339),
			string(models.RunStateRunning), cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanRun(row rowScanner) (*models.MonitoringRun, error) {
	var (
		run                             models.MonitoringRun
		runType, state                  string
		retailers, categories           sql.NullString
		errorLog, batchFile, completed  sql.NullString
		cancelled                       int
		started, created, updated       string
	)
	err := row.Scan(&run.ID, &runType, &retailers, &categories, &state,
		&run.ProductsCrawled, &run.NewProducts, &run.QueuedForReview,
		&cancelled, &errorLog, &batchFile, &started, &completed,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	run.Type = models.RunType(runType)
	run.State = models.RunState(state)
	run.Retailers = splitList(retailers.String)
	run.Categories = splitList(categories.String)
	run.Cancelled = cancelled != 0
	run.ErrorLog = errorLog.String
	run.BatchFile = batchFile.String
	run.StartedAt = parseTime(started)
	if completed.Valid {
		t := parseTime(completed.String)
		run.CompletedAt = &t
	}
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(updated)
	return &run, nil
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
