package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// ObservationRepo persists catalog observations and baseline snapshots.
type ObservationRepo struct {
	db *sql.DB
	q  *writeQueue
}

const observationColumns = `id, retailer, category, product_code, url, title, price,
	image_url, on_sale, lifecycle, confidence, discovered_date, run_id, baseline_id, created_at`

// Append inserts a single observation.
func (r *ObservationRepo) Append(ctx context.Context, o *models.CatalogObservation) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return r.q.do(ctx, func() error {
		return insertObservation(ctx, r.db, o)
	})
}

// AppendBatch inserts observations from one page walk in a single transaction,
// preserving crawl order.
func (r *ObservationRepo) AppendBatch(ctx context.Context, obs []*models.CatalogObservation) error {
	if len(obs) == 0 {
		return nil
	}
	return r.q.do(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, o := range obs {
			if o.CreatedAt.IsZero() {
				o.CreatedAt = time.Now().UTC()
			}
			if err := insertObservation(ctx, tx, o); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertObservation(ctx context.Context, db execer, o *models.CatalogObservation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO catalog_observations (
			id, retailer, category, product_code, url, title, price,
			image_url, on_sale, lifecycle, confidence, discovered_date, run_id, baseline_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Retailer, o.Category, nullString(o.ProductCode), o.URL,
		nullString(o.Title), o.Price, nullString(o.ImageURL), boolInt(o.OnSale),
		string(o.Lifecycle), o.Confidence, o.DiscoveredDate, nullString(o.RunID),
		nullString(o.BaselineID), o.CreatedAt.Format(time.RFC3339))
	return err
}

// ListBaseline returns the observations belonging to the active baseline
// snapshot for a retailer/category, in insertion order. Rows from retired
// snapshots stay in the table but are excluded here.
func (r *ObservationRepo) ListBaseline(ctx context.Context, ret, category string) ([]*models.CatalogObservation, error) {
	return r.list(ctx, `
		SELECT `+observationColumns+` FROM catalog_observations
		WHERE retailer = ? AND category = ? AND lifecycle = ?
		  AND baseline_id = (
			SELECT id FROM baselines
			WHERE retailer = ? AND category = ? AND active = 1
			ORDER BY created_at DESC LIMIT 1)
		ORDER BY created_at, id`,
		ret, category, string(models.LifecycleBaseline), ret, category)
}

// ListByLifecycle returns observations in a lifecycle state across all
// retailers, newest first.
func (r *ObservationRepo) ListByLifecycle(ctx context.Context, lc models.Lifecycle, limit int) ([]*models.CatalogObservation, error) {
	return r.list(ctx, `
		SELECT `+observationColumns+` FROM catalog_observations
		WHERE lifecycle = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(lc), limit)
}

// UpdateLifecycle moves one observation to a new lifecycle state. Only the
// transitions pending_review -> approved/rejected and approved -> promoted
// are allowed.
func (r *ObservationRepo) UpdateLifecycle(ctx context.Context, id string, to models.Lifecycle) error {
	var from []string
	switch to {
	case models.LifecycleApproved, models.LifecycleRejected:
		from = []string{string(models.LifecyclePendingReview)}
	case models.LifecyclePromoted:
		from = []string{string(models.LifecycleApproved)}
	default:
		return errors.New("store: lifecycle transition not allowed")
	}
	return r.q.do(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			UPDATE catalog_observations SET lifecycle = ?
			WHERE id = ? AND lifecycle = ?`,
			string(to), id, from[0])
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

// ActiveBaseline returns the active baseline for a retailer/category, or
// ErrNotFound when none has been captured yet.
func (r *ObservationRepo) ActiveBaseline(ctx context.Context, ret, category string) (*models.Baseline, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, retailer, category, captured_date, pages_walked,
		       observation_count, active, metadata_json, created_at
		FROM baselines WHERE retailer = ? AND category = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`,
		ret, category)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// RotateBaseline installs a new baseline in a single transaction: the prior
// active baseline is deactivated and the new snapshot's observations are
// written with the baseline lifecycle, tied to the new snapshot. Rows from
// the superseded snapshot keep their baseline link, so history accumulates
// instead of being destroyed. Readers never see a half-rotated state.
func (r *ObservationRepo) RotateBaseline(ctx context.Context, b *models.Baseline, obs []*models.CatalogObservation) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Active = true
	b.ObservationCount = len(obs)

	return r.q.do(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			UPDATE baselines SET active = 0
			WHERE retailer = ? AND category = ? AND active = 1`,
			b.Retailer, b.Category); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO baselines (
				id, retailer, category, captured_date, pages_walked,
				observation_count, active, metadata_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			b.ID, b.Retailer, b.Category, b.CapturedDate, b.PagesWalked,
			b.ObservationCount, nullString(b.MetadataJSON),
			b.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
		for _, o := range obs {
			o.Lifecycle = models.LifecycleBaseline
			o.BaselineID = b.ID
			if o.CreatedAt.IsZero() {
				o.CreatedAt = time.Now().UTC()
			}
			if err := insertObservation(ctx, tx, o); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (r *ObservationRepo) list(ctx context.Context, query string, args ...any) ([]*models.CatalogObservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CatalogObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanObservation(row rowScanner) (*models.CatalogObservation, error) {
	var (
		o                                     models.CatalogObservation
		code, title, image, runID, baselineID sql.NullString
		onSale                                int
		lifecycle, created                    string
	)
	err := row.Scan(&o.ID, &o.Retailer, &o.Category, &code, &o.URL, &title,
		&o.Price, &image, &onSale, &lifecycle, &o.Confidence,
		&o.DiscoveredDate, &runID, &baselineID, &created)
	if err != nil {
		return nil, err
	}
	o.ProductCode = code.String
	o.Title = title.String
	o.ImageURL = image.String
	o.OnSale = onSale != 0
	o.Lifecycle = models.Lifecycle(lifecycle)
	o.RunID = runID.String
	o.BaselineID = baselineID.String
	o.CreatedAt = parseTime(created)
	return &o, nil
}

func scanBaseline(row rowScanner) (*models.Baseline, error) {
	var (
		b        models.Baseline
		meta     sql.NullString
		active   int
		created  string
	)
	err := row.Scan(&b.ID, &b.Retailer, &b.Category, &b.CapturedDate,
		&b.PagesWalked, &b.ObservationCount, &active, &meta, &created)
	if err != nil {
		return nil, err
	}
	b.Active = active != 0
	b.MetadataJSON = meta.String
	b.CreatedAt = parseTime(created)
	return &b, nil
}
