package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// PatternRepo persists learned extraction patterns.
type PatternRepo struct {
	db *sql.DB
	q  *writeQueue
}

const patternColumns = `id, retailer, function, element_type, kind, payload,
	success_count, failure_count, confidence, visual_hints, transferred_from,
	created_at, updated_at, last_failed_at`

// Save inserts the pattern or, when one with the same identity exists,
// replaces its counters, confidence and hints.
func (r *PatternRepo) Save(ctx context.Context, p *models.LearnedPattern) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return r.q.do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO learned_patterns (
				retailer, function, element_type, kind, payload, success_count,
				failure_count, confidence, visual_hints, transferred_from,
				created_at, updated_at, last_failed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(retailer, function, element_type, kind, payload) DO UPDATE SET
				success_count = excluded.success_count,
				failure_count = excluded.failure_count,
				confidence = excluded.confidence,
				visual_hints = excluded.visual_hints,
				updated_at = excluded.updated_at,
				last_failed_at = excluded.last_failed_at`,
			p.Retailer, string(p.Function), string(p.ElementType), string(p.Kind),
			p.Payload, p.SuccessCount, p.FailureCount, p.Confidence,
			nullString(p.VisualHints), nullString(p.TransferredFrom),
			p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
			nullTime(p.LastFailedAt))
		return err
	})
}

// ListForElement returns a retailer's patterns for one pipeline stage and
// element type, highest confidence first.
func (r *PatternRepo) ListForElement(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType) ([]*models.LearnedPattern, error) {
	return r.list(ctx, `
		SELECT `+patternColumns+` FROM learned_patterns
		WHERE retailer = ? AND function = ? AND element_type = ?
		ORDER BY confidence DESC, success_count DESC`,
		ret, string(fn), string(et))
}

// ListForRetailer returns every pattern a retailer has accumulated.
func (r *PatternRepo) ListForRetailer(ctx context.Context, ret string) ([]*models.LearnedPattern, error) {
	return r.list(ctx, `
		SELECT `+patternColumns+` FROM learned_patterns
		WHERE retailer = ? ORDER BY function, element_type, confidence DESC`,
		ret)
}

func (r *PatternRepo) list(ctx context.Context, query string, args ...any) ([]*models.LearnedPattern, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPattern(row rowScanner) (*models.LearnedPattern, error) {
	var (
		p                          models.LearnedPattern
		function, elementType, kind string
		hints, from, lastFailed    sql.NullString
		created, updated           string
	)
	err := row.Scan(&p.ID, &p.Retailer, &function, &elementType, &kind, &p.Payload,
		&p.SuccessCount, &p.FailureCount, &p.Confidence, &hints, &from,
		&created, &updated, &lastFailed)
	if err != nil {
		return nil, err
	}
	p.Function = models.PatternFunction(function)
	p.ElementType = models.ElementType(elementType)
	p.Kind = models.PatternKind(kind)
	p.VisualHints = hints.String
	p.TransferredFrom = from.String
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	if lastFailed.Valid {
		t := parseTime(lastFailed.String)
		p.LastFailedAt = &t
	}
	return &p, nil
}
