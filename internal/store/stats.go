package store

import (
	"context"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// Statistics summarizes the catalog for the CLI status output.
type Statistics struct {
	ProductsByRetailer map[string]int
	TotalProducts      int
	PendingReview      int
	ActiveBaselines    int
	CompletedRuns      int
	FailedRuns         int
	LastRunStarted     string
}

// GetStatistics aggregates catalog counts in one pass per table.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{ProductsByRetailer: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT retailer, COUNT(*) FROM products GROUP BY retailer`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ret string
		var n int
		if err := rows.Scan(&ret, &n); err != nil {
			return nil, err
		}
		stats.ProductsByRetailer[ret] = n
		stats.TotalProducts += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_observations WHERE lifecycle = ?`,
		string(models.LifecyclePendingReview)).Scan(&stats.PendingReview); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM baselines WHERE active = 1`).Scan(&stats.ActiveBaselines); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitoring_runs WHERE state = ?`,
		string(models.RunStateCompleted)).Scan(&stats.CompletedRuns); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitoring_runs WHERE state = ?`,
		string(models.RunStateFailed)).Scan(&stats.FailedRuns); err != nil {
		return nil, err
	}

	var last string
	err = s.db.QueryRowContext(ctx,
		`SELECT started_at FROM monitoring_runs ORDER BY started_at DESC LIMIT 1`).Scan(&last)
	if err == nil {
		stats.LastRunStarted = last
	}

	return stats, nil
}
