package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

// BatchEntry is one new product handed to the downstream publisher.
type BatchEntry struct {
	URL            string `json:"url"`
	Retailer       string `json:"retailer"`
	DiscoveredDate string `json:"discovered_date"`
	CatalogSource  string `json:"catalog_source"`
}

// BatchFile is the publisher handoff document.
type BatchFile struct {
	BatchName   string       `json:"batch_name"`
	CreatedDate string       `json:"created_date"`
	TotalURLs   int          `json:"total_urls"`
	Source      string       `json:"source"`
	URLs        []BatchEntry `json:"urls"`
}

const batchSource = "catalog_monitoring"

// writeBatchFile writes the new-product batch for a run. The name is
// deterministic from the run ID so a re-commit of the same run overwrites
// rather than duplicates.
func writeBatchFile(dir string, run *models.MonitoringRun, entries []BatchEntry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: batch dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s", batchSource, run.ID)
	doc := BatchFile{
		BatchName:   name,
		CreatedDate: time.Now().UTC().Format("2006-01-02"),
		TotalURLs:   len(entries),
		Source:      batchSource,
		URLs:        entries,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("orchestrator: marshal batch: %w", err)
	}

	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("orchestrator: write batch: %w", err)
	}
	return path, nil
}

// ExportApproved writes every approved observation to a batch file at the
// given path and marks each one promoted. This is the reviewer-driven
// handoff: observations approved since the last export go to the publisher
// in one document.
func ExportApproved(ctx context.Context, st *store.Store, path string, logger *slog.Logger) (int, error) {
	approved, err := st.Observations.ListByLifecycle(ctx, models.LifecycleApproved, 10000)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: list approved: %w", err)
	}
	if len(approved) == 0 {
		return 0, nil
	}

	entries := make([]BatchEntry, len(approved))
	for i, o := range approved {
		entries[i] = BatchEntry{
			URL:            o.URL,
			Retailer:       o.Retailer,
			DiscoveredDate: o.DiscoveredDate,
			CatalogSource:  o.Category,
		}
	}

	doc := BatchFile{
		BatchName:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CreatedDate: time.Now().UTC().Format("2006-01-02"),
		TotalURLs:   len(entries),
		Source:      batchSource,
		URLs:        entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("orchestrator: marshal batch: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("orchestrator: batch dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("orchestrator: write batch: %w", err)
	}

	for _, o := range approved {
		if err := st.Observations.UpdateLifecycle(ctx, o.ID, models.LifecyclePromoted); err != nil {
			logger.Warn("promote after export failed", "observation_id", o.ID, "error", err)
		}
	}
	logger.Info("approved observations exported", "path", path, "count", len(entries))
	return len(entries), nil
}
