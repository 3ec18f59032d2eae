package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/database"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, testLogger()))
	s := store.New(db)
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s
}

func seedObservation(t *testing.T, s *store.Store, lc models.Lifecycle) *models.CatalogObservation {
	t.Helper()
	o := &models.CatalogObservation{
		ID:             ulid.Make().String(),
		Retailer:       "revolve",
		Category:       "dresses",
		URL:            "https://www.revolve.com/dresses/dp/LOVF-WD" + ulid.Make().String()[:6] + "/",
		Title:          "Wrap Dress",
		Price:          128,
		Lifecycle:      lc,
		Confidence:     0.95,
		DiscoveredDate: "2026-08-20",
	}
	require.NoError(t, s.Observations.AppendBatch(context.Background(), []*models.CatalogObservation{o}))
	return o
}

func TestExportApprovedWritesBatchAndPromotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	approved := seedObservation(t, s, models.LifecycleApproved)
	pending := seedObservation(t, s, models.LifecyclePendingReview)

	path := filepath.Join(t.TempDir(), "weekly_export.json")
	n, err := ExportApproved(ctx, s, path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var batch BatchFile
	require.NoError(t, json.Unmarshal(data, &batch))

	assert.Equal(t, "weekly_export", batch.BatchName)
	assert.Equal(t, "catalog_monitoring", batch.Source)
	require.Len(t, batch.URLs, 1)
	assert.Equal(t, approved.URL, batch.URLs[0].URL)
	assert.Equal(t, "dresses", batch.URLs[0].CatalogSource)

	// The exported row is promoted; the pending one is untouched.
	promoted, err := s.Observations.ListByLifecycle(ctx, models.LifecyclePromoted, 10)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, approved.ID, promoted[0].ID)

	still, err := s.Observations.ListByLifecycle(ctx, models.LifecyclePendingReview, 10)
	require.NoError(t, err)
	require.Len(t, still, 1)
	assert.Equal(t, pending.ID, still[0].ID)
}

func TestExportApprovedEmptyQueueWritesNothing(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(t.TempDir(), "empty.json")
	n, err := ExportApproved(context.Background(), s, path, testLogger())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
