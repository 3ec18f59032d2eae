package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/database"
	"github.com/wearwatch/catalog-monitor/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, database.Migrate(db, logger))

	s := New(db)
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s
}

func testProduct(ret, url string) *models.Product {
	return &models.Product{
		Retailer:      ret,
		ProductCode:   "RV-1001",
		URL:           url,
		NormalizedURL: url,
		Title:         "Silk Wrap Dress",
		Brand:         "Lovers and Friends",
		CurrentPrice:  168,
		PriceValue:    168,
		Stock:         models.StockInStock,
		Category:      "dresses",
		ImageURLs:     []string{"https://cdn.example.com/a.jpg"},
	}
}

func TestProductUpsertPreservesFirstSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProduct("revolve", "https://www.revolve.com/dp/RV-1001/")
	require.NoError(t, s.Products.Upsert(ctx, p))
	require.NotZero(t, p.ID)
	firstSeen := p.FirstSeenAt

	updated := testProduct("revolve", "https://www.revolve.com/dp/RV-1001/")
	updated.CurrentPrice = 120
	updated.OnSale = true
	updated.FirstSeenAt = firstSeen
	require.NoError(t, s.Products.Upsert(ctx, updated))

	got, err := s.Products.FindByExactURL(ctx, "revolve", p.URL)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 120.0, got.CurrentPrice)
	assert.True(t, got.OnSale)
	assert.Equal(t, firstSeen.Format(time.RFC3339), got.FirstSeenAt.Format(time.RFC3339))
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, got.ImageURLs)
}

func TestTouchLastSeenKeepsTimestampOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProduct("revolve", "https://www.revolve.com/dp/RV-1001/")
	require.NoError(t, s.Products.Upsert(ctx, p))

	seen := time.Now().UTC().Add(2 * time.Hour)
	require.NoError(t, s.Products.TouchLastSeen(ctx, p.ID, seen))

	got, err := s.Products.FindByExactURL(ctx, "revolve", p.URL)
	require.NoError(t, err)
	assert.Equal(t, seen.Format(time.RFC3339), got.LastSeenAt.Format(time.RFC3339))
	assert.False(t, got.FirstSeenAt.After(got.LastSeenAt), "first_seen must not pass last_seen")
	assert.False(t, got.LastSeenAt.After(got.LastUpdatedAt), "last_seen must not pass last_updated")
}

func TestProductLookupsScopedByRetailer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProduct("revolve", "https://www.revolve.com/dp/RV-1001/")
	require.NoError(t, s.Products.Upsert(ctx, p))

	_, err := s.Products.FindByExactURL(ctx, "nordstrom", p.URL)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Products.FindByCode(ctx, "revolve", "RV-1001")
	require.NoError(t, err)
	assert.Equal(t, p.URL, got.URL)

	_, err = s.Products.FindByCode(ctx, "revolve", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCandidatesByPriceIncludesNeighborBuckets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, price := range []float64{167.4, 168.0, 168.6, 250.0} {
		p := testProduct("revolve", fmt.Sprintf("https://www.revolve.com/dp/RV-100%d/", i))
		p.ProductCode = ""
		p.PriceValue = price
		p.CurrentPrice = price
		require.NoError(t, s.Products.Upsert(ctx, p))
	}

	got, err := s.Products.CandidatesByPrice(ctx, "revolve", 168.0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func newObservation(ret, category, url string) *models.CatalogObservation {
	return &models.CatalogObservation{
		ID:             ulid.Make().String(),
		Retailer:       ret,
		Category:       category,
		URL:            url,
		Title:          "Silk Wrap Dress",
		Price:          168,
		Lifecycle:      models.LifecycleBaseline,
		Confidence:     0.95,
		DiscoveredDate: "2026-08-24",
	}
}

func TestRotateBaselineRetiresPriorSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Baseline{
		ID:           ulid.Make().String(),
		Retailer:     "revolve",
		Category:     "dresses",
		CapturedDate: "2026-08-01",
		PagesWalked:  12,
	}
	require.NoError(t, s.Observations.RotateBaseline(ctx, first, []*models.CatalogObservation{
		newObservation("revolve", "dresses", "https://www.revolve.com/dp/a/"),
		newObservation("revolve", "dresses", "https://www.revolve.com/dp/b/"),
	}))

	second := &models.Baseline{
		ID:           ulid.Make().String(),
		Retailer:     "revolve",
		Category:     "dresses",
		CapturedDate: "2026-08-24",
		PagesWalked:  14,
	}
	require.NoError(t, s.Observations.RotateBaseline(ctx, second, []*models.CatalogObservation{
		newObservation("revolve", "dresses", "https://www.revolve.com/dp/c/"),
	}))

	active, err := s.Observations.ActiveBaseline(ctx, "revolve", "dresses")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 1, active.ObservationCount)

	obs, err := s.Observations.ListBaseline(ctx, "revolve", "dresses")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "https://www.revolve.com/dp/c/", obs[0].URL)
	assert.Equal(t, second.ID, obs[0].BaselineID)

	// Rotation retires the prior snapshot rather than destroying it: the
	// first baseline's rows survive, still linked to their snapshot.
	all, err := s.Observations.ListByLifecycle(ctx, models.LifecycleBaseline, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	retained := 0
	for _, o := range all {
		if o.BaselineID == first.ID {
			retained++
		}
	}
	assert.Equal(t, 2, retained)
}

func TestLifecycleTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := newObservation("revolve", "dresses", "https://www.revolve.com/dp/new/")
	o.Lifecycle = models.LifecyclePendingReview
	require.NoError(t, s.Observations.Append(ctx, o))

	// Promotion requires approval first.
	err := s.Observations.UpdateLifecycle(ctx, o.ID, models.LifecyclePromoted)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Observations.UpdateLifecycle(ctx, o.ID, models.LifecycleApproved))
	require.NoError(t, s.Observations.UpdateLifecycle(ctx, o.ID, models.LifecyclePromoted))

	// Already promoted, approval is no longer a valid transition.
	err = s.Observations.UpdateLifecycle(ctx, o.ID, models.LifecycleApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Observations.UpdateLifecycle(ctx, o.ID, models.LifecycleBaseline)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.MonitoringRun{
		ID:        ulid.Make().String(),
		Type:      models.RunTypeMonitoring,
		Retailers: []string{"revolve", "aritzia"},
	}
	require.NoError(t, s.Runs.Create(ctx, run))

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, []string{"revolve", "aritzia"}, got.Retailers)

	now := time.Now().UTC()
	run.State = models.RunStateCompleted
	run.ProductsCrawled = 412
	run.NewProducts = 7
	run.CompletedAt = &now
	require.NoError(t, s.Runs.Update(ctx, run))

	got, err = s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, got.State)
	assert.Equal(t, 412, got.ProductsCrawled)
	require.NotNil(t, got.CompletedAt)
}

func TestFailStaleOnlyAffectsOldRunningRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := &models.MonitoringRun{
		ID:        ulid.Make().String(),
		Type:      models.RunTypeMonitoring,
		StartedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, s.Runs.Create(ctx, stale))

	fresh := &models.MonitoringRun{ID: ulid.Make().String(), Type: models.RunTypeMonitoring}
	require.NoError(t, s.Runs.Create(ctx, fresh))

	n, err := s.Runs.FailStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Runs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFailed, got.State)

	got, err = s.Runs.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateRunning, got.State)
}

func TestMarkdownCacheFreshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	url := "https://www.revolve.com/dresses/?page=2"
	require.NoError(t, s.Cache.Put(ctx, url, "# Dresses\n| sku | title |", ""))

	got, err := s.Cache.Get(ctx, url, 72*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, got.Markdown, "Dresses")

	// Entries just written are stale against a zero window.
	_, err = s.Cache.Get(ctx, url, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Cache.Get(ctx, "https://www.revolve.com/other/", 72*time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatternSaveAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := &models.LearnedPattern{
		Retailer:    "nordstrom",
		Function:    models.FunctionCrawler,
		ElementType: models.ElementProductLink,
		Kind:        models.PatternKindSelector,
		Payload:     `a[href*="/s/"]`,
		Confidence:  0.6,
	}
	high := &models.LearnedPattern{
		Retailer:    "nordstrom",
		Function:    models.FunctionCrawler,
		ElementType: models.ElementProductLink,
		Kind:        models.PatternKindSelector,
		Payload:     `article a.product-card`,
		Confidence:  0.85,
	}
	require.NoError(t, s.Patterns.Save(ctx, low))
	require.NoError(t, s.Patterns.Save(ctx, high))

	// Saving again with updated counters replaces, not duplicates.
	high.SuccessCount = 4
	high.Confidence = 0.9
	require.NoError(t, s.Patterns.Save(ctx, high))

	got, err := s.Patterns.ListForElement(ctx, "nordstrom", models.FunctionCrawler, models.ElementProductLink)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, `article a.product-card`, got[0].Payload)
	assert.Equal(t, 4, got[0].SuccessCount)
	assert.Equal(t, 0.9, got[0].Confidence)
}

func TestGetStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Products.Upsert(ctx, testProduct("revolve", "https://www.revolve.com/dp/a/")))
	require.NoError(t, s.Products.Upsert(ctx, testProduct("aritzia", "https://www.aritzia.com/p/b")))

	o := newObservation("revolve", "dresses", "https://www.revolve.com/dp/new/")
	o.Lifecycle = models.LifecyclePendingReview
	require.NoError(t, s.Observations.Append(ctx, o))

	stats, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.ProductsByRetailer["revolve"])
	assert.Equal(t, 1, stats.PendingReview)
}
