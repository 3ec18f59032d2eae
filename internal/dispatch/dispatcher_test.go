package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

type fakeTower struct {
	product      *models.ExtractionResult
	catalog      *models.ExtractionResult
	productCalls int
	catalogCalls int
}

func (f *fakeTower) ExtractProduct(_ context.Context, _ *retailer.Config, _ string) *models.ExtractionResult {
	f.productCalls++
	return f.product
}

func (f *fakeTower) ExtractCatalog(_ context.Context, _ *retailer.Config, _, _ string) *models.ExtractionResult {
	f.catalogCalls++
	return f.catalog
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProductRoutesToPreferredTower(t *testing.T) {
	md := &fakeTower{product: &models.ExtractionResult{Success: true, Method: models.MethodMarkdown}}
	br := &fakeTower{product: &models.ExtractionResult{Success: true, Method: models.MethodBrowser}}
	d := New(md, br, testLogger())

	got := d.ExtractProduct(context.Background(), &retailer.Config{ID: "a", PreferredTower: retailer.TowerMarkdown}, "u")
	assert.Equal(t, models.MethodMarkdown, got.Method)
	assert.Equal(t, 1, md.productCalls)
	assert.Equal(t, 0, br.productCalls)

	got = d.ExtractProduct(context.Background(), &retailer.Config{ID: "b", PreferredTower: retailer.TowerBrowser}, "u")
	assert.Equal(t, models.MethodBrowser, got.Method)
	assert.Equal(t, 1, br.productCalls)
	assert.Equal(t, 1, md.productCalls, "markdown tower is skipped entirely for browser retailers")
}

func TestProductFallsBackWhenMarkdownAsks(t *testing.T) {
	md := &fakeTower{product: &models.ExtractionResult{
		Method:         models.MethodMarkdown,
		Errors:         []string{"validation failed: no image URLs"},
		ShouldFallback: true,
	}}
	br := &fakeTower{product: &models.ExtractionResult{
		Success: true,
		Method:  models.MethodBrowser,
		Product: &models.ProductDetail{Title: "Floral Wrap Dress"},
	}}
	d := New(md, br, testLogger())

	got := d.ExtractProduct(context.Background(), &retailer.Config{ID: "a", PreferredTower: retailer.TowerMarkdown}, "u")
	require.True(t, got.Success)
	assert.Equal(t, models.MethodBrowser, got.Method)
	assert.Equal(t, 1, md.productCalls)
	assert.Equal(t, 1, br.productCalls)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "markdown tower")
}

func TestProductDoesNotFallBackOnDelisted(t *testing.T) {
	md := &fakeTower{product: &models.ExtractionResult{Method: models.MethodMarkdown, Delisted: true}}
	br := &fakeTower{}
	d := New(md, br, testLogger())

	got := d.ExtractProduct(context.Background(), &retailer.Config{ID: "a", PreferredTower: retailer.TowerMarkdown}, "u")
	assert.True(t, got.Delisted)
	assert.Equal(t, 0, br.productCalls)
}

func TestCatalogNeverFallsBack(t *testing.T) {
	md := &fakeTower{catalog: &models.ExtractionResult{
		Method: models.MethodMarkdown,
		Errors: []string{"catalog cascade: empty response"},
	}}
	br := &fakeTower{}
	d := New(md, br, testLogger())

	got := d.ExtractCatalog(context.Background(), &retailer.Config{ID: "a", PreferredTower: retailer.TowerMarkdown}, "dresses", "u")
	assert.False(t, got.Success)
	assert.Equal(t, 0, br.catalogCalls)
}
