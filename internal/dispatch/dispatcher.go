// Package dispatch routes extraction requests to the markdown or browser
// tower based on the retailer's static preference.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

// Tower is one extraction path. Both towers return the uniform result shape.
type Tower interface {
	ExtractProduct(ctx context.Context, cfg *retailer.Config, url string) *models.ExtractionResult
	ExtractCatalog(ctx context.Context, cfg *retailer.Config, category, pageURL string) *models.ExtractionResult
}

// Dispatcher selects the tower per retailer. Single-product extraction falls
// back from markdown to browser when the markdown tower asks for it; catalog
// extraction uses the preferred tower only, since a listing walk switching
// towers mid-stream would mix two different product orderings.
type Dispatcher struct {
	markdown Tower
	browser  Tower
	logger   *slog.Logger
}

// New creates a dispatcher over the two towers.
func New(markdown, browser Tower, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		markdown: markdown,
		browser:  browser,
		logger:   logger.With("component", "dispatch"),
	}
}

// ExtractProduct extracts one product page.
func (d *Dispatcher) ExtractProduct(ctx context.Context, cfg *retailer.Config, url string) *models.ExtractionResult {
	if cfg.PreferredTower == retailer.TowerBrowser {
		return d.browser.ExtractProduct(ctx, cfg, url)
	}

	result := d.markdown.ExtractProduct(ctx, cfg, url)
	if !result.ShouldFallback || ctx.Err() != nil {
		return result
	}

	d.logger.Info("markdown tower fell back to browser",
		"retailer", cfg.ID, "url", url, "errors", result.Errors)
	fallback := d.browser.ExtractProduct(ctx, cfg, url)
	for _, e := range result.Errors {
		fallback.Warnings = append(fallback.Warnings, fmt.Sprintf("markdown tower: %s", e))
	}
	return fallback
}

// ExtractCatalog extracts one listing page through the preferred tower.
func (d *Dispatcher) ExtractCatalog(ctx context.Context, cfg *retailer.Config, category, pageURL string) *models.ExtractionResult {
	if cfg.PreferredTower == retailer.TowerBrowser {
		return d.browser.ExtractCatalog(ctx, cfg, category, pageURL)
	}
	return d.markdown.ExtractCatalog(ctx, cfg, category, pageURL)
}
