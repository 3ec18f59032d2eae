// Package crawler walks retailer listing pages in order, classifying each
// crawled product against the active baseline and stopping early once the
// walk is back on known ground.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

const (
	defaultEarlyStop = 3
	// Without a newest-first sort the listing order is arbitrary, so a
	// shallow overlap says little. The raised threshold keeps the walk
	// going deeper before trusting it.
	defaultEarlyStopNoSort = 8
)

// Options tunes the walk. Zero values fall back to the defaults.
type Options struct {
	// EarlyStop is the consecutive-overlap streak that ends a monitoring
	// walk on a newest-first listing.
	EarlyStop int
	// EarlyStopNoSort is the streak required when the retailer has no
	// newest-first sort.
	EarlyStopNoSort int
}

// CatalogSource extracts one listing page. Satisfied by the dispatcher.
type CatalogSource interface {
	ExtractCatalog(ctx context.Context, cfg *retailer.Config, category, pageURL string) *models.ExtractionResult
}

// BaselineSource reads the active baseline snapshot. Satisfied by the
// observation repository.
type BaselineSource interface {
	ListBaseline(ctx context.Context, ret, category string) ([]*models.CatalogObservation, error)
}

// WalkResult is the outcome of one (retailer, category) walk.
type WalkResult struct {
	Products    []models.ProductSummary // crawl order, deduplicated by URL
	PagesWalked int
	StartURL    string
	UsedSort    bool
	// Partial is set when a page failed twice and the walk halted early.
	Partial bool
	Err     error
}

// Crawler drives the page-by-page walk.
type Crawler struct {
	source          CatalogSource
	baselines       BaselineSource
	limiters        *Limiters
	earlyStop       int
	earlyStopNoSort int
	logger          *slog.Logger
}

// New creates a crawler.
func New(source CatalogSource, baselines BaselineSource, limiters *Limiters, opts Options, logger *slog.Logger) *Crawler {
	if opts.EarlyStop <= 0 {
		opts.EarlyStop = defaultEarlyStop
	}
	if opts.EarlyStopNoSort <= 0 {
		opts.EarlyStopNoSort = defaultEarlyStopNoSort
	}
	return &Crawler{
		source:          source,
		baselines:       baselines,
		limiters:        limiters,
		earlyStop:       opts.EarlyStop,
		earlyStopNoSort: opts.EarlyStopNoSort,
		logger:          logger.With("component", "crawler"),
	}
}

// Walk crawls one (retailer, category) pair for the given run type.
//
// Monitoring runs start from the newest-first URL when the retailer has
// one; without it the early-stop threshold is raised. Baseline runs always
// start from the plain category URL and never stop early, since the point
// is a full snapshot.
func (c *Crawler) Walk(ctx context.Context, cfg *retailer.Config, category string, runType models.RunType) *WalkResult {
	result := &WalkResult{}

	startURL, sorted, err := c.resolveStart(cfg, category, runType)
	if err != nil {
		result.Err = err
		return result
	}
	result.StartURL = startURL
	result.UsedSort = sorted
	threshold := c.earlyStop
	if !sorted {
		threshold = c.earlyStopNoSort
	}

	known := c.baselineIndex(ctx, cfg, category)

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	if cfg.Pagination == retailer.PaginationInfiniteScroll {
		// The browser tower scrolls the whole listing on one visit.
		maxPages = 1
	}

	seen := map[string]bool{}
	overlapStreak := 0

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			result.Partial = true
			result.Err = err
			return result
		}

		pageURL, err := retailer.PageURL(cfg, startURL, page)
		if err != nil {
			result.Err = err
			return result
		}

		summaries, err := c.fetchPage(ctx, cfg, category, pageURL)
		if err != nil {
			c.logger.Error("page failed twice, halting walk",
				"retailer", cfg.ID, "category", category, "page", page, "error", err)
			result.Partial = true
			result.Err = err
			return result
		}
		result.PagesWalked++

		if len(summaries) == 0 {
			c.logger.Debug("empty page ends walk", "retailer", cfg.ID, "category", category, "page", page)
			return result
		}

		for _, s := range summaries {
			key := retailer.NormalizeURL(cfg, s.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			s.Position = len(result.Products)
			result.Products = append(result.Products, s)

			if known.contains(cfg, &s) {
				overlapStreak++
			} else {
				overlapStreak = 0
			}
		}

		if runType == models.RunTypeMonitoring && len(known.urls) > 0 && overlapStreak >= threshold {
			c.logger.Info("early stop on baseline overlap",
				"retailer", cfg.ID, "category", category, "page", page, "streak", overlapStreak)
			return result
		}

		if page < maxPages {
			if err := c.pace(ctx, cfg); err != nil {
				result.Partial = true
				result.Err = err
				return result
			}
		}
	}
	return result
}

// resolveStart picks the walk's entry URL and reports whether it is a
// newest-first sorted listing.
func (c *Crawler) resolveStart(cfg *retailer.Config, category string, runType models.RunType) (string, bool, error) {
	if runType == models.RunTypeMonitoring {
		url, sorted := cfg.SortURL(category)
		if url == "" {
			return "", false, fmt.Errorf("crawler: retailer %s has no category %q", cfg.ID, category)
		}
		return url, sorted, nil
	}
	url, err := cfg.CategoryURL(category)
	if err != nil {
		return "", false, fmt.Errorf("crawler: %w", err)
	}
	return url, false, nil
}

// fetchPage extracts one page with a single retry.
func (c *Crawler) fetchPage(ctx context.Context, cfg *retailer.Config, category, pageURL string) ([]models.ProductSummary, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying page", "retailer", cfg.ID, "url", pageURL, "error", lastErr)
			if err := c.pace(ctx, cfg); err != nil {
				return nil, err
			}
		}
		if err := c.limiters.Wait(ctx, cfg); err != nil {
			return nil, err
		}
		result := c.source.ExtractCatalog(ctx, cfg, category, pageURL)
		if result.Success {
			return result.Products, nil
		}
		lastErr = fmt.Errorf("extract %s: %v", pageURL, result.Errors)
	}
	return nil, lastErr
}

// pace sleeps the retailer's jittered inter-page interval.
func (c *Crawler) pace(ctx context.Context, cfg *retailer.Config) error {
	lo, hi := cfg.PageDelay()
	delay := lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// baselineIndex is the active baseline keyed for overlap checks.
type baselineIndex struct {
	urls  map[string]bool
	codes map[string]bool
}

func (c *Crawler) baselineIndex(ctx context.Context, cfg *retailer.Config, category string) *baselineIndex {
	idx := &baselineIndex{urls: map[string]bool{}, codes: map[string]bool{}}
	obs, err := c.baselines.ListBaseline(ctx, cfg.ID, category)
	if err != nil {
		c.logger.Warn("baseline lookup failed, walk will not stop early",
			"retailer", cfg.ID, "category", category, "error", err)
		return idx
	}
	for _, o := range obs {
		idx.urls[retailer.NormalizeURL(cfg, o.URL)] = true
		if o.ProductCode != "" {
			idx.codes[o.ProductCode] = true
		}
	}
	return idx
}

func (i *baselineIndex) contains(cfg *retailer.Config, s *models.ProductSummary) bool {
	if i.urls[retailer.NormalizeURL(cfg, s.URL)] {
		return true
	}
	return s.ProductCode != "" && i.codes[s.ProductCode]
}
