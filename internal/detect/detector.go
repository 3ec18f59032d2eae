// Package detect classifies crawled product summaries against everything
// the system already knows: the products store, the active baseline, and
// near-duplicate titles at the same price point.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/store"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

const (
	newThreshold         = 0.85
	reviewThreshold      = 0.70
	noMatchNewConfidence = 0.95

	baselineTitleSimilarity = 0.90
	titlePriceSimFloor      = 0.85
	titlePriceCap           = 0.88
	priceTolerance          = 0.01 // absolute, dollars
)

// Method weights. The highest-confidence match wins; ties go to the
// higher-weight method because evaluation runs in descending weight order.
const (
	weightExactURL      = 1.00
	weightNormalizedURL = 0.95
	weightProductCode   = 0.93
	weightFuzzyDup      = 0.92
	weightBaseline      = 0.90
	weightImageID       = 0.82
)

// Report is the outcome of one batched detection pass.
type Report struct {
	New          []models.MatchResult
	Existing     []models.MatchResult
	ManualReview []models.MatchResult
	Histogram    map[string]int // confidence decile, "0.9" holds [0.9,1.0]
	Elapsed      time.Duration
}

// Detector runs change detection over crawled summaries.
type Detector struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a detector over the store.
func New(st *store.Store, logger *slog.Logger) *Detector {
	return &Detector{store: st, logger: logger.With("component", "detect")}
}

// Process classifies the summaries in crawl order and commits the outcome:
// new and review-flagged products become pending-review observations,
// recognized products get their last-seen timestamp refreshed.
func (d *Detector) Process(ctx context.Context, cfg *retailer.Config, category, runID string, summaries []models.ProductSummary) (*Report, error) {
	start := time.Now()
	report := &Report{Histogram: map[string]int{}}

	baseline, err := d.store.Observations.ListBaseline(ctx, cfg.ID, category)
	if err != nil {
		return nil, fmt.Errorf("detect: load baseline: %w", err)
	}

	now := time.Now().UTC()
	var pending []*models.CatalogObservation

	for _, s := range summaries {
		mr := d.match(ctx, cfg, baseline, s)
		report.Histogram[decile(mr.Confidence)]++

		switch mr.Classification {
		case models.ClassExisting:
			report.Existing = append(report.Existing, mr)
			if mr.ExistingProductID != 0 {
				if err := d.store.Products.TouchLastSeen(ctx, mr.ExistingProductID, now); err != nil {
					d.logger.Warn("last-seen refresh failed", "product_id", mr.ExistingProductID, "error", err)
				}
			}
			continue
		case models.ClassManualReview:
			report.New = append(report.New, mr)
			report.ManualReview = append(report.ManualReview, mr)
		default:
			report.New = append(report.New, mr)
		}

		pending = append(pending, &models.CatalogObservation{
			ID:             ulid.Make().String(),
			Retailer:       s.Retailer,
			Category:       s.Category,
			ProductCode:    s.ProductCode,
			URL:            s.URL,
			Title:          s.Title,
			Price:          s.Price,
			ImageURL:       s.ImageURL,
			OnSale:         s.OnSale,
			Lifecycle:      models.LifecyclePendingReview,
			Confidence:     mr.Confidence,
			DiscoveredDate: now.Format("2006-01-02"),
			RunID:          runID,
		})
	}

	if len(pending) > 0 {
		if err := d.store.Observations.AppendBatch(ctx, pending); err != nil {
			return nil, fmt.Errorf("detect: persist pending observations: %w", err)
		}
	}

	report.Elapsed = time.Since(start)
	d.logger.Info("detection pass complete",
		"retailer", cfg.ID, "category", category,
		"new", len(report.New), "existing", len(report.Existing),
		"review", len(report.ManualReview), "elapsed", report.Elapsed)
	return report, nil
}

type candidate struct {
	confidence float64
	method     models.MatchMethod
	productID  int64
}

// match evaluates every matching method and classifies on the winner.
func (d *Detector) match(ctx context.Context, cfg *retailer.Config, baseline []*models.CatalogObservation, s models.ProductSummary) models.MatchResult {
	var best candidate

	consider := func(c candidate) {
		if c.confidence > best.confidence {
			best = c
		}
	}

	if p := d.lookup(s, "exact url", func() (*models.Product, error) {
		return d.store.Products.FindByExactURL(ctx, cfg.ID, s.URL)
	}); p != nil {
		consider(candidate{weightExactURL, models.MatchExactURL, p.ID})
	}

	normalized := retailer.NormalizeURL(cfg, s.URL)
	if p := d.lookup(s, "normalized url", func() (*models.Product, error) {
		return d.store.Products.FindByNormalizedURL(ctx, cfg.ID, normalized)
	}); p != nil {
		consider(candidate{weightNormalizedURL, models.MatchNormalizedURL, p.ID})
	}

	if s.ProductCode != "" {
		if p := d.lookup(s, "product code", func() (*models.Product, error) {
			return d.store.Products.FindByCode(ctx, cfg.ID, s.ProductCode)
		}); p != nil {
			consider(candidate{weightProductCode, models.MatchProductCode, p.ID})
		}
	}

	if p := d.lookup(s, "fuzzy duplicate", func() (*models.Product, error) {
		return findFuzzyDuplicate(ctx, d.store.Products, cfg.ID, s.Title, s.Price)
	}); p != nil {
		consider(candidate{weightFuzzyDup, models.MatchFuzzyDup, p.ID})
	}

	if matchesBaseline(cfg, baseline, s) {
		consider(candidate{weightBaseline, models.MatchBaseline, 0})
	}

	if conf, id := d.titlePriceMatch(ctx, cfg, s); conf > 0 {
		consider(candidate{conf, models.MatchTitlePrice, id})
	}

	if id := d.imageIDMatch(ctx, cfg, s); id != 0 {
		consider(candidate{weightImageID, models.MatchImageID, id})
	}

	return classify(s, best)
}

func classify(s models.ProductSummary, best candidate) models.MatchResult {
	if best.method == "" {
		return models.MatchResult{
			Summary:        s,
			Classification: models.ClassNew,
			Method:         models.MatchNone,
			Confidence:     noMatchNewConfidence,
		}
	}
	mr := models.MatchResult{
		Summary:           s,
		Method:            best.method,
		Confidence:        best.confidence,
		ExistingProductID: best.productID,
	}
	switch {
	case best.confidence > newThreshold:
		mr.Classification = models.ClassExisting
	case best.confidence <= reviewThreshold:
		mr.Classification = models.ClassManualReview
	default:
		mr.Classification = models.ClassNew
	}
	return mr
}

// lookup runs one repo query, treating not-found as a miss and anything
// else as a logged soft failure.
func (d *Detector) lookup(s models.ProductSummary, what string, fn func() (*models.Product, error)) *models.Product {
	p, err := fn()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Warn("match lookup failed", "method", what, "url", s.URL, "error", err)
		}
		return nil
	}
	return p
}

func matchesBaseline(cfg *retailer.Config, baseline []*models.CatalogObservation, s models.ProductSummary) bool {
	normalized := retailer.NormalizeURL(cfg, s.URL)
	for _, o := range baseline {
		if retailer.NormalizeURL(cfg, o.URL) == normalized {
			return true
		}
		if s.Title != "" && textutil.Similarity(s.Title, o.Title) >= baselineTitleSimilarity {
			return true
		}
	}
	return false
}

// titlePriceMatch awards 0.80 + (similarity - 0.85) * 0.8, capped at 0.88,
// for a near-identical title at the same price.
func (d *Detector) titlePriceMatch(ctx context.Context, cfg *retailer.Config, s models.ProductSummary) (float64, int64) {
	if s.Title == "" || s.Price <= 0 {
		return 0, 0
	}
	candidates, err := d.store.Products.CandidatesByPrice(ctx, cfg.ID, s.Price)
	if err != nil {
		d.logger.Warn("price candidate lookup failed", "url", s.URL, "error", err)
		return 0, 0
	}

	var bestConf float64
	var bestID int64
	for _, p := range candidates {
		if math.Abs(p.PriceValue-s.Price) > priceTolerance {
			continue
		}
		sim := textutil.Similarity(s.Title, p.Title)
		if sim <= titlePriceSimFloor {
			continue
		}
		conf := math.Min(titlePriceCap, 0.80+(sim-titlePriceSimFloor)*0.8)
		if conf > bestConf {
			bestConf = conf
			bestID = p.ID
		}
	}
	return bestConf, bestID
}

// imageIDMatch compares the image filename token against stored image URLs.
// Candidates come from the price bucket so the comparison stays bounded.
func (d *Detector) imageIDMatch(ctx context.Context, cfg *retailer.Config, s models.ProductSummary) int64 {
	token := imageToken(s.ImageURL)
	if token == "" || s.Price <= 0 {
		return 0
	}
	candidates, err := d.store.Products.CandidatesByPrice(ctx, cfg.ID, s.Price)
	if err != nil {
		return 0
	}
	for _, p := range candidates {
		for _, img := range p.ImageURLs {
			if imageToken(img) == token {
				return p.ID
			}
		}
	}
	return 0
}

// imageToken is the filename stem of an image URL, the part CDNs keep
// stable across size and format variants.
func imageToken(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	if base == "." || base == "/" {
		return ""
	}
	return strings.ToLower(base)
}

func decile(conf float64) string {
	d := math.Floor(conf*10) / 10
	if d >= 1.0 {
		d = 0.9
	}
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1f", d)
}
