package markdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/fetch"
	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

const (
	singleTokenCeiling  = 2048
	catalogTokenCeiling = 8192
	singleLLMTimeout    = 60 * time.Second
	// Catalog prompts routinely take minutes on large pages.
	catalogLLMTimeout = 10 * time.Minute
)

const catalogPrompt = `You are extracting products from a retail catalog listing page converted to markdown.
Output one line per product, nothing else. Each line must start with PRODUCT| followed by
KEY=value segments separated by |. Keys: URL, TITLE, PRICE, IMAGE, SALE.
URL must be the absolute product page link. PRICE is the current price. SALE is true or false.
Skip navigation links, recommendations, and recently-viewed carousels.

Markdown:
`

const singlePrompt = `You are extracting one clothing product from a product detail page converted to markdown.
Reply with a single JSON object and nothing else. Keys: title, brand, price, original_price,
currency, on_sale, stock_state, category, image_urls, description, colors, sizes, material,
care_notes, neckline, sleeve_length. Use null for unknown fields. price and original_price
are numbers. stock_state is one of in_stock, low, out.

Markdown:
`

// Extractor is the markdown tower.
type Extractor struct {
	fetcher *Fetcher
	cascade *llm.Cascade
	probe   *fetch.Client
	logger  *slog.Logger
}

// NewExtractor wires the markdown tower.
func NewExtractor(fetcher *Fetcher, cascade *llm.Cascade, probe *fetch.Client, logger *slog.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		cascade: cascade,
		probe:   probe,
		logger:  logger.With("component", "markdown"),
	}
}

// ExtractCatalog extracts product summaries from one listing page.
func (e *Extractor) ExtractCatalog(ctx context.Context, cfg *retailer.Config, category, pageURL string) *models.ExtractionResult {
	start := time.Now()
	result := &models.ExtractionResult{Method: models.MethodMarkdown}

	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return e.failed(result, start, fmt.Errorf("fetch %s: %w", pageURL, err))
	}

	sliced := SliceForTokens(body, cfg.TokenThreshold, cfg.GridMarkers)
	reply, err := e.cascade.Complete(ctx, catalogPrompt+sliced, llm.CallOptions{
		MaxTokens: catalogTokenCeiling,
		Timeout:   catalogLLMTimeout,
	})
	if err != nil {
		return e.failed(result, start, fmt.Errorf("catalog cascade: %w", err))
	}

	products := ParseCatalogReply(reply.Content, cfg, category)
	if len(products) == 0 {
		result.Warnings = append(result.Warnings, "no products parsed from reply")
	}
	result.Success = true
	result.Products = products
	result.Elapsed = time.Since(start)
	return result
}

// ExtractProduct extracts one product detail page. The delisting probe runs
// first so gone products skip the expensive cascade entirely.
func (e *Extractor) ExtractProduct(ctx context.Context, cfg *retailer.Config, url string) *models.ExtractionResult {
	start := time.Now()
	result := &models.ExtractionResult{Method: models.MethodMarkdown}

	if gone, err := e.probe.ProbeDelisted(ctx, url); err == nil && gone {
		result.Delisted = true
		result.Elapsed = time.Since(start)
		return result
	}

	body, err := e.fetcher.Fetch(ctx, url)
	if errors.Is(err, ErrHomepageRedirect) {
		result.Delisted = true
		result.Elapsed = time.Since(start)
		return result
	}
	if err != nil {
		result.ShouldFallback = true
		return e.failed(result, start, fmt.Errorf("fetch %s: %w", url, err))
	}

	sliced := SliceForTokens(body, cfg.TokenThreshold, cfg.GridMarkers)
	reply, err := e.cascade.Complete(ctx, singlePrompt+sliced, llm.CallOptions{
		MaxTokens: singleTokenCeiling,
		Timeout:   singleLLMTimeout,
	})
	if err != nil {
		result.ShouldFallback = true
		return e.failed(result, start, fmt.Errorf("single-product cascade: %w", err))
	}

	detail, err := ParseProductReply(reply.Content, cfg, url)
	if err != nil {
		result.ShouldFallback = true
		return e.failed(result, start, fmt.Errorf("parse reply: %w", err))
	}

	if problems := ValidateDetail(detail, cfg); len(problems) > 0 {
		result.ShouldFallback = true
		result.Errors = append(result.Errors, problems...)
		result.Elapsed = time.Since(start)
		e.logger.Warn("single-product validation failed", "url", url, "problems", problems)
		return result
	}

	result.Success = true
	result.Product = detail
	result.Elapsed = time.Since(start)
	return result
}

func (e *Extractor) failed(result *models.ExtractionResult, start time.Time, err error) *models.ExtractionResult {
	result.Errors = append(result.Errors, err.Error())
	result.Elapsed = time.Since(start)
	e.logger.Warn("markdown extraction failed", "error", err)
	return result
}
