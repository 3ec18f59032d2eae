// Package retailer holds the static per-retailer configuration: listing
// URLs, pagination behavior, extraction tower preference, anti-bot severity,
// URL normalization rules, and product-code extraction.
//
// The registry is immutable for the lifetime of the process. An optional
// retailers.json file may override listing URLs for a deployment without a
// rebuild; structural fields (pagination mode, code patterns) are code-only.
package retailer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// PaginationMode describes how a retailer's listing pages advance.
type PaginationMode string

const (
	PaginationPaged          PaginationMode = "paged"
	PaginationInfiniteScroll PaginationMode = "infinite_scroll"
	PaginationHybridLoadMore PaginationMode = "hybrid_load_more"
	PaginationOffset         PaginationMode = "offset"
)

// Tower selects the preferred extraction path for a retailer.
type Tower string

const (
	TowerMarkdown Tower = "markdown"
	TowerBrowser  Tower = "browser"
)

// AntiBotSeverity drives pacing, token-bucket sizing, and challenge handling.
type AntiBotSeverity string

const (
	SeverityLow      AntiBotSeverity = "low"
	SeverityMedium   AntiBotSeverity = "medium"
	SeverityHigh     AntiBotSeverity = "high"
	SeverityVeryHigh AntiBotSeverity = "very_high"
)

// WaitKind is the additional readiness condition after DOM-ready.
type WaitKind string

const (
	WaitSelector    WaitKind = "selector"
	WaitNetworkIdle WaitKind = "network_idle"
	WaitFixedDelay  WaitKind = "fixed_delay"
)

// ErrUnknownRetailer is returned when a retailer ID is not registered.
var ErrUnknownRetailer = errors.New("unknown retailer")

// Config is the static configuration for one retailer. Immutable during a run.
type Config struct {
	ID string

	// Category → listing URL, and optionally category → newest-first URL.
	CategoryURLs   map[string]string
	NewestSortURLs map[string]string
	HasNewestSort  bool

	Pagination   PaginationMode
	ItemsPerPage int // meaningful for paged/offset modes
	MaxPages     int

	PreferredTower Tower
	AntiBot        AntiBotSeverity

	// URL normalization: query keys stripped before identity comparison.
	// DropAllQuery drops the entire query string instead.
	StripQueryKeys []string
	DropAllQuery   bool

	// ProductCodePattern extracts the product code from the URL path.
	// The first capture group is the code.
	ProductCodePattern *regexp.Regexp

	// CDNHostSubstring must appear in extracted image URLs for validation.
	CDNHostSubstring string

	// Markdown tower tuning.
	TokenThreshold int      // markdown slice threshold, in tokens
	GridMarkers    []string // tokens that locate the product grid in markdown

	// Browser tower tuning.
	Wait         WaitKind
	WaitSelector string
	WaitDelay    time.Duration
}

// SortURL returns the newest-first listing URL for a category when the
// retailer supports it, falling back to the plain category URL.
func (c *Config) SortURL(category string) (string, bool) {
	if c.HasNewestSort {
		if u, ok := c.NewestSortURLs[category]; ok {
			return u, true
		}
	}
	return c.CategoryURLs[category], false
}

// CategoryURL returns the plain listing URL for a category.
func (c *Config) CategoryURL(category string) (string, error) {
	u, ok := c.CategoryURLs[category]
	if !ok {
		return "", fmt.Errorf("retailer %s has no category %q", c.ID, category)
	}
	return u, nil
}

// ExtractProductCode pulls the product code out of a product URL path.
// Returns "" when the retailer has no pattern or the URL does not match.
func (c *Config) ExtractProductCode(rawURL string) string {
	if c.ProductCodePattern == nil {
		return ""
	}
	m := c.ProductCodePattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// PageDelay returns the jitter bounds for per-page pacing.
func (c *Config) PageDelay() (min, max time.Duration) {
	switch c.AntiBot {
	case SeverityLow:
		return 800 * time.Millisecond, 1500 * time.Millisecond
	case SeverityMedium:
		return 1500 * time.Millisecond, 3 * time.Second
	case SeverityHigh:
		return 3 * time.Second, 6 * time.Second
	default: // very high
		return 6 * time.Second, 12 * time.Second
	}
}

// Registry is the static retailer table, keyed by ID.
type Registry struct {
	configs map[string]*Config
}

// NewRegistry builds a registry from the built-in table.
func NewRegistry() *Registry {
	r := &Registry{configs: make(map[string]*Config)}
	for _, c := range builtins() {
		r.configs[c.ID] = c
	}
	return r
}

// Get returns the configuration for a retailer ID.
func (r *Registry) Get(id string) (*Config, error) {
	c, ok := r.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRetailer, id)
	}
	return c, nil
}

// IDs returns all registered retailer IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Categories returns the category names configured for a retailer.
func (r *Registry) Categories(id string) ([]string, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	cats := make([]string, 0, len(c.CategoryURLs))
	for cat := range c.CategoryURLs {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats, nil
}

// OverrideCategoryURLs replaces listing URLs for a retailer from the
// optional retailers.json file. Unknown retailers are ignored.
func (r *Registry) OverrideCategoryURLs(id string, categoryURLs, sortURLs map[string]string) {
	c, ok := r.configs[id]
	if !ok {
		return
	}
	if len(categoryURLs) > 0 {
		c.CategoryURLs = categoryURLs
	}
	if len(sortURLs) > 0 {
		c.NewestSortURLs = sortURLs
	}
}

func builtins() []*Config {
	return []*Config{
		{
			ID: "revolve",
			CategoryURLs: map[string]string{
				"dresses": "https://www.revolve.com/dresses/br/a8e981/",
				"tops":    "https://www.revolve.com/tops/br/12ae32/",
			},
			NewestSortURLs: map[string]string{
				"dresses": "https://www.revolve.com/dresses/br/a8e981/?sortBy=newest",
				"tops":    "https://www.revolve.com/tops/br/12ae32/?sortBy=newest",
			},
			HasNewestSort:      true,
			Pagination:         PaginationPaged,
			ItemsPerPage:       100,
			MaxPages:           40,
			PreferredTower:     TowerMarkdown,
			AntiBot:            SeverityMedium,
			StripQueryKeys:     []string{"navsrc", "origin", "sort", "sortby", "currentpricerange"},
			ProductCodePattern: regexp.MustCompile(`/dp/([A-Z]{4}-[A-Z]{2}\d+)/`),
			CDNHostSubstring:   "revolveassets.com",
			TokenThreshold:     15000,
			GridMarkers:        []string{"plp-container", "product-grid", "products-grid"},
			Wait:               WaitSelector,
			WaitSelector:       "ul.products-grid",
		},
		{
			ID: "nordstrom",
			CategoryURLs: map[string]string{
				"dresses": "https://www.nordstrom.com/browse/women/clothing/dresses",
				"tops":    "https://www.nordstrom.com/browse/women/clothing/tops-tees",
			},
			NewestSortURLs: map[string]string{
				"dresses": "https://www.nordstrom.com/browse/women/clothing/dresses?sort=Newest",
				"tops":    "https://www.nordstrom.com/browse/women/clothing/tops-tees?sort=Newest",
			},
			HasNewestSort:      true,
			Pagination:         PaginationPaged,
			ItemsPerPage:       72,
			MaxPages:           30,
			PreferredTower:     TowerBrowser,
			AntiBot:            SeverityVeryHigh,
			DropAllQuery:       true,
			ProductCodePattern: regexp.MustCompile(`/s/[a-z0-9-]+/(\d+)`),
			CDNHostSubstring:   "n.nordstrommedia.com",
			TokenThreshold:     25000,
			GridMarkers:        []string{"product-results", "browse-grid"},
			Wait:               WaitSelector,
			WaitSelector:       `article[class*="ProductModule"]`,
		},
		{
			ID: "aritzia",
			CategoryURLs: map[string]string{
				"dresses": "https://www.aritzia.com/us/en/clothing/dresses",
				"tops":    "https://www.aritzia.com/us/en/clothing/blouses",
			},
			HasNewestSort:      false,
			Pagination:         PaginationInfiniteScroll,
			MaxPages:           1, // single-page: full catalog renders on scroll
			PreferredTower:     TowerBrowser,
			AntiBot:            SeverityHigh,
			StripQueryKeys:     []string{"utm_source", "utm_medium", "utm_campaign", "color"},
			ProductCodePattern: regexp.MustCompile(`/product/[a-z0-9-]+/(\d+)\.html`),
			CDNHostSubstring:   "media.aritzia.com",
			TokenThreshold:     25000,
			GridMarkers:        []string{"product-listing", "ar-product-grid"},
			Wait:               WaitFixedDelay,
			WaitDelay:          4 * time.Second,
		},
		{
			ID: "freepeople",
			CategoryURLs: map[string]string{
				"dresses": "https://www.freepeople.com/dresses/",
				"tops":    "https://www.freepeople.com/shirts-tops/",
			},
			NewestSortURLs: map[string]string{
				"dresses": "https://www.freepeople.com/dresses/?sort=tile.product.newestColorDate",
				"tops":    "https://www.freepeople.com/shirts-tops/?sort=tile.product.newestColorDate",
			},
			HasNewestSort:      true,
			Pagination:         PaginationOffset,
			ItemsPerPage:       96,
			MaxPages:           25,
			PreferredTower:     TowerMarkdown,
			AntiBot:            SeverityMedium,
			StripQueryKeys:     []string{"color", "quantity", "size", "type", "utm_source", "utm_medium", "utm_campaign"},
			ProductCodePattern: regexp.MustCompile(`/shop/([a-z0-9-]+)`),
			CDNHostSubstring:   "images.urbndata.com",
			TokenThreshold:     25000,
			GridMarkers:        []string{"c-pwa-tile-grid", "product-tile"},
			Wait:               WaitNetworkIdle,
		},
		{
			ID: "reformation",
			CategoryURLs: map[string]string{
				"dresses": "https://www.thereformation.com/dresses",
				"tops":    "https://www.thereformation.com/tops",
			},
			NewestSortURLs: map[string]string{
				"dresses": "https://www.thereformation.com/dresses?srule=newest",
				"tops":    "https://www.thereformation.com/tops?srule=newest",
			},
			HasNewestSort:      true,
			Pagination:         PaginationHybridLoadMore,
			ItemsPerPage:       60,
			MaxPages:           20,
			PreferredTower:     TowerBrowser,
			AntiBot:            SeverityMedium,
			StripQueryKeys:     []string{"srule", "start", "sz", "utm_source", "utm_medium", "utm_campaign"},
			ProductCodePattern: regexp.MustCompile(`/products/[a-z0-9-]+-(\d{7,})`),
			CDNHostSubstring:   "media.thereformation.com",
			TokenThreshold:     25000,
			GridMarkers:        []string{"product-grid", "plp__products"},
			Wait:               WaitSelector,
			WaitSelector:       ".product-grid",
		},
	}
}
