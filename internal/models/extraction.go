package models

import "time"

// ExtractionMethod identifies which tower produced a result.
type ExtractionMethod string

const (
	MethodMarkdown ExtractionMethod = "markdown"
	MethodBrowser  ExtractionMethod = "browser"
)

// ProductSummary is a product as seen on a catalog (listing) page.
type ProductSummary struct {
	Retailer    string
	Category    string
	URL         string
	Title       string
	Price       float64
	ProductCode string
	ImageURL    string
	OnSale      bool
	Position    int
	// NeedsReprocess marks DOM-only link records that had no matching
	// vision card during catalog-mode merge.
	NeedsReprocess bool
}

// ProductDetail is the full single-product extraction payload.
type ProductDetail struct {
	Retailer      string
	URL           string
	ProductCode   string
	Title         string
	Brand         string
	Price         float64
	OriginalPrice *float64
	Currency      string
	OnSale        bool
	Stock         StockState
	Category      string
	ImageURLs     []string
	Description   string
	Colors        []string
	Sizes         []string
	Material      string
	CareNotes     string
	Neckline      string
	SleeveLength  string
}

// ExtractionResult is the uniform result shape the dispatcher exposes.
type ExtractionResult struct {
	Success  bool
	Product  *ProductDetail   // single-product mode
	Products []ProductSummary // catalog mode
	Method   ExtractionMethod
	Elapsed  time.Duration
	Warnings []string
	Errors   []string
	Delisted bool
	// ShouldFallback asks the dispatcher to try the browser tower after a
	// markdown-tower validation or extraction failure.
	ShouldFallback bool
}

// Classification is the change detector's verdict for one crawled product.
type Classification string

const (
	ClassNew          Classification = "new"
	ClassExisting     Classification = "existing"
	ClassManualReview Classification = "manual_review"
)

// MatchMethod names the signal that produced a change-detection match.
type MatchMethod string

const (
	MatchExactURL      MatchMethod = "exact_url"
	MatchNormalizedURL MatchMethod = "normalized_url"
	MatchProductCode   MatchMethod = "product_code"
	MatchBaseline      MatchMethod = "baseline"
	MatchTitlePrice    MatchMethod = "title_price"
	MatchImageID       MatchMethod = "image_id"
	MatchFuzzyDup      MatchMethod = "fuzzy_duplicate"
	MatchNone          MatchMethod = "none"
)

// MatchResult is one classified product with its winning signal.
type MatchResult struct {
	Summary           ProductSummary
	Classification    Classification
	Method            MatchMethod
	Confidence        float64
	ExistingProductID int64 // 0 when no products-store match
}
