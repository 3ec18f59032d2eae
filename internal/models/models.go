// Package models contains the persistent entities and shared value types.
package models

import "time"

// RunType identifies what kind of monitoring run is being executed.
type RunType string

const (
	RunTypeBaseline   RunType = "baseline"
	RunTypeMonitoring RunType = "monitoring"
	RunTypeRecheck    RunType = "recheck"
)

// RunState is the end state of a monitoring run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStatePartial   RunState = "partial"
)

// Lifecycle is the review lifecycle of a catalog observation.
type Lifecycle string

const (
	LifecycleBaseline      Lifecycle = "baseline"
	LifecyclePendingReview Lifecycle = "pending_review"
	LifecycleApproved      Lifecycle = "approved"
	LifecycleRejected      Lifecycle = "rejected"
	LifecyclePromoted      Lifecycle = "promoted"
)

// StockState describes product availability as shown on the page.
type StockState string

const (
	StockInStock StockState = "in_stock"
	StockLow     StockState = "low"
	StockOut     StockState = "out"
)

// Product is a durable catalog row, identified by (retailer, product code)
// when a code is extractable, else by normalized URL.
type Product struct {
	ID            int64
	Retailer      string
	ProductCode   string
	URL           string
	NormalizedURL string
	Title         string
	Brand         string
	CurrentPrice  float64
	OriginalPrice *float64
	PriceValue    float64 // currency-normalized numeric value
	OnSale        bool
	Stock         StockState
	Category      string
	ImageURLs     []string
	Description   string
	Neckline      string
	SleeveLength  string
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
	LastUpdatedAt time.Time
}

// CatalogObservation is one product summary as seen on a listing page.
type CatalogObservation struct {
	ID             string // ULID
	Retailer       string
	Category       string
	ProductCode    string
	URL            string
	Title          string
	Price          float64
	ImageURL       string
	OnSale         bool
	Lifecycle      Lifecycle
	Confidence     float64
	DiscoveredDate string // YYYY-MM-DD
	RunID          string
	BaselineID     string // set for baseline-lifecycle rows
	CreatedAt      time.Time
}

// Baseline is the canonical snapshot new-product detection compares against.
// At most one row per (retailer, category) is active at a time.
type Baseline struct {
	ID               string // ULID
	Retailer         string
	Category         string
	CapturedDate     string // YYYY-MM-DD
	PagesWalked      int
	ObservationCount int
	Active           bool
	MetadataJSON     string // crawler configuration used
	CreatedAt        time.Time
}

// MonitoringRun tracks one orchestrator invocation.
type MonitoringRun struct {
	ID               string // ULID
	Type             RunType
	Retailers        []string
	Categories       []string
	State            RunState
	ProductsCrawled  int
	NewProducts      int
	QueuedForReview  int
	Cancelled        bool
	ErrorLog         string
	BatchFile        string
	StartedAt        time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PatternFunction scopes a learned pattern to the pipeline stage that
// learned it. Hints only cross stages through an explicit transfer.
type PatternFunction string

const (
	FunctionCrawler   PatternFunction = "crawler"
	FunctionExtractor PatternFunction = "extractor"
)

// PatternKind distinguishes selector hints from URL-transformation rules
// from placeholder-exclusion rules.
type PatternKind string

const (
	PatternKindSelector    PatternKind = "selector"
	PatternKindURLRule     PatternKind = "url_rule"
	PatternKindPlaceholder PatternKind = "placeholder"
)

// ElementType names the page element a learned pattern locates.
type ElementType string

const (
	ElementProductLink    ElementType = "product_link"
	ElementTitle          ElementType = "title"
	ElementPrice          ElementType = "price"
	ElementImage          ElementType = "image"
	ElementDescription    ElementType = "description"
	ElementPaginationNext ElementType = "pagination_next"
	ElementLoadMoreButton ElementType = "load_more_button"
	ElementAntiBot        ElementType = "anti_bot"
)

// LearnedPattern is a per-retailer extraction hint with outcome counters.
// Counters are incremented in place and never reset.
type LearnedPattern struct {
	ID           int64
	Retailer     string
	Function     PatternFunction
	ElementType  ElementType
	Kind         PatternKind
	Payload      string
	SuccessCount int
	FailureCount int
	Confidence   float64
	VisualHints  string // opaque JSON, optional
	// TransferredFrom names the element type this pattern was seeded from,
	// empty for patterns learned in place.
	TransferredFrom string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastFailedAt    *time.Time
}
