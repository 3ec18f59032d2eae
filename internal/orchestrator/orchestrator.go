// Package orchestrator coordinates monitoring runs: fan-out over (retailer,
// category) pairs, batched change detection, run-state accounting, batch
// file handoff, and notifications.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wearwatch/catalog-monitor/internal/crawler"
	"github.com/wearwatch/catalog-monitor/internal/detect"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/notify"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

const defaultConcurrency = 3

// Walker crawls one (retailer, category) pair. Satisfied by the crawler.
type Walker interface {
	Walk(ctx context.Context, cfg *retailer.Config, category string, runType models.RunType) *crawler.WalkResult
}

// Classifier runs change detection over one pair's crawl. Satisfied by the
// detector.
type Classifier interface {
	Process(ctx context.Context, cfg *retailer.Config, category, runID string, summaries []models.ProductSummary) (*detect.Report, error)
}

// Request describes one run. Empty Retailers means all registered;
// empty Categories means every category the retailer has.
type Request struct {
	Type       models.RunType
	Retailers  []string
	Categories []string
}

// Orchestrator drives runs end to end.
type Orchestrator struct {
	registry    *retailer.Registry
	walker      Walker
	classifier  Classifier
	store       *store.Store
	notifier    notify.Notifier
	batchDir    string
	concurrency int
	grace       time.Duration
	logger      *slog.Logger
}

// Options tune the orchestrator beyond its collaborators.
type Options struct {
	BatchDir    string
	Concurrency int
	Grace       time.Duration
}

// New creates an orchestrator.
func New(reg *retailer.Registry, w Walker, c Classifier, st *store.Store, n notify.Notifier, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	return &Orchestrator{
		registry:    reg,
		walker:      w,
		classifier:  c,
		store:       st,
		notifier:    n,
		batchDir:    opts.BatchDir,
		concurrency: opts.Concurrency,
		grace:       opts.Grace,
		logger:      logger.With("component", "orchestrator"),
	}
}

type pair struct {
	cfg      *retailer.Config
	category string
}

type pairResult struct {
	pair
	walk *crawler.WalkResult
}

// Run executes one monitoring or baseline run. The returned run reflects
// the committed end state; the error is non-nil only for fatal conditions
// that prevented the run from being created at all.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.MonitoringRun, error) {
	pairs, err := o.resolvePairs(req)
	if err != nil {
		o.notifyFatal(ctx, err.Error())
		return nil, err
	}

	run := &models.MonitoringRun{
		ID:         ulid.Make().String(),
		Type:       req.Type,
		Retailers:  retailerIDs(pairs),
		Categories: categoryNames(pairs),
		State:      models.RunStateRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := o.store.Runs.Create(ctx, run); err != nil {
		o.notifyFatal(ctx, fmt.Sprintf("cannot create run: %v", err))
		return nil, fmt.Errorf("orchestrator: create run: %w", err)
	}
	o.logger.Info("run started", "run_id", run.ID, "type", run.Type, "pairs", len(pairs))

	results := o.crawlAll(ctx, run, pairs)
	o.commit(ctx, run, results)

	if err := o.notifier.RunCompleted(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("completion notification failed", "run_id", run.ID, "error", err)
	}
	return run, nil
}

// crawlAll fans the pairs out under the concurrency cap. Results come back
// in pair order regardless of completion order, so the later commit pass
// processes discoveries in crawl order.
func (o *Orchestrator) crawlAll(ctx context.Context, run *models.MonitoringRun, pairs []pair) []pairResult {
	walkCtx, cancel := o.withGrace(ctx)
	defer cancel()

	results := make([]pairResult, len(pairs))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, p := range pairs {
		wg.Add(1)
		go func(i int, p pair) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o.logger.Info("crawling pair", "run_id", run.ID, "retailer", p.cfg.ID, "category", p.category)
			results[i] = pairResult{pair: p, walk: o.walker.Walk(walkCtx, p.cfg, p.category, run.Type)}
		}(i, p)
	}
	wg.Wait()
	return results
}

// commit turns crawl results into persisted state and the final run row.
// Commits run on a context detached from cancellation so a cancelled run
// still lands as partial instead of vanishing.
func (o *Orchestrator) commit(ctx context.Context, run *models.MonitoringRun, results []pairResult) {
	commitCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()

	var errorLines []string
	var entries []BatchEntry
	failedPairs := 0

	for _, r := range results {
		if r.walk.Err != nil {
			errorLines = append(errorLines, fmt.Sprintf("%s/%s: %v", r.cfg.ID, r.category, r.walk.Err))
			if len(r.walk.Products) == 0 {
				failedPairs++
				continue
			}
		}
		run.ProductsCrawled += len(r.walk.Products)

		switch run.Type {
		case models.RunTypeBaseline:
			if err := o.commitBaseline(commitCtx, run, r); err != nil {
				errorLines = append(errorLines, fmt.Sprintf("%s/%s: baseline commit: %v", r.cfg.ID, r.category, err))
				failedPairs++
			}
		default:
			report, err := o.classifier.Process(commitCtx, r.cfg, r.category, run.ID, r.walk.Products)
			if err != nil {
				errorLines = append(errorLines, fmt.Sprintf("%s/%s: detection: %v", r.cfg.ID, r.category, err))
				failedPairs++
				continue
			}
			run.NewProducts += len(report.New)
			run.QueuedForReview += len(report.ManualReview)
			for _, mr := range report.New {
				entries = append(entries, BatchEntry{
					URL:            mr.Summary.URL,
					Retailer:       mr.Summary.Retailer,
					DiscoveredDate: now.Format("2006-01-02"),
					CatalogSource:  mr.Summary.Category,
				})
			}
		}
	}

	if run.Type != models.RunTypeBaseline && len(entries) > 0 {
		path, err := writeBatchFile(o.batchDir, run, entries)
		if err != nil {
			errorLines = append(errorLines, fmt.Sprintf("batch file: %v", err))
		} else {
			run.BatchFile = path
			o.logger.Info("batch file written", "run_id", run.ID, "path", path, "urls", len(entries))
		}
	}

	run.Cancelled = ctx.Err() != nil
	run.ErrorLog = strings.Join(errorLines, "\n")
	run.State = runState(len(results), failedPairs, len(errorLines) > 0 || run.Cancelled)
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	if err := o.store.Runs.Update(commitCtx, run); err != nil {
		o.logger.Error("run commit failed", "run_id", run.ID, "error", err)
	}
	o.logger.Info("run finished",
		"run_id", run.ID, "state", run.State,
		"crawled", run.ProductsCrawled, "new", run.NewProducts, "review", run.QueuedForReview)
}

func (o *Orchestrator) commitBaseline(ctx context.Context, run *models.MonitoringRun, r pairResult) error {
	now := time.Now().UTC()
	meta, _ := json.Marshal(map[string]any{
		"start_url":  r.walk.StartURL,
		"used_sort":  r.walk.UsedSort,
		"pagination": string(r.cfg.Pagination),
	})

	obs := make([]*models.CatalogObservation, len(r.walk.Products))
	for i, s := range r.walk.Products {
		obs[i] = &models.CatalogObservation{
			ID:             ulid.Make().String(),
			Retailer:       s.Retailer,
			Category:       s.Category,
			ProductCode:    s.ProductCode,
			URL:            s.URL,
			Title:          s.Title,
			Price:          s.Price,
			ImageURL:       s.ImageURL,
			OnSale:         s.OnSale,
			Confidence:     1.0,
			DiscoveredDate: now.Format("2006-01-02"),
			RunID:          run.ID,
		}
	}

	return o.store.Observations.RotateBaseline(ctx, &models.Baseline{
		ID:           ulid.Make().String(),
		Retailer:     r.cfg.ID,
		Category:     r.category,
		CapturedDate: now.Format("2006-01-02"),
		PagesWalked:  r.walk.PagesWalked,
		Active:       true,
		MetadataJSON: string(meta),
	}, obs)
}

func (o *Orchestrator) resolvePairs(req Request) ([]pair, error) {
	ids := req.Retailers
	if len(ids) == 0 {
		ids = o.registry.IDs()
	}

	var pairs []pair
	for _, id := range ids {
		cfg, err := o.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		cats := req.Categories
		if len(cats) == 0 {
			if cats, err = o.registry.Categories(id); err != nil {
				return nil, fmt.Errorf("orchestrator: %w", err)
			}
		}
		for _, cat := range cats {
			if _, err := cfg.CategoryURL(cat); err != nil {
				return nil, fmt.Errorf("orchestrator: %w", err)
			}
			pairs = append(pairs, pair{cfg: cfg, category: cat})
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("orchestrator: no (retailer, category) pairs to run")
	}
	return pairs, nil
}

// withGrace derives the crawl context: it stays live until the parent is
// cancelled plus the grace window, so in-flight work can finish before the
// run is committed as partial.
func (o *Orchestrator) withGrace(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			select {
			case <-time.After(o.grace):
			case <-stop:
			}
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}

func (o *Orchestrator) notifyFatal(ctx context.Context, message string) {
	if err := o.notifier.Fatal(context.WithoutCancel(ctx), message); err != nil {
		o.logger.Warn("fatal notification failed", "error", err)
	}
}

func runState(total, failed int, anyError bool) models.RunState {
	switch {
	case failed >= total && total > 0:
		return models.RunStateFailed
	case anyError || failed > 0:
		return models.RunStatePartial
	default:
		return models.RunStateCompleted
	}
}

func retailerIDs(pairs []pair) []string {
	seen := map[string]bool{}
	var ids []string
	for _, p := range pairs {
		if !seen[p.cfg.ID] {
			seen[p.cfg.ID] = true
			ids = append(ids, p.cfg.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func categoryNames(pairs []pair) []string {
	seen := map[string]bool{}
	var cats []string
	for _, p := range pairs {
		if !seen[p.category] {
			seen[p.category] = true
			cats = append(cats, p.category)
		}
	}
	sort.Strings(cats)
	return cats
}
