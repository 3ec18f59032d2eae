package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/wearwatch/catalog-monitor/internal/markdown"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/patterns"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
	"github.com/wearwatch/catalog-monitor/internal/vision"
)

const maxAttempts = 3

// ErrChallengeUnresolved reports an anti-bot gate that survived every
// scripted dismissal.
var ErrChallengeUnresolved = errors.New("browser: challenge unresolved")

// Extractor is the browser extraction tower. The vision model reads
// screenshots first; DOM reads fill whatever it left empty and
// cross-validate what it returned. A persistent profile means a retailer's
// pages must be driven by one browser at a time, so calls are serialized
// per retailer.
type Extractor struct {
	launcher *Launcher
	vision   *vision.Client
	learner  *patterns.Learner
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewExtractor creates the browser tower.
func NewExtractor(l *Launcher, v *vision.Client, learner *patterns.Learner, logger *slog.Logger) *Extractor {
	return &Extractor{
		launcher: l,
		vision:   v,
		learner:  learner,
		logger:   logger.With("component", "browser"),
		sessions: map[string]*Session{},
		locks:    map[string]*sync.Mutex{},
	}
}

// Close shuts down every live browser session.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, sess := range e.sessions {
		sess.Close()
		delete(e.sessions, id)
	}
}

// ExtractProduct extracts one product page through the browser.
func (e *Extractor) ExtractProduct(ctx context.Context, cfg *retailer.Config, url string) *models.ExtractionResult {
	lock := e.retailerLock(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	result := &models.ExtractionResult{Method: models.MethodBrowser}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			e.resetSession(cfg.ID)
			if err := backoff(ctx, attempt); err != nil {
				break
			}
		}

		detail, delisted, warnings, err := e.productAttempt(ctx, cfg, url)
		if err != nil {
			lastErr = err
			e.logger.Warn("product attempt failed", "retailer", cfg.ID, "url", url, "attempt", attempt+1, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Elapsed = time.Since(start)
		if delisted {
			result.Delisted = true
			return result
		}
		result.Success = true
		result.Product = detail
		result.Warnings = warnings
		return result
	}

	result.Elapsed = time.Since(start)
	if lastErr != nil {
		result.Errors = append(result.Errors, lastErr.Error())
	}
	return result
}

// ExtractCatalog extracts one listing page: vision cards merged with DOM
// product links.
func (e *Extractor) ExtractCatalog(ctx context.Context, cfg *retailer.Config, category, pageURL string) *models.ExtractionResult {
	lock := e.retailerLock(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	result := &models.ExtractionResult{Method: models.MethodBrowser}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			e.resetSession(cfg.ID)
			if err := backoff(ctx, attempt); err != nil {
				break
			}
		}

		summaries, warnings, err := e.catalogAttempt(ctx, cfg, category, pageURL)
		if err != nil {
			lastErr = err
			e.logger.Warn("catalog attempt failed", "retailer", cfg.ID, "url", pageURL, "attempt", attempt+1, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Success = true
		result.Products = summaries
		result.Warnings = warnings
		result.Elapsed = time.Since(start)
		return result
	}

	result.Elapsed = time.Since(start)
	if lastErr != nil {
		result.Errors = append(result.Errors, lastErr.Error())
	}
	return result
}

func (e *Extractor) productAttempt(ctx context.Context, cfg *retailer.Config, url string) (detail *models.ProductDetail, delisted bool, warnings []string, err error) {
	page, err := e.openPage(ctx, cfg, url, models.FunctionExtractor)
	if err != nil {
		return nil, false, nil, err
	}
	defer page.Close()

	if isHomepageRedirect(page, url) {
		return nil, true, nil, nil
	}

	shots, err := captureProductShots(page)
	if err != nil {
		return nil, false, nil, err
	}
	detail, err = e.vision.ExtractProduct(ctx, shots, cfg, url)
	if err != nil {
		return nil, false, nil, err
	}

	html, err := page.HTML()
	if err != nil {
		e.logger.Warn("page html read failed", "retailer", cfg.ID, "error", err)
		html = ""
	}
	if html != "" {
		warnings = e.fillAndValidate(ctx, cfg, detail, html)
	}

	if issues := markdown.ValidateDetail(detail, cfg); len(issues) > 0 {
		if detail.Title == "" || detail.Price <= 0 {
			return nil, false, nil, fmt.Errorf("browser: extraction incomplete: %v", issues)
		}
		warnings = append(warnings, issues...)
	}
	return detail, false, warnings, nil
}

func (e *Extractor) catalogAttempt(ctx context.Context, cfg *retailer.Config, category, pageURL string) ([]models.ProductSummary, []string, error) {
	page, err := e.openPage(ctx, cfg, pageURL, models.FunctionCrawler)
	if err != nil {
		return nil, nil, err
	}
	defer page.Close()

	if err := scrollToBottom(ctx, page, 20, 800*time.Millisecond); err != nil {
		return nil, nil, err
	}
	if cfg.Pagination == retailer.PaginationHybridLoadMore {
		e.expandLoadMore(ctx, page, cfg)
	}

	var warnings []string
	var cards []vision.CatalogCard
	shot, err := captureCatalogShot(page)
	if err == nil {
		cards, err = e.vision.ExtractCatalogCards(ctx, shot)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("vision catalog read failed: %v", err))
		}
	} else {
		warnings = append(warnings, fmt.Sprintf("catalog screenshot failed: %v", err))
	}

	html, err := page.HTML()
	if err != nil {
		return nil, nil, fmt.Errorf("browser: page html: %w", err)
	}

	ranked := e.rankedSelectors(ctx, cfg.ID, models.FunctionCrawler, models.ElementProductLink)
	entries, winner := domCatalog(html, pageURL, cfg, [][]string{ranked, genericSelectors[models.ElementProductLink]})
	e.recordSelectorOutcomes(ctx, cfg.ID, models.FunctionCrawler, models.ElementProductLink, ranked, winner)

	if len(cards) == 0 && len(entries) == 0 {
		return nil, nil, errors.New("browser: no products from vision or DOM")
	}
	return mergeCatalog(cards, entries, cfg, category), warnings, nil
}

// maxLoadMoreClicks bounds a hybrid walk when the button never disappears.
const maxLoadMoreClicks = 15

// expandLoadMore exhausts a hybrid listing's load-more control. The
// paginated URLs have already been walked by the time this runs; clicking
// recovers whatever the page still hides behind the button. Outcomes feed
// the learner only for clicks that landed, since a missing button is the
// normal end of the walk, not a selector failure.
func (e *Extractor) expandLoadMore(ctx context.Context, page *rod.Page, cfg *retailer.Config) {
	ranked := e.rankedSelectors(ctx, cfg.ID, models.FunctionCrawler, models.ElementLoadMoreButton)
	selectors := loadMoreSelectors(ranked)
	clicks := 0
	for clicks < maxLoadMoreClicks {
		if ctx.Err() != nil {
			return
		}
		winner := clickLoadMore(page, selectors)
		if winner == "" {
			break
		}
		clicks++
		e.recordSelectorOutcomes(ctx, cfg.ID, models.FunctionCrawler, models.ElementLoadMoreButton, ranked, winner)
		if !slices.Contains(ranked, winner) {
			e.learner.RecordOutcome(ctx, cfg.ID, models.FunctionCrawler, models.ElementLoadMoreButton, models.PatternKindSelector, winner, true)
		}
		if err := scrollToBottom(ctx, page, 5, 800*time.Millisecond); err != nil {
			return
		}
	}
	if clicks > 0 {
		e.logger.Debug("load-more expansion done", "retailer", cfg.ID, "clicks", clicks)
	}
}

// loadMoreSelectors orders click candidates learner-ranked first, then
// generic, deduplicated.
func loadMoreSelectors(ranked []string) []string {
	out := slices.Clone(ranked)
	for _, s := range genericSelectors[models.ElementLoadMoreButton] {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// openPage launches a page through the navigation, overlay, and challenge
// gauntlet. Challenge outcomes feed the learner under the calling stage.
func (e *Extractor) openPage(ctx context.Context, cfg *retailer.Config, url string, fn models.PatternFunction) (*rod.Page, error) {
	sess, err := e.session(cfg.ID)
	if err != nil {
		return nil, err
	}
	page, err := sess.NewPage()
	if err != nil {
		return nil, err
	}
	if err := navigate(ctx, page, cfg, url); err != nil {
		page.Close()
		return nil, err
	}
	dismissOverlays(page)

	if det := detectChallenge(page); det.kind != challengeNone {
		cleared := handleChallenge(ctx, page, det, e.logger)
		if det.selector != "" {
			e.learner.RecordOutcome(ctx, cfg.ID, fn, models.ElementAntiBot, models.PatternKindSelector, det.selector, cleared)
			if cleared {
				e.learner.RecordCrossFunctionHint(ctx, cfg.ID, fn, models.ElementAntiBot, models.PatternKindSelector, det.selector)
			}
		}
		if !cleared {
			page.Close()
			return nil, fmt.Errorf("%w: %s", ErrChallengeUnresolved, det.kind)
		}
		dismissOverlays(page)
	}
	return page, nil
}

// fillAndValidate fills fields the vision read left empty from the DOM and
// cross-validates the ones it returned. Selector order per element is
// learner-ranked, then model-suggested hints, then generic.
func (e *Extractor) fillAndValidate(ctx context.Context, cfg *retailer.Config, detail *models.ProductDetail, html string) []string {
	var warnings []string

	var missing []models.ElementType
	if detail.Title == "" {
		missing = append(missing, models.ElementTitle)
	}
	if detail.Price <= 0 {
		missing = append(missing, models.ElementPrice)
	}
	if len(detail.ImageURLs) == 0 {
		missing = append(missing, models.ElementImage)
	}
	if detail.Description == "" {
		missing = append(missing, models.ElementDescription)
	}

	hints := map[models.ElementType]string{}
	if len(missing) > 0 {
		suggested, err := e.vision.SuggestSelectors(ctx, html, missing)
		if err != nil {
			e.logger.Debug("selector suggestion failed", "retailer", cfg.ID, "error", err)
		} else {
			hints = suggested
		}
	}

	domTitle := e.guidedField(ctx, cfg.ID, html, models.ElementTitle, hints)
	title, warn := reconcileTitle(detail.Title, domTitle)
	detail.Title = title
	if warn != "" {
		warnings = append(warnings, warn)
	}

	var domPrice float64
	if text := e.guidedField(ctx, cfg.ID, html, models.ElementPrice, hints); text != "" {
		if v, ok := textutil.ParsePrice(text); ok {
			domPrice = v
		}
	}
	price, warn := reconcilePrice(detail.Price, domPrice)
	detail.Price = price
	if warn != "" {
		warnings = append(warnings, warn)
	}

	if len(detail.ImageURLs) == 0 {
		if src := e.guidedField(ctx, cfg.ID, html, models.ElementImage, hints); src != "" {
			detail.ImageURLs = []string{src}
		}
	}
	if detail.Description == "" {
		detail.Description = e.guidedField(ctx, cfg.ID, html, models.ElementDescription, hints)
	}
	return warnings
}

// guidedField reads one element's value from the HTML and records selector
// outcomes against the extractor stage.
func (e *Extractor) guidedField(ctx context.Context, ret, html string, et models.ElementType, hints map[models.ElementType]string) string {
	ranked := e.rankedSelectors(ctx, ret, models.FunctionExtractor, et)
	sets := [][]string{ranked}
	if hint, ok := hints[et]; ok {
		sets = append(sets, []string{hint})
	}
	sets = append(sets, genericSelectors[et])

	value, winner := domField(html, sets)
	e.recordSelectorOutcomes(ctx, ret, models.FunctionExtractor, et, ranked, winner)
	if winner != "" && !slices.Contains(ranked, winner) && value != "" {
		// A hint or generic selector that worked becomes a learned pattern.
		e.learner.RecordOutcome(ctx, ret, models.FunctionExtractor, et, models.PatternKindSelector, winner, true)
	}
	return value
}

func (e *Extractor) rankedSelectors(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType) []string {
	var payloads []string
	for _, p := range e.learner.GetRankedPatterns(ctx, ret, fn, et, false) {
		if p.Kind == models.PatternKindSelector {
			payloads = append(payloads, p.Payload)
		}
	}
	return payloads
}

// recordSelectorOutcomes marks ranked selectors tried before the winner as
// failed and the winner as succeeded. Selectors after the winner were never
// tried and stay untouched.
func (e *Extractor) recordSelectorOutcomes(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType, ranked []string, winner string) {
	for _, payload := range ranked {
		if payload == winner {
			e.learner.RecordOutcome(ctx, ret, fn, et, models.PatternKindSelector, payload, true)
			if et == models.ElementProductLink {
				e.learner.RecordCrossFunctionHint(ctx, ret, fn, et, models.PatternKindSelector, payload)
			}
			return
		}
		e.learner.RecordOutcome(ctx, ret, fn, et, models.PatternKindSelector, payload, false)
	}
	if winner != "" && et == models.ElementProductLink {
		e.learner.RecordCrossFunctionHint(ctx, ret, fn, et, models.PatternKindSelector, winner)
	}
}

func (e *Extractor) session(retailerID string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[retailerID]; ok {
		return sess, nil
	}
	sess, err := e.launcher.Launch(retailerID)
	if err != nil {
		return nil, err
	}
	e.sessions[retailerID] = sess
	return sess, nil
}

// resetSession restarts a retailer's browser between attempts. When the
// relaunch fails the slot stays empty and the next openPage call launches
// lazily.
func (e *Extractor) resetSession(retailerID string) {
	e.mu.Lock()
	sess, ok := e.sessions[retailerID]
	delete(e.sessions, retailerID)
	e.mu.Unlock()
	if !ok {
		return
	}
	fresh, err := e.launcher.Restart(retailerID, sess)
	if err != nil {
		e.logger.Warn("session restart failed", "retailer", retailerID, "error", err)
		return
	}
	e.mu.Lock()
	e.sessions[retailerID] = fresh
	e.mu.Unlock()
}

func (e *Extractor) retailerLock(retailerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[retailerID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[retailerID] = lock
	}
	return lock
}

func backoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(time.Duration(1<<attempt) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
