// Package patterns maintains per-retailer extraction hints with outcome
// feedback. Confidence moves in small steps on success and larger steps on
// failure so a selector that breaks after a site redesign falls out of the
// ranking quickly.
package patterns

import (
	"context"
	"log/slog"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

const (
	initialConfidence  = 0.7
	successStep        = 0.05
	failureStep        = 0.1
	rankFloor          = 0.3
	transferConfidence = 0.5
)

// transferPairs is the only allowed cross-stage seeding. Anti-bot handling
// learned while walking catalog pages applies to product pages too; product
// link selectors learned on product pages help the crawler find the grid.
var transferPairs = map[transferKey]models.PatternFunction{
	{models.FunctionCrawler, models.ElementAntiBot}:       models.FunctionExtractor,
	{models.FunctionExtractor, models.ElementProductLink}: models.FunctionCrawler,
}

type transferKey struct {
	fn models.PatternFunction
	et models.ElementType
}

// Learner ranks and updates learned patterns. Persistence is best-effort:
// a store error is logged and the pipeline carries on without the hint.
type Learner struct {
	repo   *store.PatternRepo
	logger *slog.Logger
}

// New creates a Learner over the pattern repository.
func New(repo *store.PatternRepo, logger *slog.Logger) *Learner {
	return &Learner{repo: repo, logger: logger.With("component", "patterns")}
}

// GetRankedPatterns returns a retailer's patterns for one stage and element,
// highest confidence first. Patterns below the ranking floor are dropped
// unless includeAll is set or every pattern is below the floor, in which
// case the full ranked list is returned so extraction still has something
// to try.
func (l *Learner) GetRankedPatterns(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType, includeAll bool) []*models.LearnedPattern {
	all, err := l.repo.ListForElement(ctx, ret, fn, et)
	if err != nil {
		l.logger.Warn("pattern lookup failed", "retailer", ret, "element", et, "error", err)
		return nil
	}
	if includeAll {
		return all
	}
	var ranked []*models.LearnedPattern
	for _, p := range all {
		if p.Confidence >= rankFloor {
			ranked = append(ranked, p)
		}
	}
	if len(ranked) == 0 {
		return all
	}
	return ranked
}

// GetPlaceholderRules returns the payloads of placeholder-exclusion rules a
// retailer has accumulated, across stages.
func (l *Learner) GetPlaceholderRules(ctx context.Context, ret string) []string {
	all, err := l.repo.ListForRetailer(ctx, ret)
	if err != nil {
		l.logger.Warn("placeholder rule lookup failed", "retailer", ret, "error", err)
		return nil
	}
	var rules []string
	for _, p := range all {
		if p.Kind == models.PatternKindPlaceholder {
			rules = append(rules, p.Payload)
		}
	}
	return rules
}

// RecordOutcome feeds one extraction outcome back into a pattern, creating
// it at the initial confidence on first sight. Counters only ever grow.
func (l *Learner) RecordOutcome(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType, kind models.PatternKind, payload string, success bool) {
	p := l.find(ctx, ret, fn, et, kind, payload)
	if p == nil {
		p = &models.LearnedPattern{
			Retailer:    ret,
			Function:    fn,
			ElementType: et,
			Kind:        kind,
			Payload:     payload,
			Confidence:  initialConfidence,
		}
	}

	if success {
		p.SuccessCount++
		p.Confidence = min(1.0, p.Confidence+successStep)
	} else {
		p.FailureCount++
		p.Confidence = max(0.0, p.Confidence-failureStep)
		now := time.Now().UTC()
		p.LastFailedAt = &now
	}

	if err := l.repo.Save(ctx, p); err != nil {
		l.logger.Warn("pattern save failed", "retailer", ret, "element", et, "error", err)
	}
}

// RecordCrossFunctionHint seeds a pattern proven in one pipeline stage into
// its paired stage at reduced confidence. Pairs outside the transfer table
// and targets that already exist are ignored.
func (l *Learner) RecordCrossFunctionHint(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType, kind models.PatternKind, payload string) {
	target, ok := transferPairs[transferKey{fn, et}]
	if !ok {
		return
	}
	if existing := l.find(ctx, ret, target, et, kind, payload); existing != nil {
		return
	}

	seeded := &models.LearnedPattern{
		Retailer:        ret,
		Function:        target,
		ElementType:     et,
		Kind:            kind,
		Payload:         payload,
		Confidence:      transferConfidence,
		TransferredFrom: string(fn),
	}
	if err := l.repo.Save(ctx, seeded); err != nil {
		l.logger.Warn("pattern transfer failed", "retailer", ret, "element", et, "error", err)
	}
}

func (l *Learner) find(ctx context.Context, ret string, fn models.PatternFunction, et models.ElementType, kind models.PatternKind, payload string) *models.LearnedPattern {
	all, err := l.repo.ListForElement(ctx, ret, fn, et)
	if err != nil {
		l.logger.Warn("pattern lookup failed", "retailer", ret, "element", et, "error", err)
		return nil
	}
	for _, p := range all {
		if p.Kind == kind && p.Payload == payload {
			return p
		}
	}
	return nil
}
