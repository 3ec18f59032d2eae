package crawler

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

// Limiters hands out one token bucket per retailer, sized by anti-bot
// severity. The crawler and both extraction towers draw from the same
// bucket, so page walks and detail extractions share a retailer's budget.
type Limiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiters creates an empty limiter registry.
func NewLimiters() *Limiters {
	return &Limiters{buckets: make(map[string]*rate.Limiter)}
}

// Wait blocks until the retailer's bucket grants a token or the context is
// cancelled.
func (l *Limiters) Wait(ctx context.Context, cfg *retailer.Config) error {
	return l.bucket(cfg).Wait(ctx)
}

func (l *Limiters) bucket(cfg *retailer.Config) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[cfg.ID]; ok {
		return b
	}
	b := rate.NewLimiter(severityRate(cfg.AntiBot))
	l.buckets[cfg.ID] = b
	return b
}

// severityRate maps anti-bot severity to a refill rate and burst. The rates
// sit just under the per-page pacing bounds so the bucket only bites when
// detail extractions pile on top of the page walk.
func severityRate(s retailer.AntiBotSeverity) (rate.Limit, int) {
	switch s {
	case retailer.SeverityLow:
		return rate.Limit(1.0), 3
	case retailer.SeverityMedium:
		return rate.Limit(0.5), 2
	case retailer.SeverityHigh:
		return rate.Limit(0.25), 1
	default: // very high
		return rate.Limit(0.1), 1
	}
}
