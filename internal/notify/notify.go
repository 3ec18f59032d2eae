// Package notify emits run notifications through Telegram, with a no-op
// fallback when no bot is configured.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// Notifier delivers operator-facing messages. Implementations must be safe
// for concurrent use.
type Notifier interface {
	// RunCompleted summarizes a finished monitoring run, in any end state.
	RunCompleted(ctx context.Context, run *models.MonitoringRun) error
	// Fatal reports a condition that aborted a run early.
	Fatal(ctx context.Context, message string) error
	// HealthCheck verifies the channel itself is reachable.
	HealthCheck(ctx context.Context) error
}

// formatRunSummary renders the completion message. Plain text, one fact per
// line, so it reads the same in Telegram and in logs.
func formatRunSummary(run *models.MonitoringRun) string {
	var b strings.Builder
	switch run.State {
	case models.RunStateCompleted:
		b.WriteString("Catalog run completed")
	case models.RunStatePartial:
		b.WriteString("Catalog run completed with failures")
	case models.RunStateFailed:
		b.WriteString("Catalog run FAILED")
	default:
		fmt.Fprintf(&b, "Catalog run %s", run.State)
	}
	fmt.Fprintf(&b, "\nRun: %s (%s)", run.ID, run.Type)
	fmt.Fprintf(&b, "\nRetailers: %s", strings.Join(run.Retailers, ", "))
	if len(run.Categories) > 0 {
		fmt.Fprintf(&b, "\nCategories: %s", strings.Join(run.Categories, ", "))
	}
	fmt.Fprintf(&b, "\nProducts crawled: %d", run.ProductsCrawled)
	fmt.Fprintf(&b, "\nNew products: %d", run.NewProducts)
	if run.QueuedForReview > 0 {
		fmt.Fprintf(&b, "\nQueued for review: %d", run.QueuedForReview)
	}
	if run.BatchFile != "" {
		fmt.Fprintf(&b, "\nBatch file: %s", run.BatchFile)
	}
	if run.Cancelled {
		b.WriteString("\nRun was cancelled")
	}
	if run.ErrorLog != "" {
		fmt.Fprintf(&b, "\nErrors:\n%s", run.ErrorLog)
	}
	return b.String()
}
