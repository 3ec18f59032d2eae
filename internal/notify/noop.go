package notify

import (
	"context"
	"log/slog"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// Noop logs notifications instead of delivering them, used when no Telegram
// credentials are configured.
type Noop struct {
	logger *slog.Logger
}

// NewNoop creates the logging notifier.
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger.With("component", "notify")}
}

func (n *Noop) RunCompleted(_ context.Context, run *models.MonitoringRun) error {
	n.logger.Info("notification (no channel configured)", "summary", formatRunSummary(run))
	return nil
}

func (n *Noop) Fatal(_ context.Context, message string) error {
	n.logger.Error("fatal notification (no channel configured)", "message", message)
	return nil
}

func (n *Noop) HealthCheck(_ context.Context) error {
	return nil
}
