package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wearwatch/catalog-monitor/internal/models"
)

// Telegram delivers notifications to one chat through a bot.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram authenticates the bot token. Fails fast so a bad token is
// caught at startup instead of at the first notification.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram auth: %w", err)
	}
	logger.Info("telegram notifier ready", "account", bot.Self.UserName, "chat_id", chatID)
	return &Telegram{bot: bot, chatID: chatID, logger: logger.With("component", "notify")}, nil
}

// RunCompleted sends the run summary.
func (t *Telegram) RunCompleted(_ context.Context, run *models.MonitoringRun) error {
	return t.send(formatRunSummary(run))
}

// Fatal sends a fatal-condition notice.
func (t *Telegram) Fatal(_ context.Context, message string) error {
	return t.send("FATAL: " + message)
}

// HealthCheck verifies the bot token is still accepted.
func (t *Telegram) HealthCheck(_ context.Context) error {
	if _, err := t.bot.GetMe(); err != nil {
		return fmt.Errorf("notify: telegram health check: %w", err)
	}
	return nil
}

func (t *Telegram) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}
