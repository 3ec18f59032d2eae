// Package config handles application configuration: environment variables
// for credentials and tunables, plus an optional retailers.json overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Data layout
	DataDir     string // root for the database, browser profiles, batches
	DatabaseURL string // sqlite DSN
	BatchDir    string // output directory for publisher batch files
	ProfileDir  string // browser_profiles/ root

	// LLM providers (markdown tower cascade)
	PrimaryLLMProvider   string // "openai" or "anthropic"
	PrimaryLLMModel      string
	PrimaryLLMKey        string
	SecondaryLLMProvider string
	SecondaryLLMModel    string
	SecondaryLLMKey      string

	// Vision model (browser tower)
	VisionProvider string
	VisionModel    string
	VisionKey      string

	// Markdown conversion service
	MarkdownServiceURL   string // empty enables the local html-to-markdown fallback
	MarkdownServiceToken string
	MarkdownCacheExpiry  time.Duration

	// Browser
	ChromePath string

	// Orchestrator
	Concurrency       int // parallel (retailer, category) pairs
	ShutdownGrace     time.Duration
	EarlyStopDefault  int // consecutive-overlap threshold
	EarlyStopNoSort   int // raised threshold when newest-first sort is absent

	// Notifications
	TelegramBotToken string
	TelegramChatID   int64

	// Optional retailers.json overlay
	RetailersFile string

	// Weekly schedule (cron spec) for --weekly-monitoring
	WeeklyCronSpec string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dataDir := getEnv("CATALOG_DATA_DIR", "data")

	cfg := &Config{
		DataDir:     dataDir,
		DatabaseURL: getEnv("DATABASE_URL", "file:"+filepath.Join(dataDir, "catalog.db")+"?_journal=WAL&_timeout=5000"),
		BatchDir:    getEnv("BATCH_DIR", filepath.Join(dataDir, "batches")),
		ProfileDir:  getEnv("BROWSER_PROFILE_DIR", filepath.Join(dataDir, "browser_profiles")),

		PrimaryLLMProvider:   getEnv("PRIMARY_LLM_PROVIDER", "openai"),
		PrimaryLLMModel:      getEnv("PRIMARY_LLM_MODEL", "gpt-4o-mini"),
		PrimaryLLMKey:        getEnv("OPENAI_API_KEY", ""),
		SecondaryLLMProvider: getEnv("SECONDARY_LLM_PROVIDER", "anthropic"),
		SecondaryLLMModel:    getEnv("SECONDARY_LLM_MODEL", "claude-3-5-haiku-latest"),
		SecondaryLLMKey:      getEnv("ANTHROPIC_API_KEY", ""),

		VisionProvider: getEnv("VISION_PROVIDER", "openai"),
		VisionModel:    getEnv("VISION_MODEL", "gpt-4o"),
		VisionKey:      getEnv("VISION_API_KEY", os.Getenv("OPENAI_API_KEY")),

		MarkdownServiceURL:   getEnv("MARKDOWN_SERVICE_URL", ""),
		MarkdownServiceToken: getEnv("MARKDOWN_SERVICE_TOKEN", ""),
		MarkdownCacheExpiry:  getEnvDuration("MARKDOWN_CACHE_EXPIRY", 72*time.Hour),

		ChromePath: getEnv("CHROME_PATH", ""),

		Concurrency:      getEnvInt("MONITOR_CONCURRENCY", 3),
		ShutdownGrace:    getEnvDuration("SHUTDOWN_GRACE", 5*time.Second),
		EarlyStopDefault: getEnvInt("EARLY_STOP_THRESHOLD", 3),
		EarlyStopNoSort:  getEnvInt("EARLY_STOP_THRESHOLD_NO_SORT", 8),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),

		RetailersFile:  getEnv("RETAILERS_FILE", ""),
		WeeklyCronSpec: getEnv("WEEKLY_CRON_SPEC", "0 6 * * 1"),
	}

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("MONITOR_CONCURRENCY must be >= 1")
	}
	if cfg.MarkdownCacheExpiry < 48*time.Hour || cfg.MarkdownCacheExpiry > 120*time.Hour {
		return nil, fmt.Errorf("MARKDOWN_CACHE_EXPIRY must be between 48h and 120h")
	}

	return cfg, nil
}

// RequireLLMKeys verifies the credentials the extraction towers need.
// Missing credentials are fatal for a run (the run aborts early).
func (c *Config) RequireLLMKeys() error {
	var missing []string
	if c.PrimaryLLMKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.SecondaryLLMKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if c.VisionKey == "" {
		missing = append(missing, "VISION_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required API credentials absent: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NotificationsEnabled reports whether the telegram channel is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
