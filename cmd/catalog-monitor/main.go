// Package main is the entry point for the catalog monitor.
// One binary covers the whole lifecycle: baseline capture, monitoring runs
// (one-shot or on the weekly schedule), review-queue management, and the
// operational self-test.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/browser"
	"github.com/wearwatch/catalog-monitor/internal/config"
	"github.com/wearwatch/catalog-monitor/internal/crawler"
	"github.com/wearwatch/catalog-monitor/internal/database"
	"github.com/wearwatch/catalog-monitor/internal/detect"
	"github.com/wearwatch/catalog-monitor/internal/dispatch"
	"github.com/wearwatch/catalog-monitor/internal/fetch"
	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/logging"
	"github.com/wearwatch/catalog-monitor/internal/markdown"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/notify"
	"github.com/wearwatch/catalog-monitor/internal/orchestrator"
	"github.com/wearwatch/catalog-monitor/internal/patterns"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/schedule"
	"github.com/wearwatch/catalog-monitor/internal/store"
	"github.com/wearwatch/catalog-monitor/internal/version"
	"github.com/wearwatch/catalog-monitor/internal/vision"
)

type cliFlags struct {
	baseline         bool
	monitoring       bool
	weeklyMonitoring bool
	retailers        string
	categories       string

	pendingReviews bool
	approve        string
	reject         string
	batchFile      string

	selfTest        bool
	allChecks       bool
	componentsOnly  bool
	integrationOnly bool
	quick           bool
	includeLive     bool

	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var f cliFlags
	flag.BoolVar(&f.baseline, "baseline", false, "capture a fresh baseline snapshot and exit")
	flag.BoolVar(&f.monitoring, "monitoring", false, "execute one monitoring run and exit")
	flag.BoolVar(&f.weeklyMonitoring, "weekly-monitoring", false, "run monitoring on the weekly cron schedule until interrupted")
	flag.StringVar(&f.retailers, "retailers", "", "comma-separated retailer ids (default: all registered)")
	flag.StringVar(&f.categories, "categories", "", "comma-separated categories (default: all per retailer)")

	flag.BoolVar(&f.pendingReviews, "pending-reviews", false, "list observations waiting for manual review and exit")
	flag.StringVar(&f.approve, "approve", "", "approve the pending observation with this id")
	flag.StringVar(&f.reject, "reject", "", "reject the pending observation with this id")
	flag.StringVar(&f.batchFile, "batch-file", "", "export approved observations to a batch file at this path and mark them promoted")

	flag.BoolVar(&f.selfTest, "self-test", false, "run operational health checks and exit")
	flag.BoolVar(&f.allChecks, "all", false, "self-test: run every check group")
	flag.BoolVar(&f.componentsOnly, "components-only", false, "self-test: component checks only (no credentials needed)")
	flag.BoolVar(&f.integrationOnly, "integration-only", false, "self-test: integration checks only")
	flag.BoolVar(&f.quick, "quick", false, "self-test: fast component checks only")
	flag.BoolVar(&f.includeLive, "include-live", false, "self-test: also probe live retailer listings")

	flag.BoolVar(&f.showVersion, "version", false, "print version and exit")
	flag.Parse()

	logger := logging.SetDefault()

	v := version.Get()
	if f.showVersion {
		fmt.Println(v.String())
		return 0
	}
	logger.Info("starting catalog-monitor",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifications go out even for modes that never open the database.
	notifier := buildNotifier(cfg, logger)

	if f.selfTest {
		report := orchestrator.SelfTest(ctx, cfg, notifier, orchestrator.SelfTestOptions{
			All:             f.allChecks,
			ComponentsOnly:  f.componentsOnly,
			IntegrationOnly: f.integrationOnly,
			Quick:           f.quick,
			IncludeLive:     f.includeLive,
		}, logger)
		for _, c := range report.Results {
			status := "PASS"
			if !c.Passed {
				status = "FAIL"
			}
			line := fmt.Sprintf("%-4s %s (%s)", status, c.Name, c.Elapsed.Round(time.Millisecond))
			if c.Detail != "" {
				line += ": " + c.Detail
			}
			fmt.Println(line)
		}
		if !report.Passed() {
			return 1
		}
		return 0
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return 1
	}

	st := store.New(db)
	defer st.Close()

	// A crashed process leaves runs stuck in running; anything older than a
	// day is dead.
	if n, err := st.Runs.FailStale(ctx, 24*time.Hour); err != nil {
		logger.Warn("failed to clean up stale runs", "error", err)
	} else if n > 0 {
		logger.Info("marked stale runs failed", "count", n)
	}

	switch {
	case f.pendingReviews:
		return listPendingReviews(ctx, st)
	case f.approve != "":
		return setLifecycle(ctx, st, f.approve, models.LifecycleApproved)
	case f.reject != "":
		return setLifecycle(ctx, st, f.reject, models.LifecycleRejected)
	case f.batchFile != "":
		n, err := orchestrator.ExportApproved(ctx, st, f.batchFile, logger)
		if err != nil {
			logger.Error("export failed", "error", err)
			return 1
		}
		fmt.Printf("exported %d approved observation(s) to %s\n", n, f.batchFile)
		return 0
	}

	if !f.baseline && !f.monitoring && !f.weeklyMonitoring {
		flag.Usage()
		return 1
	}
	if err := cfg.RequireLLMKeys(); err != nil {
		logger.Error("missing credentials", "error", err)
		return 1
	}

	registry := retailer.NewRegistry()
	if cfg.RetailersFile != "" {
		if err := config.ApplyRetailersFile(registry, cfg.RetailersFile); err != nil {
			logger.Error("failed to apply retailers file", "path", cfg.RetailersFile, "error", err)
			return 1
		}
		logger.Info("retailer overrides applied", "path", cfg.RetailersFile)
	}

	// Extraction towers share one LLM transport.
	llmClient := llm.NewClient(logger)
	cascade := llm.NewCascade(llmClient,
		llm.ProviderConfig{Provider: cfg.PrimaryLLMProvider, Model: cfg.PrimaryLLMModel, APIKey: cfg.PrimaryLLMKey},
		llm.ProviderConfig{Provider: cfg.SecondaryLLMProvider, Model: cfg.SecondaryLLMModel, APIKey: cfg.SecondaryLLMKey},
		logger)
	visionClient := vision.NewClient(llmClient,
		llm.ProviderConfig{Provider: cfg.VisionProvider, Model: cfg.VisionModel, APIKey: cfg.VisionKey},
		logger)

	static := fetch.NewClient(30*time.Second, logger)
	mdFetcher := markdown.NewFetcher(cfg.MarkdownServiceURL, cfg.MarkdownServiceToken, st.Cache, cfg.MarkdownCacheExpiry, static, logger)
	mdTower := markdown.NewExtractor(mdFetcher, cascade, static, logger)

	learner := patterns.New(st.Patterns, logger)
	launcher := browser.NewLauncher(cfg.ProfileDir, cfg.ChromePath, logger)
	browserTower := browser.NewExtractor(launcher, visionClient, learner, logger)
	defer browserTower.Close()

	dispatcher := dispatch.New(mdTower, browserTower, logger)
	walker := crawler.New(dispatcher, st.Observations, crawler.NewLimiters(), crawler.Options{
		EarlyStop:       cfg.EarlyStopDefault,
		EarlyStopNoSort: cfg.EarlyStopNoSort,
	}, logger)
	classifier := detect.New(st, logger)

	orch := orchestrator.New(registry, walker, classifier, st, notifier, orchestrator.Options{
		BatchDir:    cfg.BatchDir,
		Concurrency: cfg.Concurrency,
		Grace:       cfg.ShutdownGrace,
	}, logger)

	req := orchestrator.Request{
		Type:       models.RunTypeMonitoring,
		Retailers:  splitList(f.retailers),
		Categories: splitList(f.categories),
	}
	if f.baseline {
		req.Type = models.RunTypeBaseline
	}

	if f.weeklyMonitoring {
		sched, err := schedule.New(cfg.WeeklyCronSpec, func(runCtx context.Context) {
			if _, err := orch.Run(runCtx, req); err != nil {
				logger.Error("scheduled run failed", "error", err)
			}
		}, logger)
		if err != nil {
			logger.Error("failed to build schedule", "error", err)
			return 1
		}
		logger.Info("weekly monitoring armed", "cron", cfg.WeeklyCronSpec)
		sched.Run(ctx)
		return 0
	}

	run, err := orch.Run(ctx, req)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	if run.State == models.RunStateFailed {
		return 1
	}
	return 0
}

// buildNotifier wires telegram when configured and falls back to the
// logging notifier otherwise, so runs never fail on notification setup.
func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.NotificationsEnabled() {
		return notify.NewNoop(logger)
	}
	tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("telegram setup failed, notifications disabled", "error", err)
		return notify.NewNoop(logger)
	}
	return tg
}

func listPendingReviews(ctx context.Context, st *store.Store) int {
	obs, err := st.Observations.ListByLifecycle(ctx, models.LifecyclePendingReview, 500)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list pending reviews: %v\n", err)
		return 1
	}
	if len(obs) == 0 {
		fmt.Println("no observations pending review")
		return 0
	}
	for _, o := range obs {
		fmt.Printf("%s  %-10s %-14s $%-8.2f conf %.2f  %s\n",
			o.ID, o.Retailer, o.Category, o.Price, o.Confidence, o.URL)
	}
	fmt.Printf("%d pending; use --approve <id> or --reject <id>\n", len(obs))
	return 0
}

func setLifecycle(ctx context.Context, st *store.Store, id string, to models.Lifecycle) int {
	if err := st.Observations.UpdateLifecycle(ctx, id, to); err != nil {
		fmt.Fprintf(os.Stderr, "update %s: %v\n", id, err)
		return 1
	}
	fmt.Printf("%s -> %s\n", id, to)
	return 0
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
