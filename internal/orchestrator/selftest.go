package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/config"
	"github.com/wearwatch/catalog-monitor/internal/database"
	"github.com/wearwatch/catalog-monitor/internal/fetch"
	"github.com/wearwatch/catalog-monitor/internal/jsonrepair"
	"github.com/wearwatch/catalog-monitor/internal/notify"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/store"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

// SelfTestOptions select which check groups run.
type SelfTestOptions struct {
	All             bool
	ComponentsOnly  bool
	IntegrationOnly bool
	Quick           bool
	IncludeLive     bool
}

// CheckResult is one named check's outcome.
type CheckResult struct {
	Name    string
	Passed  bool
	Detail  string
	Elapsed time.Duration
}

// SelfTestReport aggregates all executed checks.
type SelfTestReport struct {
	Results []CheckResult
}

// Passed reports whether every executed check passed.
func (r *SelfTestReport) Passed() bool {
	for _, c := range r.Results {
		if !c.Passed {
			return false
		}
	}
	return true
}

// SelfTest runs the operational health checks: pure component checks that
// need no credentials, integration checks against the configured store and
// notification channel, and optionally live probes against retailer sites.
func SelfTest(ctx context.Context, cfg *config.Config, notifier notify.Notifier, opts SelfTestOptions, logger *slog.Logger) *SelfTestReport {
	report := &SelfTestReport{}
	run := func(name string, fn func() error) {
		start := time.Now()
		err := fn()
		result := CheckResult{Name: name, Passed: err == nil, Elapsed: time.Since(start)}
		if err != nil {
			result.Detail = err.Error()
			logger.Error("self-test check failed", "check", name, "error", err)
		} else {
			logger.Info("self-test check passed", "check", name, "elapsed", result.Elapsed)
		}
		report.Results = append(report.Results, result)
	}

	components := opts.All || opts.ComponentsOnly || opts.Quick || (!opts.IntegrationOnly && !opts.IncludeLive)
	integration := opts.All || opts.IntegrationOnly || (!opts.ComponentsOnly && !opts.Quick)

	if components {
		run("retailer registry", checkRegistry)
		run("url normalization idempotent", checkNormalizationIdempotent)
		run("json repair", checkJSONRepair)
		run("title similarity", checkSimilarity)
	}
	if integration {
		run("database schema", func() error { return checkDatabase(cfg) })
		run("llm credentials", cfg.RequireLLMKeys)
		run("notification channel", func() error { return notifier.HealthCheck(ctx) })
	}
	if opts.IncludeLive {
		run("live listing reachability", func() error { return checkLiveListings(ctx, logger) })
	}
	return report
}

func checkRegistry() error {
	reg := retailer.NewRegistry()
	ids := reg.IDs()
	if len(ids) == 0 {
		return fmt.Errorf("no retailers registered")
	}
	for _, id := range ids {
		cats, err := reg.Categories(id)
		if err != nil {
			return err
		}
		if len(cats) == 0 {
			return fmt.Errorf("retailer %s has no categories", id)
		}
	}
	return nil
}

func checkNormalizationIdempotent() error {
	reg := retailer.NewRegistry()
	samples := []string{
		"https://example.com/product/123?utm_source=mail&navsrc=grid",
		"https://example.com/dp/AB-1/.",
		"https://EXAMPLE.com/Shop/dress/?origin=nav#reviews",
	}
	for _, id := range reg.IDs() {
		cfg, err := reg.Get(id)
		if err != nil {
			return err
		}
		for _, s := range samples {
			once := retailer.NormalizeURL(cfg, s)
			if twice := retailer.NormalizeURL(cfg, once); twice != once {
				return fmt.Errorf("%s: normalize not idempotent for %q: %q vs %q", id, s, once, twice)
			}
		}
	}
	return nil
}

func checkJSONRepair() error {
	var v struct {
		Title string   `json:"title"`
		Imgs  []string `json:"image_urls"`
	}
	if err := jsonrepair.Decode(`{"title":"A","image_urls":["u1","u2"`, &v); err != nil {
		return err
	}
	if v.Title != "A" || len(v.Imgs) != 2 {
		return fmt.Errorf("repair decoded wrong value: %+v", v)
	}
	return nil
}

func checkSimilarity() error {
	if sim := textutil.Similarity("Floral Wrap Dress", "floral  wrap dress"); sim != 1.0 {
		return fmt.Errorf("normalized identical titles scored %.3f", sim)
	}
	if sim := textutil.Similarity("Floral Wrap Dress", ""); sim != 0.0 {
		return fmt.Errorf("empty title scored %.3f", sim)
	}
	return nil
}

func checkDatabase(cfg *config.Config) error {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, slog.Default()); err != nil {
		return err
	}

	s := store.New(db)
	defer s.Close()
	_, err = s.GetStatistics(context.Background())
	return err
}

// checkLiveListings probes one listing URL per retailer with a HEAD-level
// fetch. Failures here usually mean anti-bot pressure, not an outage.
func checkLiveListings(ctx context.Context, logger *slog.Logger) error {
	reg := retailer.NewRegistry()
	client := fetch.NewClient(30*time.Second, logger)

	var failures []string
	for _, id := range reg.IDs() {
		cfg, err := reg.Get(id)
		if err != nil {
			return err
		}
		cats, err := reg.Categories(id)
		if err != nil || len(cats) == 0 {
			continue
		}
		url, err := cfg.CategoryURL(cats[0])
		if err != nil {
			continue
		}
		if _, err := client.GetHTML(ctx, url); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("unreachable listings: %v", failures)
	}
	return nil
}
