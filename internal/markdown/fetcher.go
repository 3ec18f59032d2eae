// Package markdown is the markdown extraction tower: page to markdown, LLM
// cascade, structured parse. Retailers with light anti-bot protection go
// through here; the browser tower covers the rest.
package markdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/wearwatch/catalog-monitor/internal/fetch"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

const (
	fetchBaseTimeout   = 45 * time.Second
	fetchTimeoutGrowth = 20 * time.Second
	fetchRetries       = 3
)

// ErrHomepageRedirect is returned when the conversion service served a
// category-landing page instead of the requested URL.
var ErrHomepageRedirect = errors.New("markdown: homepage redirect")

// Fetcher obtains markdown for a URL, via the remote conversion service when
// configured and a local HTML conversion otherwise, with a freshness-checked
// cache in front.
type Fetcher struct {
	endpoint string // remote service base URL, "" for local conversion
	token    string
	cache    *store.MarkdownCacheRepo
	expiry   time.Duration
	static   *fetch.Client
	logger   *slog.Logger
}

// NewFetcher creates a markdown fetcher. An empty endpoint selects the local
// html-to-markdown path.
func NewFetcher(endpoint, token string, cache *store.MarkdownCacheRepo, expiry time.Duration, static *fetch.Client, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		cache:    cache,
		expiry:   expiry,
		static:   static,
		logger:   logger.With("component", "markdown"),
	}
}

// Fetch returns markdown for the URL. Fresh cache entries are served
// directly; redirect-detected responses are never cached.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cache != nil {
		if entry, err := f.cache.Get(ctx, url, f.expiry); err == nil {
			f.logger.Debug("markdown cache hit", "url", url)
			return entry.Markdown, nil
		}
	}

	var (
		body string
		err  error
	)
	if f.endpoint == "" {
		body, err = f.fetchLocal(ctx, url)
	} else {
		body, err = f.fetchRemote(ctx, url)
	}
	if err != nil {
		return "", err
	}

	if reason, redirected := DetectHomepageRedirect(body, url); redirected {
		f.logger.Warn("homepage redirect detected", "url", url, "reason", reason)
		return "", ErrHomepageRedirect
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, url, body, sourceURL(body)); err != nil {
			f.logger.Warn("markdown cache write failed", "url", url, "error", err)
		}
	}
	return body, nil
}

// fetchRemote calls the conversion service with growing timeouts and
// jittered exponential backoff between attempts.
func (f *Fetcher) fetchRemote(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-time.After(jitter(backoff)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		timeout := jitter(fetchBaseTimeout + time.Duration(attempt)*fetchTimeoutGrowth)
		body, err := f.doRemote(ctx, url, timeout)
		if err == nil {
			return body, nil
		}
		lastErr = err
		f.logger.Warn("markdown fetch attempt failed",
			"url", url, "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("markdown: fetch failed after %d attempts: %w", fetchRetries, lastErr)
}

func (f *Fetcher) doRemote(ctx context.Context, url string, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.endpoint+"/"+url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("conversion service status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetchLocal fetches the raw HTML and converts it in-process.
func (f *Fetcher) fetchLocal(ctx context.Context, url string) (string, error) {
	page, err := f.static.GetHTML(ctx, url)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(string(page.Body))
	if err != nil {
		return "", fmt.Errorf("markdown: local conversion: %w", err)
	}
	// Mirror the remote service's preamble so the redirect detector sees the
	// resolved URL either way.
	return "URL Source: " + page.FinalURL + "\n\n" + md, nil
}

// jitter scales a duration by a uniform factor in [0.7, 1.3].
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
}
