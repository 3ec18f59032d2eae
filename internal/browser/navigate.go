package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

const navigationTimeout = 60 * time.Second

// overlaySelectors close the modals retail sites throw up on first visit:
// cookie consent, newsletter capture, region pickers.
var overlaySelectors = []string{
	`button#onetrust-accept-btn-handler`,
	`button[id*="onetrust-accept"]`,
	`button#didomi-notice-agree-button`,
	`#truste-consent-button`,
	`button[aria-label*="Accept"]`,
	`button[aria-label="Close"]`,
	`button[aria-label="close"]`,
	`button[class*="modal"][class*="close"]`,
	`button[class*="newsletter"][class*="close"]`,
	`[data-testid="modal-close-button"]`,
	`button.email-capture__close`,
	`button.cookie-accept`,
	`button#accept-cookies`,
}

// navigate loads a URL and waits for the retailer's readiness condition.
func navigate(ctx context.Context, page *rod.Page, cfg *retailer.Config, url string) error {
	page = page.Context(ctx).Timeout(navigationTimeout)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load: %w", err)
	}

	switch cfg.Wait {
	case retailer.WaitSelector:
		if cfg.WaitSelector != "" {
			if _, err := page.Timeout(navigationTimeout).Element(cfg.WaitSelector); err != nil {
				return fmt.Errorf("browser: wait selector %q: %w", cfg.WaitSelector, err)
			}
		}
	case retailer.WaitNetworkIdle:
		wait := page.WaitRequestIdle(2*time.Second, nil, nil, nil)
		wait()
	case retailer.WaitFixedDelay:
		delay := cfg.WaitDelay
		if delay == 0 {
			delay = 2 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dismissOverlays clicks through whatever modal stack the page presents.
// Best effort; an undismissed overlay degrades extraction, it does not
// abort it.
func dismissOverlays(page *rod.Page) bool {
	dismissed := false
	for _, selector := range overlaySelectors {
		el, err := page.Timeout(1500 * time.Millisecond).Element(selector)
		if err != nil {
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		dismissed = true
		time.Sleep(300 * time.Millisecond)
	}
	return dismissed
}

// isHomepageRedirect recognizes the landing-page signature of a delisted
// product: a category-template title, or a resolved URL that lost the
// requested product path.
func isHomepageRedirect(page *rod.Page, requestedURL string) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}

	title := strings.ToLower(info.Title)
	for _, pattern := range []string{"new arrivals", "shop all", "search results", "page not found"} {
		if strings.Contains(title, pattern) {
			return true
		}
	}

	reqPath := pathOf(requestedURL)
	if reqPath == "" || reqPath == "/" {
		return false
	}
	return !strings.Contains(pathOf(info.URL), strings.TrimRight(reqPath, "/"))
}

func pathOf(raw string) string {
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[idx:]
	} else {
		return "/"
	}
	if idx := strings.IndexAny(rest, "?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// scrollToBottom drives infinite-scroll listings until the page height
// stops growing or maxSteps is reached.
func scrollToBottom(ctx context.Context, page *rod.Page, maxSteps int, pause time.Duration) error {
	lastHeight := -1
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := page.Eval(`() => {
			window.scrollTo(0, document.body.scrollHeight);
			return document.body.scrollHeight;
		}`)
		if err != nil {
			return fmt.Errorf("browser: scroll: %w", err)
		}
		height := result.Value.Int()
		if height == lastHeight {
			return nil
		}
		lastHeight = height
		time.Sleep(pause)
	}
	return nil
}

// clickLoadMore clicks a load-more button when present and returns the
// selector that matched. An empty result means the button is gone, which
// ends a hybrid walk.
func clickLoadMore(page *rod.Page, selectors []string) string {
	for _, selector := range selectors {
		el, err := page.Timeout(2 * time.Second).Element(selector)
		if err != nil {
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		return selector
	}
	return ""
}
