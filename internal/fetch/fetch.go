// Package fetch retrieves raw retailer HTML over plain HTTP, for retailers
// whose pages render server-side. Anything needing a real browser goes
// through the browser extractor instead.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// ErrFetchFailed wraps transport-level failures.
var ErrFetchFailed = errors.New("fetch failed")

// Page is one fetched document.
type Page struct {
	Body     []byte
	FinalURL string // after redirects
	Status   int
}

// Client fetches pages with browser-like headers.
type Client struct {
	timeout time.Duration
	probe   *http.Client
	logger  *slog.Logger
}

// NewClient creates a fetch client. The timeout applies per request.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		timeout: timeout,
		probe: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.With("component", "fetch"),
	}
}

// GetHTML fetches a page and returns its body and final URL. Redirects are
// followed; the caller compares FinalURL against the request to detect
// homepage bounces.
func (c *Client) GetHTML(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.MaxDepth(1),
	)
	collector.SetRequestTimeout(c.timeout)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
	})

	var (
		page     Page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page.Body = r.Body
		page.FinalURL = r.Request.URL.String()
		page.Status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.Status = r.StatusCode
		}
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, errors.Join(ErrFetchFailed, fetchErr)
	}
	return &page, nil
}

// ProbeDelisted sends a HEAD request to decide whether a product page is
// gone. Only a definitive 404 or 410 counts; timeouts and transport errors
// return an error so a slow origin is never mistaken for a delisting.
func (c *Client) ProbeDelisted(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.probe.Do(req)
	if err != nil {
		return false, errors.Join(ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return true, nil
	default:
		return false, nil
	}
}
