package retailer

import (
	"fmt"
	"net/url"
)

// PageURL computes the listing URL for a 1-based page index according to the
// retailer's pagination mode.
//
// Infinite-scroll retailers return the base URL on every step: the browser
// tower captures everything rendered on one visit, so multi-page walking is
// degenerate for them. Hybrid load-more retailers get paginated URLs first
// and fall back to clicking the load-more control inside the browser tower.
func PageURL(c *Config, baseURL string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page index must be >= 1, got %d", page)
	}
	switch c.Pagination {
	case PaginationPaged, PaginationHybridLoadMore:
		if page == 1 {
			return baseURL, nil
		}
		return withQueryParam(baseURL, "page", fmt.Sprintf("%d", page))
	case PaginationOffset:
		if page == 1 {
			return baseURL, nil
		}
		offset := (page - 1) * c.ItemsPerPage
		u, err := withQueryParam(baseURL, "start", fmt.Sprintf("%d", offset))
		if err != nil {
			return "", err
		}
		return withQueryParam(u, "rows", fmt.Sprintf("%d", c.ItemsPerPage))
	case PaginationInfiniteScroll:
		return baseURL, nil
	default:
		return "", fmt.Errorf("unsupported pagination mode %q", c.Pagination)
	}
}

func withQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
