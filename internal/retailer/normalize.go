package retailer

import (
	"net/url"
	"strings"
)

// trackingKeys are stripped for every retailer in addition to the
// retailer-specific StripQueryKeys list.
var trackingKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
}

// NormalizeURL canonicalizes a product URL for identity comparison:
// lower-cases scheme and host, strips tracking and retailer-specific query
// keys (or the whole query string when the retailer says so), drops
// fragments, and trims trailing punctuation. Idempotent:
// NormalizeURL(c, NormalizeURL(c, u)) == NormalizeURL(c, u).
func NormalizeURL(c *Config, rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	raw = strings.TrimRight(raw, ".,;)")
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if c != nil && c.DropAllQuery {
		u.RawQuery = ""
	} else {
		q := u.Query()
		for key := range q {
			lk := strings.ToLower(key)
			if trackingKeys[lk] || strings.HasPrefix(lk, "utm_") {
				q.Del(key)
				continue
			}
			if c != nil {
				for _, strip := range c.StripQueryKeys {
					if lk == strings.ToLower(strip) {
						q.Del(key)
						break
					}
				}
			}
		}
		u.RawQuery = q.Encode()
	}

	// A bare trailing slash on the path is not identity-relevant.
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return strings.TrimRight(u.String(), ".,;)")
}

// PriceBucket rounds a price to its indexable bucket (whole currency units).
// The title-price matcher retrieves candidates by bucket and refines at the
// application layer with a $0.01 window.
func PriceBucket(price float64) int {
	if price < 0 {
		return 0
	}
	return int(price + 0.5)
}
