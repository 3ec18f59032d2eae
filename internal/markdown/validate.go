package markdown

import (
	"fmt"
	"strings"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

// ValidateDetail checks a single-product extraction against the invariants
// the downstream publisher relies on. A non-empty return means the result is
// unusable and the browser tower should be tried.
func ValidateDetail(d *models.ProductDetail, cfg *retailer.Config) []string {
	var problems []string

	if n := len(d.Title); n < 5 || n > 200 {
		problems = append(problems, fmt.Sprintf("title length %d outside [5,200]", n))
	}
	if d.Price <= 0 {
		problems = append(problems, "price missing or non-positive")
	}
	if len(d.ImageURLs) == 0 {
		problems = append(problems, "no image URLs")
	} else if cfg.CDNHostSubstring != "" {
		for _, u := range d.ImageURLs {
			if !strings.Contains(u, cfg.CDNHostSubstring) {
				problems = append(problems, fmt.Sprintf("image URL off expected CDN: %s", u))
				break
			}
		}
	}
	return problems
}
