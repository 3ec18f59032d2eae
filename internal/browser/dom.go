package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

// genericSelectors are the last-resort selectors per element, tried after
// learner-ranked patterns and vision-generated hints.
var genericSelectors = map[models.ElementType][]string{
	models.ElementProductLink: {
		`a[href*="/dp/"]`,
		`a[href*="/product"]`,
		`a[href*="/shop/"]`,
		`a[href*="/s/"]`,
		`[class*="product-card"] a[href]`,
		`[class*="product-tile"] a[href]`,
		`article a[href]`,
	},
	models.ElementTitle: {
		`h1[class*="product"]`,
		`[class*="product-name"]`,
		`[class*="product-title"]`,
		`h1`,
	},
	models.ElementPrice: {
		`[class*="price"]:not([class*="original"]):not([class*="was"])`,
		`span.price`,
		`[data-testid*="price"]`,
	},
	models.ElementImage: {
		`meta[property="og:image"]`,
		`img[class*="product"][src]`,
		`[class*="gallery"] img[src]`,
	},
	models.ElementDescription: {
		`[class*="product-description"]`,
		`[class*="description"] p`,
		`meta[name="description"]`,
	},
	models.ElementLoadMoreButton: {
		`button[class*="load-more"]`,
		`button[data-testid*="load-more"]`,
		`a[class*="load-more"]`,
	},
}

// DOMEntry is one product link pulled out of a listing's DOM, with whatever
// card context was readable around it.
type DOMEntry struct {
	URL      string
	Title    string
	Price    float64
	ImageURL string
}

// domCatalog parses a listing's HTML and extracts product-link entries.
// Selector sets are tried in order; the first one that matches anything
// wins, and its identity is reported for outcome recording.
func domCatalog(html, baseURL string, cfg *retailer.Config, selectorSets [][]string) (entries []DOMEntry, winner string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ""
	}
	base, _ := url.Parse(baseURL)

	for _, set := range selectorSets {
		for _, selector := range set {
			seen := map[string]bool{}
			doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
				href, ok := sel.Attr("href")
				if !ok {
					return
				}
				abs := absolutize(base, href)
				if abs == "" || seen[abs] {
					return
				}
				if cfg.ProductCodePattern != nil && cfg.ExtractProductCode(abs) == "" {
					return
				}
				seen[abs] = true
				entries = append(entries, DOMEntry{
					URL:      abs,
					Title:    cardTitle(sel),
					Price:    cardPrice(sel),
					ImageURL: cardImage(sel),
				})
			})
			if len(entries) > 0 {
				return entries, selector
			}
		}
	}
	return nil, ""
}

// domField extracts one text field from a product page's HTML using ordered
// selector sets.
func domField(html string, selectorSets [][]string) (value, winner string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	for _, set := range selectorSets {
		for _, selector := range set {
			sel := doc.Find(selector).First()
			if sel.Length() == 0 {
				continue
			}
			text := strings.TrimSpace(sel.Text())
			if text == "" {
				if content, ok := sel.Attr("content"); ok {
					text = strings.TrimSpace(content)
				} else if src, ok := sel.Attr("src"); ok {
					text = strings.TrimSpace(src)
				}
			}
			if text != "" {
				return text, selector
			}
		}
	}
	return "", ""
}

// cardTitle reads a title from the anchor itself or its surrounding card.
func cardTitle(sel *goquery.Selection) string {
	if label, ok := sel.Attr("aria-label"); ok && label != "" {
		return strings.TrimSpace(label)
	}
	if img := sel.Find("img[alt]").First(); img.Length() > 0 {
		if alt, ok := img.Attr("alt"); ok && alt != "" {
			return strings.TrimSpace(alt)
		}
	}
	card := sel.Closest(`[class*="product"], article, li`)
	for _, titleSel := range []string{`[class*="name"]`, `[class*="title"]`, "h2", "h3"} {
		if t := card.Find(titleSel).First(); t.Length() > 0 {
			if text := strings.TrimSpace(t.Text()); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(sel.Text())
}

// cardPrice pulls a price from the card around the anchor.
func cardPrice(sel *goquery.Selection) float64 {
	card := sel.Closest(`[class*="product"], article, li`)
	if card.Length() == 0 {
		card = sel
	}
	priceText := card.Find(`[class*="price"]`).First().Text()
	if priceText == "" {
		priceText = card.Text()
	}
	if v, ok := textutil.ParsePrice(priceText); ok {
		return v
	}
	return 0
}

func cardImage(sel *goquery.Selection) string {
	card := sel.Closest(`[class*="product"], article, li`)
	if card.Length() == 0 {
		card = sel
	}
	img := card.Find("img[src]").First()
	src, _ := img.Attr("src")
	return src
}

func absolutize(base *url.URL, href string) string {
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
