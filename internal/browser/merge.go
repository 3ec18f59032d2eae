package browser

import (
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
	"github.com/wearwatch/catalog-monitor/internal/vision"
)

// mergeFuzzyFloor is the minimum title similarity for pairing a vision card
// with a DOM link when counts disagree.
const mergeFuzzyFloor = 0.5

// mergeCatalog combines vision cards (rich but URL-less) with DOM link
// entries (URLs but thin context). Equal counts merge positionally; unequal
// counts merge by fuzzy title match. DOM links no card claimed are kept as
// link-only records flagged for re-processing, so a product the model
// missed is never silently dropped.
func mergeCatalog(cards []vision.CatalogCard, entries []DOMEntry, cfg *retailer.Config, category string) []models.ProductSummary {
	var out []models.ProductSummary
	claimed := make([]bool, len(entries))

	if len(cards) == len(entries) {
		for i, card := range cards {
			out = append(out, merged(card, entries[i], cfg, category, len(out)))
			claimed[i] = true
		}
	} else {
		for _, card := range cards {
			best := -1
			bestSim := mergeFuzzyFloor
			for i, entry := range entries {
				if claimed[i] || entry.Title == "" {
					continue
				}
				if sim := textutil.Similarity(card.Title, entry.Title); sim >= bestSim {
					best = i
					bestSim = sim
				}
			}
			if best >= 0 {
				out = append(out, merged(card, entries[best], cfg, category, len(out)))
				claimed[best] = true
			}
			// A card with no matching link has no URL and cannot be kept.
		}
	}

	for i, entry := range entries {
		if claimed[i] {
			continue
		}
		out = append(out, models.ProductSummary{
			Retailer:       cfg.ID,
			Category:       category,
			URL:            entry.URL,
			Title:          entry.Title,
			Price:          entry.Price,
			ImageURL:       entry.ImageURL,
			ProductCode:    cfg.ExtractProductCode(entry.URL),
			Position:       len(out),
			NeedsReprocess: true,
		})
	}
	return out
}

func merged(card vision.CatalogCard, entry DOMEntry, cfg *retailer.Config, category string, position int) models.ProductSummary {
	title := card.Title
	if title == "" {
		title = entry.Title
	}
	price := card.Price
	if price == 0 {
		price = entry.Price
	}
	image := card.ImageURL
	if image == "" {
		image = entry.ImageURL
	}
	return models.ProductSummary{
		Retailer:    cfg.ID,
		Category:    category,
		URL:         entry.URL,
		Title:       title,
		Price:       price,
		ImageURL:    image,
		OnSale:      card.OnSale,
		ProductCode: cfg.ExtractProductCode(entry.URL),
		Position:    position,
	}
}
