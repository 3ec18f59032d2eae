package detect

import (
	"context"
	"math"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/store"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

const (
	dupTitleSimilarity = 0.9
	dupPriceTolerance  = 0.01 // relative
)

// findFuzzyDuplicate checks the products table for a row that is, for all
// practical purposes, the same listing under a different URL: near-identical
// title and a price within one percent. Candidates come from the price
// bucket index so the scan stays bounded.
func findFuzzyDuplicate(ctx context.Context, repo *store.ProductRepo, ret, title string, price float64) (*models.Product, error) {
	if title == "" || price <= 0 {
		return nil, store.ErrNotFound
	}
	candidates, err := repo.CandidatesByPrice(ctx, ret, price)
	if err != nil {
		return nil, err
	}

	var best *models.Product
	bestSim := dupTitleSimilarity
	for _, p := range candidates {
		if p.PriceValue <= 0 {
			continue
		}
		if math.Abs(p.PriceValue-price)/price > dupPriceTolerance {
			continue
		}
		if sim := textutil.Similarity(title, p.Title); sim >= bestSim {
			best = p
			bestSim = sim
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}
