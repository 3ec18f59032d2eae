package browser

import (
	"fmt"
	"math"

	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

const (
	titleWarnSimilarity     = 0.7
	titleOverrideSimilarity = 0.5
	priceWarnRatio          = 0.3
	priceOverrideRatio      = 0.5
)

// reconcileTitle cross-validates the vision title against the DOM title.
// The vision value is authoritative unless the two disagree so badly that
// the model plainly read the wrong element, in which case the DOM wins.
func reconcileTitle(visionTitle, domTitle string) (title, warning string) {
	if domTitle == "" {
		return visionTitle, ""
	}
	if visionTitle == "" {
		return domTitle, ""
	}
	sim := textutil.Similarity(visionTitle, domTitle)
	switch {
	case sim < titleOverrideSimilarity:
		return domTitle, fmt.Sprintf("vision title overridden by DOM (similarity %.2f): %q vs %q", sim, visionTitle, domTitle)
	case sim < titleWarnSimilarity:
		return visionTitle, fmt.Sprintf("vision/DOM title disagreement (similarity %.2f): %q vs %q", sim, visionTitle, domTitle)
	default:
		return visionTitle, ""
	}
}

// reconcilePrice is the price analog of reconcileTitle, on relative
// difference instead of string similarity.
func reconcilePrice(visionPrice, domPrice float64) (price float64, warning string) {
	if domPrice <= 0 {
		return visionPrice, ""
	}
	if visionPrice <= 0 {
		return domPrice, ""
	}
	ratio := math.Abs(visionPrice-domPrice) / math.Max(visionPrice, domPrice)
	switch {
	case ratio > priceOverrideRatio:
		return domPrice, fmt.Sprintf("vision price overridden by DOM (disagreement %.0f%%): %.2f vs %.2f", ratio*100, visionPrice, domPrice)
	case ratio > priceWarnRatio:
		return visionPrice, fmt.Sprintf("vision/DOM price disagreement (%.0f%%): %.2f vs %.2f", ratio*100, visionPrice, domPrice)
	default:
		return visionPrice, ""
	}
}
