package markdown

import "strings"

// charsPerToken is the rough character-to-token ratio used for slicing.
// Markdown from retail pages is URL-heavy, which tokenizes densely, so the
// estimate errs low.
const charsPerToken = 4

// EstimateTokens approximates the token count of a markdown body.
func EstimateTokens(body string) int {
	return len(body) / charsPerToken
}

// SliceForTokens trims a markdown body to roughly maxTokens, centering the
// kept window on the first product-grid marker so the slice contains the
// listing rather than navigation chrome. Without a marker hit the head of
// the document is kept.
func SliceForTokens(body string, maxTokens int, gridMarkers []string) string {
	if maxTokens <= 0 || EstimateTokens(body) <= maxTokens {
		return body
	}
	window := maxTokens * charsPerToken

	center := -1
	for _, marker := range gridMarkers {
		if idx := strings.Index(body, marker); idx >= 0 {
			center = idx
			break
		}
	}
	if center < 0 {
		return body[:window]
	}

	start := center - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(body) {
		end = len(body)
		start = end - window
	}
	return body[start:end]
}
