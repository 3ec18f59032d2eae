package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceForTokensUnderThresholdUnchanged(t *testing.T) {
	body := "short document"
	assert.Equal(t, body, SliceForTokens(body, 25000, []string{"product-grid"}))
}

func TestSliceForTokensCentersOnGridMarker(t *testing.T) {
	nav := strings.Repeat("nav ", 20000)
	grid := "product-grid " + strings.Repeat("item ", 5000)
	footer := strings.Repeat("footer ", 20000)
	body := nav + grid + footer

	sliced := SliceForTokens(body, 15000, []string{"product-grid"})
	assert.Contains(t, sliced, "product-grid")
	assert.LessOrEqual(t, len(sliced), 15000*charsPerToken)
	assert.Less(t, len(sliced), len(body))
}

func TestSliceForTokensNoMarkerKeepsHead(t *testing.T) {
	body := "head " + strings.Repeat("x", 200000)
	sliced := SliceForTokens(body, 1000, []string{"absent-marker"})
	assert.True(t, strings.HasPrefix(sliced, "head "))
	assert.Equal(t, 1000*charsPerToken, len(sliced))
}

func TestSliceForTokensMarkerNearEnd(t *testing.T) {
	body := strings.Repeat("x", 200000) + "product-grid tail"
	sliced := SliceForTokens(body, 1000, []string{"product-grid"})
	assert.Contains(t, sliced, "product-grid")
	assert.Equal(t, 1000*charsPerToken, len(sliced))
}
