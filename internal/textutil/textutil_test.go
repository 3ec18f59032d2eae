package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityNormalizesCaseAndWhitespace(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Floral Wrap Dress", "floral  wrap dress"))
}

func TestSimilarityEmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("Floral Wrap Dress", ""))
	// Two empty-after-normalization strings are equal, not dissimilar.
	assert.Equal(t, 1.0, Similarity("   ", " "))
}

func TestSimilarityKnownRatio(t *testing.T) {
	// "dress 100" vs "dress 900": 8 of 9 characters match on each side.
	assert.InDelta(t, 0.889, Similarity("Dress 100", "Dress 900"), 0.001)
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a, b := "Silk Wrap Midi Dress Sage", "Silk Wrap Midi Dress Moss Green"
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,234.56", 1234.56, true},
		{"USD 42.50", 42.5, true},
		{"128", 128, true},
		{"Now $98.00 (was $168.00)", 98, true},
		{"call for price", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestIsPriceString(t *testing.T) {
	assert.True(t, IsPriceString("$128.00"))
	assert.True(t, IsPriceString("128"))
	assert.True(t, IsPriceString("USD 42.50"))
	assert.False(t, IsPriceString("Now $98.00 (was $168.00)"))
	assert.False(t, IsPriceString("128.999"))
	assert.False(t, IsPriceString("sold out"))
}
