package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	ImageURLs []string `json:"image_urls"`
}

func TestDecodeWellFormed(t *testing.T) {
	var p product
	require.NoError(t, Decode(`{"title":"Wrap Dress","price":128,"image_urls":["u1"]}`, &p))
	assert.Equal(t, "Wrap Dress", p.Title)
	assert.Equal(t, 128.0, p.Price)
}

func TestDecodeTruncatedArray(t *testing.T) {
	var p product
	require.NoError(t, Decode(`{"title":"Wrap Dress","image_urls":["u1","u2"`, &p))
	assert.Equal(t, "Wrap Dress", p.Title)
	assert.Equal(t, []string{"u1", "u2"}, p.ImageURLs)
}

func TestDecodeTrailingComma(t *testing.T) {
	var p product
	require.NoError(t, Decode(`{"title":"Wrap Dress","price":128,}`, &p))
	assert.Equal(t, 128.0, p.Price)
}

func TestDecodeFencedPayloadWithChatter(t *testing.T) {
	body := "Here is the extracted product:\n```json\n{\"title\":\"Wrap Dress\",\"price\":128}\n```\nLet me know if you need anything else."
	var p product
	require.NoError(t, Decode(body, &p))
	assert.Equal(t, "Wrap Dress", p.Title)
}

func TestDecodeUnrepairable(t *testing.T) {
	var p product
	assert.ErrorIs(t, Decode("the page could not be parsed", &p), ErrUnrepairable)
}

func TestRepairClosesUnterminatedString(t *testing.T) {
	assert.Equal(t, `{"title":"Wrap Dre"}`, Repair(`{"title":"Wrap Dre`))
}

func TestRepairIgnoresBracesInsideStrings(t *testing.T) {
	in := `{"title":"Dress {limited}","tags":["a"]}`
	assert.Equal(t, in, Repair(in))
}
