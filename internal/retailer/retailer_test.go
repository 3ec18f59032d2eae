package retailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGet(t *testing.T, id string) *Config {
	t.Helper()
	cfg, err := NewRegistry().Get(id)
	require.NoError(t, err)
	return cfg
}

func TestNormalizeURLStripsTrackingAndRetailerKeys(t *testing.T) {
	cfg := mustGet(t, "revolve")

	got := NormalizeURL(cfg, "HTTPS://WWW.Revolve.com/dresses/dp/LOVF-WD123/?navsrc=grid&utm_source=mail&sortBy=newest#reviews")
	assert.Equal(t, "https://www.revolve.com/dresses/dp/LOVF-WD123", got)
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	samples := []string{
		"https://www.revolve.com/dresses/dp/LOVF-WD123/?navsrc=grid&gclid=abc",
		"https://www.nordstrom.com/s/floral-dress/7234581?origin=category&color=400",
		"https://www.freepeople.com/shop/silk-midi/?color=bla&utm_campaign=x.",
		"not a url at all",
	}
	for _, id := range reg.IDs() {
		cfg, err := reg.Get(id)
		require.NoError(t, err)
		for _, s := range samples {
			once := NormalizeURL(cfg, s)
			assert.Equal(t, once, NormalizeURL(cfg, once), "retailer %s input %q", id, s)
		}
	}
}

func TestNormalizeURLDropAllQuery(t *testing.T) {
	cfg := mustGet(t, "nordstrom")

	got := NormalizeURL(cfg, "https://www.nordstrom.com/s/floral-dress/7234581?origin=category&breadcrumb=Home")
	assert.Equal(t, "https://www.nordstrom.com/s/floral-dress/7234581", got)
}

func TestNormalizeURLTrimsTrailingPunctuation(t *testing.T) {
	cfg := mustGet(t, "revolve")

	got := NormalizeURL(cfg, "https://www.revolve.com/dresses/dp/LOVF-WD123/.")
	assert.Equal(t, "https://www.revolve.com/dresses/dp/LOVF-WD123", got)
}

func TestExtractProductCode(t *testing.T) {
	tests := []struct {
		retailer string
		url      string
		want     string
	}{
		{"revolve", "https://www.revolve.com/dresses/dp/LOVF-WD123/", "LOVF-WD123"},
		{"revolve", "https://www.revolve.com/about-us/", ""},
		{"nordstrom", "https://www.nordstrom.com/s/floral-dress/7234581", "7234581"},
		{"aritzia", "https://www.aritzia.com/us/en/product/sculpt-knit-dress/115342.html", "115342"},
		{"reformation", "https://www.thereformation.com/products/kourtney-dress-1314151", "1314151"},
	}
	reg := NewRegistry()
	for _, tt := range tests {
		cfg, err := reg.Get(tt.retailer)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cfg.ExtractProductCode(tt.url), "%s %s", tt.retailer, tt.url)
	}
}

func TestPageURLPagedMode(t *testing.T) {
	cfg := mustGet(t, "revolve")
	base := "https://www.revolve.com/dresses/br/a8e981/?sortBy=newest"

	first, err := PageURL(cfg, base, 1)
	require.NoError(t, err)
	assert.Equal(t, base, first)

	third, err := PageURL(cfg, base, 3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.revolve.com/dresses/br/a8e981/?page=3&sortBy=newest", third)
}

func TestPageURLOffsetMode(t *testing.T) {
	cfg := mustGet(t, "freepeople")

	second, err := PageURL(cfg, "https://www.freepeople.com/dresses/", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.freepeople.com/dresses/?rows=96&start=96", second)
}

func TestPageURLInfiniteScrollIsDegenerate(t *testing.T) {
	cfg := mustGet(t, "aritzia")
	base := "https://www.aritzia.com/us/en/clothing/dresses"

	for page := 1; page <= 3; page++ {
		got, err := PageURL(cfg, base, page)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	}
}

func TestPageURLRejectsZeroPage(t *testing.T) {
	cfg := mustGet(t, "revolve")
	_, err := PageURL(cfg, "https://www.revolve.com/dresses/br/a8e981/", 0)
	assert.Error(t, err)
}

func TestRegistryUnknownRetailer(t *testing.T) {
	_, err := NewRegistry().Get("bogus")
	assert.ErrorIs(t, err, ErrUnknownRetailer)
}

func TestSortURLFallsBackWithoutNewestSort(t *testing.T) {
	cfg := mustGet(t, "aritzia")
	u, sorted := cfg.SortURL("dresses")
	assert.False(t, sorted)
	assert.Equal(t, cfg.CategoryURLs["dresses"], u)

	cfg = mustGet(t, "revolve")
	u, sorted = cfg.SortURL("dresses")
	assert.True(t, sorted)
	assert.Contains(t, u, "sortBy=newest")
}

func TestPriceBucket(t *testing.T) {
	assert.Equal(t, 127, PriceBucket(127.4))
	assert.Equal(t, 128, PriceBucket(127.5))
	assert.Equal(t, 0, PriceBucket(-5))
}
