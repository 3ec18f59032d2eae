package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

func revolveConfig(t *testing.T) *retailer.Config {
	t.Helper()
	cfg, err := retailer.NewRegistry().Get("revolve")
	require.NoError(t, err)
	return cfg
}

func TestParseCatalogReply(t *testing.T) {
	cfg := revolveConfig(t)
	reply := `Here are the products I found:
PRODUCT|URL=https://www.revolve.com/dp/LOVF-WD123/|TITLE=Silk Wrap Dress|PRICE=$168.00|IMAGE=https://is4.revolveassets.com/a.jpg|SALE=false
PRODUCT|URL=https://www.revolve.com/dp/LOVF-WD124/|TITLE=Satin Slip|PRICE=1,298.00|SALE=true
PRODUCT|TITLE=Missing URL|PRICE=$10
PRODUCT|URL=https://www.revolve.com/dp/LOVF-WD125/|PRICE=$20
not a product line`

	products := ParseCatalogReply(reply, cfg, "dresses")
	require.Len(t, products, 2)

	assert.Equal(t, "https://www.revolve.com/dp/LOVF-WD123/", products[0].URL)
	assert.Equal(t, "Silk Wrap Dress", products[0].Title)
	assert.Equal(t, 168.0, products[0].Price)
	assert.Equal(t, "LOVF-WD123", products[0].ProductCode)
	assert.False(t, products[0].OnSale)
	assert.Equal(t, 0, products[0].Position)

	assert.Equal(t, 1298.0, products[1].Price)
	assert.True(t, products[1].OnSale)
	assert.Equal(t, 1, products[1].Position)
	assert.Equal(t, "dresses", products[1].Category)
}

func TestParseCatalogReplyToleratesMissingSegments(t *testing.T) {
	cfg := revolveConfig(t)
	reply := `PRODUCT|URL=https://www.revolve.com/dp/X/|TITLE=Bare Minimum`
	products := ParseCatalogReply(reply, cfg, "tops")
	require.Len(t, products, 1)
	assert.Zero(t, products[0].Price)
	assert.Empty(t, products[0].ImageURL)
}

func TestParseProductReply(t *testing.T) {
	cfg := revolveConfig(t)
	reply := `{
		"title": "Silk Wrap Dress",
		"brand": "Lovers and Friends",
		"price": "$168.00",
		"original_price": 228,
		"on_sale": true,
		"stock_state": "low",
		"image_urls": ["https://is4.revolveassets.com/a.jpg"],
		"colors": ["ivory", "black"],
		"neckline": "v-neck"
	}`

	detail, err := ParseProductReply(reply, cfg, "https://www.revolve.com/dp/LOVF-WD123/")
	require.NoError(t, err)
	assert.Equal(t, "Silk Wrap Dress", detail.Title)
	assert.Equal(t, 168.0, detail.Price)
	require.NotNil(t, detail.OriginalPrice)
	assert.Equal(t, 228.0, *detail.OriginalPrice)
	assert.Equal(t, models.StockLow, detail.Stock)
	assert.Equal(t, "LOVF-WD123", detail.ProductCode)
	assert.Equal(t, []string{"ivory", "black"}, detail.Colors)
}

func TestParseProductReplyRepairsUnclosedBrackets(t *testing.T) {
	cfg := revolveConfig(t)
	// Two unclosed brackets, no trailing commas: repair appends ]} in order.
	reply := `{"title":"A dress","price":"$10","image_urls":["u1","u2"`

	detail, err := ParseProductReply(reply, cfg, "https://www.revolve.com/dp/LOVF-WD123/")
	require.NoError(t, err)
	assert.Equal(t, "A dress", detail.Title)
	assert.Equal(t, 10.0, detail.Price)
	assert.Equal(t, []string{"u1", "u2"}, detail.ImageURLs)
}

func TestParseProductReplyUnrepairableFails(t *testing.T) {
	cfg := revolveConfig(t)
	_, err := ParseProductReply("I could not find a product on this page.", cfg, "https://x/")
	assert.Error(t, err)
}

func TestValidateDetail(t *testing.T) {
	cfg := revolveConfig(t)
	good := &models.ProductDetail{
		Title:     "Silk Wrap Dress",
		Price:     168,
		ImageURLs: []string{"https://is4.revolveassets.com/a.jpg"},
	}
	assert.Empty(t, ValidateDetail(good, cfg))

	short := &models.ProductDetail{Title: "Xy", Price: 168, ImageURLs: good.ImageURLs}
	assert.NotEmpty(t, ValidateDetail(short, cfg))

	noPrice := &models.ProductDetail{Title: good.Title, ImageURLs: good.ImageURLs}
	assert.NotEmpty(t, ValidateDetail(noPrice, cfg))

	noImages := &models.ProductDetail{Title: good.Title, Price: 168}
	assert.NotEmpty(t, ValidateDetail(noImages, cfg))

	wrongCDN := &models.ProductDetail{
		Title: good.Title, Price: 168,
		ImageURLs: []string{"https://evil.example.com/a.jpg"},
	}
	assert.NotEmpty(t, ValidateDetail(wrongCDN, cfg))
}
