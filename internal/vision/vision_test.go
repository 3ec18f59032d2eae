package vision

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func anthropicReply(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		encoded, err := jsonMarshalString(content)
		require.NoError(t, err)
		io.WriteString(w, `{"content":[{"text":`+encoded+`}],"stop_reason":"end_turn","usage":{}}`)
	}
}

func jsonMarshalString(s string) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.String(), nil
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(llm.NewClient(discardLogger()), llm.ProviderConfig{
		Provider: llm.ProviderAnthropic, Model: "vision-model", APIKey: "k", BaseURL: srv.URL,
	}, discardLogger())
	return c, srv.Close
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestExtractProduct(t *testing.T) {
	c, done := testClient(t, anthropicReply(t,
		`{"title":"Silk Wrap Dress","price":168,"image_urls":["https://is4.revolveassets.com/a.jpg"],"stock_state":"in_stock"}`))
	defer done()

	cfg, err := retailer.NewRegistry().Get("revolve")
	require.NoError(t, err)

	detail, err := c.ExtractProduct(context.Background(),
		[]llm.Image{{MediaType: "image/png", Data: pngBytes(t, 4, 4)}},
		cfg, "https://www.revolve.com/dp/LOVF-WD123/")
	require.NoError(t, err)
	assert.Equal(t, "Silk Wrap Dress", detail.Title)
	assert.Equal(t, "LOVF-WD123", detail.ProductCode)
}

func TestExtractCatalogCardsRepairsTruncatedArray(t *testing.T) {
	// Truncated mid-array: repair closes the bracket.
	c, done := testClient(t, anthropicReply(t,
		`[{"title":"Dress A","price":128,"on_sale":false},{"title":"Dress B","price":98,"on_sale":true}`))
	defer done()

	cards, err := c.ExtractCatalogCards(context.Background(),
		llm.Image{MediaType: "image/png", Data: pngBytes(t, 4, 4)})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Dress B", cards[1].Title)
	assert.True(t, cards[1].OnSale)
}

func TestFitImageWithinCapUnchanged(t *testing.T) {
	data := pngBytes(t, 100, 200)
	out, err := FitImage(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestFitImageDownscalesTallScreenshot(t *testing.T) {
	data := pngBytes(t, 8, 20000)
	out, err := FitImage(data)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dy(), 16383)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 1)
}
