package markdown

import (
	"strings"

	"github.com/wearwatch/catalog-monitor/internal/jsonrepair"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
	"github.com/wearwatch/catalog-monitor/internal/textutil"
)

// catalogSentinel prefixes every product line in an LLM catalog reply.
const catalogSentinel = "PRODUCT|"

// ParseCatalogReply parses the pipe-delimited catalog schema. Lines without
// the sentinel are ignored; products without both URL and title are dropped.
func ParseCatalogReply(content string, cfg *retailer.Config, category string) []models.ProductSummary {
	var products []models.ProductSummary
	position := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, catalogSentinel)
		if !ok {
			continue
		}

		p := models.ProductSummary{Retailer: cfg.ID, Category: category}
		for _, segment := range strings.Split(rest, "|") {
			key, value, found := strings.Cut(segment, "=")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "URL":
				p.URL = value
			case "TITLE":
				p.Title = value
			case "PRICE":
				if v, ok := textutil.ParsePrice(value); ok {
					p.Price = v
				}
			case "IMAGE":
				p.ImageURL = value
			case "SALE":
				p.OnSale = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
			}
		}

		if p.URL == "" || p.Title == "" {
			continue
		}
		p.ProductCode = cfg.ExtractProductCode(p.URL)
		p.Position = position
		position++
		products = append(products, p)
	}
	return products
}

// productPayload is the known key set of a single-product LLM reply.
type productPayload struct {
	Title         string   `json:"title"`
	Brand         string   `json:"brand"`
	Price         any      `json:"price"`
	OriginalPrice any      `json:"original_price"`
	Currency      string   `json:"currency"`
	OnSale        bool     `json:"on_sale"`
	StockState    string   `json:"stock_state"`
	Category      string   `json:"category"`
	ImageURLs     []string `json:"image_urls"`
	Description   string   `json:"description"`
	Colors        []string `json:"colors"`
	Sizes         []string `json:"sizes"`
	Material      string   `json:"material"`
	CareNotes     string   `json:"care_notes"`
	Neckline      string   `json:"neckline"`
	SleeveLength  string   `json:"sleeve_length"`
}

// ParseProductReply decodes a single-product JSON reply, applying one repair
// pass when the body is malformed.
func ParseProductReply(content string, cfg *retailer.Config, url string) (*models.ProductDetail, error) {
	var payload productPayload
	if err := jsonrepair.Decode(content, &payload); err != nil {
		return nil, err
	}

	detail := &models.ProductDetail{
		Retailer:     cfg.ID,
		URL:          url,
		ProductCode:  cfg.ExtractProductCode(url),
		Title:        strings.TrimSpace(payload.Title),
		Brand:        strings.TrimSpace(payload.Brand),
		Currency:     payload.Currency,
		OnSale:       payload.OnSale,
		Stock:        coerceStock(payload.StockState),
		Category:     payload.Category,
		ImageURLs:    payload.ImageURLs,
		Description:  payload.Description,
		Colors:       payload.Colors,
		Sizes:        payload.Sizes,
		Material:     payload.Material,
		CareNotes:    payload.CareNotes,
		Neckline:     payload.Neckline,
		SleeveLength: payload.SleeveLength,
	}
	if v, ok := coercePrice(payload.Price); ok {
		detail.Price = v
	}
	if v, ok := coercePrice(payload.OriginalPrice); ok && v > 0 {
		detail.OriginalPrice = &v
	}
	return detail, nil
}

// coercePrice accepts the number-or-string price forms models emit.
func coercePrice(v any) (float64, bool) {
	switch p := v.(type) {
	case float64:
		return p, true
	case string:
		return textutil.ParsePrice(p)
	default:
		return 0, false
	}
}

func coerceStock(s string) models.StockState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out", "out_of_stock", "sold_out", "sold out":
		return models.StockOut
	case "low", "low_stock", "few left":
		return models.StockLow
	default:
		return models.StockInStock
	}
}
