// Package vision asks an image-understanding model to read product pages
// from screenshots. Replies come back as JSON and run through the same
// repair path as the markdown tower's LLM output.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/jsonrepair"
	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/markdown"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

const productPrompt = `These screenshots show one clothing product page. Extract the product as a single
JSON object and nothing else. Keys: title, brand, price, original_price, currency, on_sale,
stock_state, category, image_urls, description, colors, sizes, material, care_notes,
neckline, sleeve_length. Use null for unknown fields. price and original_price are numbers.
stock_state is one of in_stock, low, out.`

const catalogPrompt = `This screenshot shows a retail catalog listing page. Extract every visible product
card as a JSON array and nothing else. Each element: {"title": string, "price": number,
"image_url": string or null, "on_sale": boolean}. Preserve top-to-bottom, left-to-right order.
Skip navigation, ads, and recently-viewed carousels.`

// CatalogCard is one product card read off a listing screenshot.
type CatalogCard struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
	OnSale   bool    `json:"on_sale"`
}

// Client calls the vision model.
type Client struct {
	llm    *llm.Client
	cfg    llm.ProviderConfig
	logger *slog.Logger
}

// NewClient creates a vision client for one model endpoint.
func NewClient(client *llm.Client, cfg llm.ProviderConfig, logger *slog.Logger) *Client {
	return &Client{llm: client, cfg: cfg, logger: logger.With("component", "vision")}
}

// ExtractProduct reads a single-product page from its screenshot set.
func (c *Client) ExtractProduct(ctx context.Context, images []llm.Image, rcfg *retailer.Config, url string) (*models.ProductDetail, error) {
	result, err := c.llm.Call(ctx, c.cfg, productPrompt, llm.CallOptions{
		MaxTokens: 2048,
		Timeout:   120 * time.Second,
		Images:    images,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: product call: %w", err)
	}
	detail, err := markdown.ParseProductReply(result.Content, rcfg, url)
	if err != nil {
		return nil, fmt.Errorf("vision: parse product reply: %w", err)
	}
	return detail, nil
}

// ExtractCatalogCards reads product cards from one full-page screenshot.
func (c *Client) ExtractCatalogCards(ctx context.Context, image llm.Image) ([]CatalogCard, error) {
	result, err := c.llm.Call(ctx, c.cfg, catalogPrompt, llm.CallOptions{
		MaxTokens: 8192,
		Timeout:   5 * time.Minute,
		Images:    []llm.Image{image},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: catalog call: %w", err)
	}

	var cards []CatalogCard
	if err := jsonrepair.Decode(result.Content, &cards); err != nil {
		return nil, fmt.Errorf("vision: parse catalog reply: %w", err)
	}
	return cards, nil
}
