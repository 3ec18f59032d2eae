package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/jsonrepair"
	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/models"
)

const selectorPrompt = `Below is HTML from a retail product page. For each requested element, suggest the
single most specific CSS selector that locates it. Reply with a JSON object mapping element
name to selector and nothing else. Use null when no selector fits. Requested elements: %s

HTML:
%s`

// selectorHTMLLimit keeps the excerpt inside the model's context window.
const selectorHTMLLimit = 30000

// SuggestSelectors asks the model for CSS selectors that locate the given
// elements in the page HTML. Used when a screenshot read left fields empty
// and no learned selector matches.
func (c *Client) SuggestSelectors(ctx context.Context, html string, elements []models.ElementType) (map[models.ElementType]string, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	names := make([]string, len(elements))
	for i, et := range elements {
		names[i] = string(et)
	}
	if len(html) > selectorHTMLLimit {
		html = html[:selectorHTMLLimit]
	}

	result, err := c.llm.Call(ctx, c.cfg, fmt.Sprintf(selectorPrompt, strings.Join(names, ", "), html), llm.CallOptions{
		MaxTokens: 1024,
		Timeout:   60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: selector call: %w", err)
	}

	var raw map[string]string
	if err := jsonrepair.Decode(result.Content, &raw); err != nil {
		return nil, fmt.Errorf("vision: parse selector reply: %w", err)
	}
	hints := make(map[models.ElementType]string, len(raw))
	for name, selector := range raw {
		if selector == "" {
			continue
		}
		hints[models.ElementType(name)] = selector
	}
	return hints, nil
}
