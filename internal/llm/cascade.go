package llm

import (
	"context"
	"errors"
	"log/slog"
)

// Cascade tries the primary model and falls back to the secondary on any
// failure, including truncation. Both failing surfaces both errors.
type Cascade struct {
	client    *Client
	primary   ProviderConfig
	secondary ProviderConfig
	logger    *slog.Logger
}

// NewCascade builds a two-model cascade. The secondary is optional; a zero
// Provider disables the fallback.
func NewCascade(client *Client, primary, secondary ProviderConfig, logger *slog.Logger) *Cascade {
	return &Cascade{
		client:    client,
		primary:   primary,
		secondary: secondary,
		logger:    logger.With("component", "llm"),
	}
}

// Complete runs the prompt through the cascade.
func (c *Cascade) Complete(ctx context.Context, prompt string, opts CallOptions) (*Result, error) {
	result, primaryErr := c.client.Call(ctx, c.primary, prompt, opts)
	if primaryErr == nil {
		return result, nil
	}
	if c.secondary.Provider == "" || ctx.Err() != nil {
		return nil, primaryErr
	}

	c.logger.Warn("primary model failed, trying secondary",
		"primary", c.primary.Model, "secondary", c.secondary.Model, "error", primaryErr)

	result, secondaryErr := c.client.Call(ctx, c.secondary, prompt, opts)
	if secondaryErr == nil {
		return result, nil
	}
	return nil, errors.Join(primaryErr, secondaryErr)
}
