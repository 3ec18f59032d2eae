// Package llm makes direct chat-completion calls against hosted model APIs.
// Extraction prompts run at low temperature with tight output ceilings; a
// truncated reply is an error so the caller can fall back rather than parse
// a half-written product list.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Providers this pipeline knows how to talk to.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// ErrEmptyResponse is returned when the API replies without content.
var ErrEmptyResponse = errors.New("llm: empty response")

// ErrTruncated is returned when generation stopped at the token ceiling.
var ErrTruncated = errors.New("llm: output truncated")

// ProviderConfig identifies one model endpoint.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // override for self-hosted or test endpoints
}

// Image is one screenshot attached to a vision call.
type Image struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// CallOptions configures a single completion call.
type CallOptions struct {
	Temperature float64 // default 0.1
	MaxTokens   int     // default 2048
	Timeout     time.Duration
	Images      []Image
}

// Result is a parsed completion.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
	Model        string
}

// Client makes provider API calls.
type Client struct {
	logger *slog.Logger
}

// NewClient creates an LLM client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger.With("component", "llm")}
}

// Call sends one prompt and returns the parsed reply. A reply that hit the
// token ceiling returns the content together with ErrTruncated.
func (c *Client) Call(ctx context.Context, cfg ProviderConfig, prompt string, opts CallOptions) (*Result, error) {
	if cfg.APIKey == "" && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("llm: no API key for provider %s", cfg.Provider)
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}

	body, err := json.Marshal(c.requestBody(cfg, prompt, opts))
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(cfg), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, cfg)

	c.logger.Debug("llm request",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"prompt_length", len(prompt),
		"images", len(opts.Images),
		"max_tokens", opts.MaxTokens,
	)

	httpClient := &http.Client{Timeout: opts.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: API error (status %d): %s", resp.StatusCode, respBody)
	}

	result, err := parseResponse(cfg.Provider, respBody)
	if err != nil {
		return nil, err
	}
	result.Model = cfg.Model

	if result.FinishReason == "length" {
		c.logger.Warn("llm output truncated",
			"provider", cfg.Provider, "model", cfg.Model,
			"output_tokens", result.OutputTokens, "max_tokens", opts.MaxTokens)
		return result, ErrTruncated
	}
	return result, nil
}

func (c *Client) requestBody(cfg ProviderConfig, prompt string, opts CallOptions) map[string]any {
	var content any = prompt
	if len(opts.Images) > 0 {
		content = messageParts(cfg.Provider, prompt, opts.Images)
	}
	return map[string]any{
		"model": cfg.Model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}
}

// messageParts builds the multimodal content array. Anthropic wants inline
// base64 sources; OpenAI-compatible APIs want data URLs.
func messageParts(provider, prompt string, images []Image) []map[string]any {
	parts := make([]map[string]any, 0, len(images)+1)
	for _, img := range images {
		encoded := base64.StdEncoding.EncodeToString(img.Data)
		if provider == ProviderAnthropic {
			parts = append(parts, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": img.MediaType,
					"data":       encoded,
				},
			})
		} else {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": "data:" + img.MediaType + ";base64," + encoded,
				},
			})
		}
	}
	return append(parts, map[string]any{"type": "text", "text": prompt})
}

func apiURL(cfg ProviderConfig) string {
	base := cfg.BaseURL
	switch cfg.Provider {
	case ProviderAnthropic:
		if base == "" {
			base = "https://api.anthropic.com"
		}
		return base + "/v1/messages"
	case ProviderOpenRouter:
		if base == "" {
			base = "https://openrouter.ai/api"
		}
		return base + "/v1/chat/completions"
	case ProviderOllama:
		if base == "" {
			base = "http://localhost:11434"
		}
		return base + "/api/chat"
	default:
		if base == "" {
			base = "https://api.openai.com"
		}
		return base + "/v1/chat/completions"
	}
}

func setAuthHeaders(req *http.Request, cfg ProviderConfig) {
	switch cfg.Provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOllama:
		// No auth.
	default:
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
}

func parseResponse(provider string, body []byte) (*Result, error) {
	switch provider {
	case ProviderAnthropic:
		return parseAnthropicFormat(body)
	case ProviderOllama:
		return parseOllamaFormat(body)
	default:
		return parseOpenAIFormat(body)
	}
}

func parseAnthropicFormat(body []byte) (*Result, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	result := &Result{
		Content:      resp.Content[0].Text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	switch resp.StopReason {
	case "max_tokens":
		result.FinishReason = "length"
	case "end_turn", "stop_sequence":
		result.FinishReason = "stop"
	default:
		result.FinishReason = resp.StopReason
	}
	return result, nil
}

func parseOllamaFormat(body []byte) (*Result, error) {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason      string `json:"done_reason"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse ollama response: %w", err)
	}
	if resp.Message.Content == "" {
		return nil, ErrEmptyResponse
	}
	return &Result{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		FinishReason: resp.DoneReason,
	}, nil
}

func parseOpenAIFormat(body []byte) (*Result, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &Result{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
