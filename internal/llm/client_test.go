package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openAIReply(content, finish string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `},"finish_reason":"` + finish + `"}],` +
		`"usage":{"prompt_tokens":120,"completion_tokens":48}}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCallParsesOpenAIFormat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, openAIReply(`{"title":"Silk Wrap Dress"}`, "stop"))
	}))
	defer srv.Close()

	c := NewClient(discardLogger())
	result, err := c.Call(context.Background(), ProviderConfig{
		Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL,
	}, "extract the product", CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, `{"title":"Silk Wrap Dress"}`, result.Content)
	assert.Equal(t, 120, result.InputTokens)
	assert.Equal(t, 48, result.OutputTokens)
	assert.Equal(t, 0.1, gotBody["temperature"])
	assert.Equal(t, float64(2048), gotBody["max_tokens"])
}

func TestCallParsesAnthropicFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "/v1/messages", r.URL.Path)
		io.WriteString(w, `{"content":[{"text":"PRODUCT|URL=https://x/a|TITLE=Dress"}],`+
			`"stop_reason":"end_turn","usage":{"input_tokens":300,"output_tokens":20}}`)
	}))
	defer srv.Close()

	c := NewClient(discardLogger())
	result, err := c.Call(context.Background(), ProviderConfig{
		Provider: ProviderAnthropic, Model: "claude-sonnet", APIKey: "key-test", BaseURL: srv.URL,
	}, "list the products", CallOptions{MaxTokens: 8192})
	require.NoError(t, err)
	assert.Equal(t, "PRODUCT|URL=https://x/a|TITLE=Dress", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
}

func TestCallTruncationIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, openAIReply("partial", "length"))
	}))
	defer srv.Close()

	c := NewClient(discardLogger())
	result, err := c.Call(context.Background(), ProviderConfig{
		Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk", BaseURL: srv.URL,
	}, "p", CallOptions{})
	assert.ErrorIs(t, err, ErrTruncated)
	// Truncated content is still surfaced for diagnostics.
	require.NotNil(t, result)
	assert.Equal(t, "partial", result.Content)
}

func TestCallRequiresAPIKey(t *testing.T) {
	c := NewClient(discardLogger())
	_, err := c.Call(context.Background(), ProviderConfig{Provider: ProviderOpenAI}, "p", CallOptions{})
	assert.Error(t, err)
}

func TestCallAttachesImages(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, `{"content":[{"text":"{}"}],"stop_reason":"end_turn","usage":{}}`)
	}))
	defer srv.Close()

	c := NewClient(discardLogger())
	_, err := c.Call(context.Background(), ProviderConfig{
		Provider: ProviderAnthropic, Model: "claude-sonnet", APIKey: "k", BaseURL: srv.URL,
	}, "what is on this page", CallOptions{
		Images: []Image{{MediaType: "image/png", Data: []byte{0x89, 0x50}}},
	})
	require.NoError(t, err)

	require.Len(t, gotBody.Messages, 1)
	parts := gotBody.Messages[0].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "image", parts[0]["type"])
	assert.Equal(t, "text", parts[1]["type"])
}

func TestCascadeFallsBackToSecondary(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, openAIReply("recovered", "stop"))
	}))
	defer secondary.Close()

	cascade := NewCascade(NewClient(discardLogger()),
		ProviderConfig{Provider: ProviderOpenAI, Model: "a", APIKey: "k", BaseURL: primary.URL},
		ProviderConfig{Provider: ProviderOpenAI, Model: "b", APIKey: "k", BaseURL: secondary.URL},
		discardLogger())

	result, err := cascade.Complete(context.Background(), "p", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
}

func TestCascadeWithoutSecondaryReturnsPrimaryError(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()

	cascade := NewCascade(NewClient(discardLogger()),
		ProviderConfig{Provider: ProviderOpenAI, Model: "a", APIKey: "k", BaseURL: primary.URL},
		ProviderConfig{},
		discardLogger())

	_, err := cascade.Complete(context.Background(), "p", CallOptions{})
	assert.Error(t, err)
}
