package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4.1", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIProvider_Ask(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4.1",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Acme is the best choice.  "}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`)

	p := NewOpenAIProvider("sk-test", "gpt-4.1", option.WithBaseURL(server.URL))
	completion, err := p.Ask(context.Background(), "best crm?")

	require.NoError(t, err)
	assert.Equal(t, "Acme is the best choice.", completion.Text)
	assert.Equal(t, 12, completion.InputTokens)
	assert.Equal(t, 7, completion.OutputTokens)
}

func TestOpenAIProvider_AskEmpty(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4.1",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "   "}}]
	}`)

	p := NewOpenAIProvider("sk-test", "gpt-4.1", option.WithBaseURL(server.URL))
	_, err := p.Ask(context.Background(), "best crm?")

	assert.ErrorIs(t, err, models.ErrEmptyResponse)
}

func TestOpenAIProvider_AskStatusError(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusInternalServerError, `{"error": {"message": "boom", "type": "server_error"}}`)

	p := NewOpenAIProvider("sk-test", "gpt-4.1", option.WithBaseURL(server.URL))
	_, err := p.Ask(context.Background(), "best crm?")

	assert.ErrorIs(t, err, models.ErrProviderError)
	assert.Equal(t, models.ErrProviderError, Classify(err, nil))
}
