package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/settings"
)

func testPayload() *Payload {
	return &Payload{
		Model:       "test-model",
		Messages:    []chats.Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   100,
	}
}

func TestRemoteCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  hi there  "}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5},
		})
	}))
	defer server.Close()

	c := newRemoteClient(slog.Default())
	cfg := settings.Settings{"api_base_url": server.URL + "/", "api_key": "sk-test"}

	text, usage, err := c.Complete(context.Background(), cfg, testPayload())
	require.NoError(t, err)
	assert.Equal(t, "hi there", text, "reply is trimmed")
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "test-model", gotBody.Model)
}

func TestRemoteCompleteLegacyTextField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": "plain completion"}},
		})
	}))
	defer server.Close()

	c := newRemoteClient(slog.Default())
	text, _, err := c.Complete(context.Background(), settings.Settings{"api_base_url": server.URL}, testPayload())
	require.NoError(t, err)
	assert.Equal(t, "plain completion", text)
}

func TestRemoteCompleteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	c := newRemoteClient(slog.Default())
	_, _, err := c.Complete(context.Background(), settings.Settings{"api_base_url": server.URL}, testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRemoteCompleteAPIErrorObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded", "type": "server_error"},
		})
	}))
	defer server.Close()

	c := newRemoteClient(slog.Default())
	_, _, err := c.Complete(context.Background(), settings.Settings{"api_base_url": server.URL}, testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestRemoteCompleteMissingChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := newRemoteClient(slog.Default())
	_, _, err := c.Complete(context.Background(), settings.Settings{"api_base_url": server.URL}, testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing choices")
}

func TestRemoteCompleteConnectionError(t *testing.T) {
	c := newRemoteClient(slog.Default())
	cfg := settings.Settings{"api_base_url": "http://127.0.0.1:1"}
	_, _, err := c.Complete(context.Background(), cfg, testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection error")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 5))
}
