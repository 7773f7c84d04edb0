package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/project-nova/nova/pkg/nova/settings"
)

// remoteClient talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, LM Studio, or a local llama.cpp server.
type remoteClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func newRemoteClient(logger *slog.Logger) *remoteClient {
	return &remoteClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "llm"),
	}
}

// Usage is the token accounting a completion reports.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse is the OpenAI-compatible chat completions response. The text
// field covers legacy completion-style servers.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the payload to the configured endpoint and returns the
// reply text with usage when the server reports it.
func (c *remoteClient) Complete(ctx context.Context, cfg settings.Settings, payload *Payload) (string, *Usage, error) {
	baseURL := strings.TrimRight(cfg.String("api_base_url", ""), "/")
	endpoint := baseURL + "/chat/completions"
	apiKey := cfg.String("api_key", "")
	requestID := uuid.NewString()

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	c.logger.Debug("sending chat completion",
		"request_id", requestID,
		"model", payload.Model,
		"messages", len(payload.Messages),
		"endpoint", endpoint,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("connection failed", "request_id", requestID, "error", err)
		return "", nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading response: %w", err)
	}
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		detail := truncate(string(respBody), 240)
		c.logger.Error("API error",
			"request_id", requestID,
			"status", resp.StatusCode,
			"body", detail,
		)
		if detail != "" {
			return "", nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail)
		}
		return "", nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", nil, fmt.Errorf("invalid response from LLM endpoint: %w", err)
	}
	if chatResp.Error != nil {
		return "", nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", nil, fmt.Errorf("LLM response missing choices")
	}

	first := chatResp.Choices[0]
	content := strings.TrimSpace(first.Message.Content)
	if content == "" {
		content = strings.TrimSpace(first.Text)
	}
	if content == "" {
		return "", nil, fmt.Errorf("LLM response did not include text content")
	}

	c.logger.Info("chat completion done",
		"request_id", requestID,
		"model", payload.Model,
		"duration_ms", duration.Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
	)
	return content, &chatResp.Usage, nil
}

// truncate shortens s to at most n bytes for log and error output.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
