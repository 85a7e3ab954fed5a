// Package openai provides a model client for the OpenAI chat completions API
// and compatible endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/autorfp/internal/adapters/driven/llm/sse"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.ModelClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second

	// doneMarker ends a chat completion stream.
	doneMarker = "[DONE]"
)

// Config holds configuration for the OpenAI client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the model to use (default: gpt-4o-mini).
	Model string

	// MaxTokens caps the reply length. Zero leaves it to the API.
	MaxTokens int

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Client invokes chat completions.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model     string              `json:"model"`
	Messages  []chatCompletionMsg `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
	Stream    bool                `json:"stream,omitempty"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// chatCompletionChunk is one streamed delta.
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// New creates an OpenAI client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Invoke returns the complete reply to prompt.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := c.send(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("openai error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai: no response choices returned")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// Stream delivers content deltas to onChunk and returns the full reply.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	resp, err := c.send(ctx, prompt, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result strings.Builder
	err = sse.Read(ctx, resp.Body, func(ev sse.Event) (bool, error) {
		if ev.Data == doneMarker {
			return true, nil
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return false, fmt.Errorf("openai: decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return true, fmt.Errorf("openai error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				result.WriteString(choice.Delta.Content)
				onChunk(choice.Delta.Content)
			}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

func (c *Client) send(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	reqBody := chatCompletionRequest{
		Model:     c.model,
		Messages:  []chatCompletionMsg{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var chatResp chatCompletionResponse
	if json.Unmarshal(body, &chatResp) == nil && chatResp.Error != nil {
		msg = chatResp.Error.Message
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai: %w: %s", domain.ErrRateLimited, msg)
	}
	return fmt.Errorf("openai error (status %d): %s", resp.StatusCode, msg)
}

// ModelName returns the name of the model being used.
func (c *Client) ModelName() string {
	return c.model
}

// Ping validates the service is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
