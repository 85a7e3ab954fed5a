// Package anthropic provides a model client for the Anthropic Messages API.
package anthropic

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
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 4096

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic client.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model to use (default: claude-3-5-sonnet-latest).
	Model string

	// MaxTokens caps the reply length (default: 4096).
	MaxTokens int

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Client invokes Claude through the Messages API.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model     string            `json:"model"`
	Messages  []messagesMessage `json:"messages"`
	MaxTokens int               `json:"max_tokens"`
	Stream    bool              `json:"stream,omitempty"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiError is the error envelope shared by responses and stream events.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string    `json:"stop_reason"`
	Error      *apiError `json:"error,omitempty"`
}

// streamEvent is the payload of one streamed event.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *apiError `json:"error,omitempty"`
}

// New creates an Anthropic client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
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
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if msgResp.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", msgResp.Error.Message)
	}
	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("anthropic: no response content returned")
	}

	// Concatenate all text content blocks
	var result strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}
	return result.String(), nil
}

// Stream delivers text deltas to onChunk and returns the full reply.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	resp, err := c.send(ctx, prompt, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result strings.Builder
	err = sse.Read(ctx, resp.Body, func(ev sse.Event) (bool, error) {
		var se streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
			return false, fmt.Errorf("anthropic: decode stream event: %w", err)
		}
		switch se.Type {
		case "content_block_delta":
			if se.Delta.Type == "text_delta" && se.Delta.Text != "" {
				result.WriteString(se.Delta.Text)
				onChunk(se.Delta.Text)
			}
		case "error":
			msg := "unknown stream error"
			if se.Error != nil {
				msg = se.Error.Message
			}
			return true, fmt.Errorf("anthropic error: %s", msg)
		case "message_stop":
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// send posts prompt as a single user message and checks the status.
func (c *Client) send(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		Messages:  []messagesMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError describes a non-200 response.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var msgResp messagesResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &msgResp) == nil && msgResp.Error != nil {
		msg = msgResp.Error.Message
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("anthropic: %w: %s", domain.ErrRateLimited, msg)
	}
	return fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, msg)
}

// ModelName returns the name of the model being used.
func (c *Client) ModelName() string {
	return c.model
}

// Ping validates the service is reachable by checking the /v1/models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("anthropic: failed to create ping request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
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
