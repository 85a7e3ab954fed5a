// Package httpapi calls a remote retrieval service over JSON HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
)

const (
	// DefaultTimeout bounds a single retrieval request.
	DefaultTimeout = 30 * time.Second

	// DefaultRate is the proactive request rate per second.
	DefaultRate = 5.0

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"

	// maxErrorBody caps how much of an error response is quoted.
	maxErrorBody = 512
)

// Ensure Client implements the interface.
var _ driven.RetrievalService = (*Client)(nil)

// Config holds retrieval client configuration.
type Config struct {
	// URL is the answer endpoint (required).
	URL string

	// RatePerSecond throttles requests. Zero uses DefaultRate, negative disables.
	RatePerSecond float64

	// Timeout bounds a single request.
	Timeout time.Duration
}

// Client is a rate-limited retrieval service client.
type Client struct {
	url        string
	httpClient *http.Client
	bucket     *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time
	now          func() time.Time
}

// New creates a retrieval client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("retrieval: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	switch {
	case cfg.RatePerSecond == 0:
		c.bucket = rate.NewLimiter(rate.Limit(DefaultRate), 1)
	case cfg.RatePerSecond > 0:
		c.bucket = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c, nil
}

type answerRequest struct {
	Question    string   `json:"question"`
	WorkflowID  string   `json:"workflow_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type answerResponse struct {
	Answer     string          `json:"answer"`
	Confidence float64         `json:"confidence"`
	Sources    []sourcePayload `json:"sources"`
}

type sourcePayload struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

// Answer posts the question to the remote service.
func (c *Client) Answer(
	ctx context.Context, question string, scope domain.RetrievalScope,
) (*domain.RetrievalAnswer, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(answerRequest{
		Question:    question,
		WorkflowID:  scope.WorkflowID,
		DocumentIDs: scope.DocumentIDs,
		TopK:        scope.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var out answerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", domain.ErrRetrievalUnavailable, err)
	}

	answer := &domain.RetrievalAnswer{
		Answer:     out.Answer,
		Confidence: clamp(out.Confidence),
	}
	if out.Confidence != answer.Confidence {
		logger.Debug("retrieval: clamped confidence %v to %v", out.Confidence, answer.Confidence)
	}
	for _, s := range out.Sources {
		answer.Sources = append(answer.Sources, domain.RetrievalSource{
			DocumentID:   s.DocumentID,
			DocumentName: s.DocumentName,
			Content:      s.Content,
			Similarity:   clamp(s.Similarity),
		})
	}
	return answer, nil
}

// wait blocks on the token bucket and on any Retry-After the server sent.
func (c *Client) wait(ctx context.Context) error {
	if c.bucket != nil {
		if err := c.bucket.Wait(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	until := c.blockedUntil
	c.mu.Unlock()

	delay := until.Sub(c.now())
	if delay <= 0 {
		return nil
	}
	logger.Debug("retrieval: waiting %s for rate limit reset", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get(HeaderRetryAfter)); err == nil && secs > 0 {
			c.mu.Lock()
			c.blockedUntil = c.now().Add(time.Duration(secs) * time.Second)
			c.mu.Unlock()
		}
		return fmt.Errorf("retrieval: %w: %s", domain.ErrRateLimited, bytes.TrimSpace(msg))
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrRetrievalUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
