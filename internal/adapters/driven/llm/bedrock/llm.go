// Package bedrock provides a model client for Claude on AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.ModelClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultModel     = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	DefaultRegion    = "us-east-1"
	DefaultMaxTokens = 4096

	anthropicVersion = "bedrock-2023-05-31"
)

// Config holds configuration for the Bedrock client.
type Config struct {
	// Model is the Bedrock model or inference profile ID.
	Model string

	// Region is the AWS region (default: us-east-1).
	Region string

	// MaxTokens caps the reply length (default: 4096).
	MaxTokens int
}

// eventReader is the part of the Bedrock response stream the client reads.
type eventReader interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

// runtime is the Bedrock runtime surface the client calls.
type runtime interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput) (eventReader, error)
}

// sdkRuntime adapts the SDK client to runtime.
type sdkRuntime struct {
	*bedrockruntime.Client
}

func (s sdkRuntime) InvokeStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput) (eventReader, error) {
	out, err := s.InvokeModelWithResponseStream(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// Client invokes Claude models through InvokeModel.
type Client struct {
	api       runtime
	model     string
	maxTokens int
	ping      func(context.Context) error
}

// request is the Claude Messages body accepted by Bedrock.
type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// chunk is the payload of one stream chunk.
type chunk struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// New loads the default AWS configuration for cfg.Region and creates a client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	c := newClient(sdkRuntime{bedrockruntime.NewFromConfig(awsCfg)}, cfg)
	c.ping = func(ctx context.Context) error {
		if awsCfg.Credentials == nil {
			return fmt.Errorf("bedrock: no AWS credentials configured")
		}
		if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
			return fmt.Errorf("bedrock: retrieve credentials: %w", err)
		}
		return nil
	}
	return c, nil
}

func newClient(api runtime, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		api:       api,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		ping:      func(context.Context) error { return nil },
	}
}

func (c *Client) body(prompt string) ([]byte, error) {
	data, err := json.Marshal(request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.maxTokens,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}
	return data, nil
}

// Invoke returns the complete reply to prompt.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	data, err := c.body(prompt)
	if err != nil {
		return "", err
	}
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		Body:        data,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", wrapError(err)
	}

	var resp response
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("bedrock: decode response: %w", err)
	}
	var result strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}
	if result.Len() == 0 {
		return "", fmt.Errorf("bedrock: no response content returned")
	}
	return result.String(), nil
}

// Stream delivers text deltas to onChunk and returns the full reply.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	data, err := c.body(prompt)
	if err != nil {
		return "", err
	}
	stream, err := c.api.InvokeStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(c.model),
		Body:        data,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", wrapError(err)
	}
	defer stream.Close()

	var result strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					return "", wrapError(err)
				}
				return result.String(), nil
			}
			member, isChunk := ev.(*types.ResponseStreamMemberChunk)
			if !isChunk {
				continue
			}
			var ch chunk
			if err := json.Unmarshal(member.Value.Bytes, &ch); err != nil {
				return "", fmt.Errorf("bedrock: decode stream chunk: %w", err)
			}
			switch ch.Type {
			case "content_block_delta":
				if ch.Delta.Type == "text_delta" && ch.Delta.Text != "" {
					result.WriteString(ch.Delta.Text)
					onChunk(ch.Delta.Text)
				}
			case "message_stop":
				return result.String(), nil
			}
		}
	}
}

// wrapError maps throttling to domain.ErrRateLimited.
func wrapError(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return fmt.Errorf("bedrock: %w: %s", domain.ErrRateLimited, throttled.ErrorMessage())
	}
	return fmt.Errorf("bedrock: invoke model: %w", err)
}

// ModelName returns the model ID.
func (c *Client) ModelName() string {
	return c.model
}

// Ping checks that AWS credentials resolve.
func (c *Client) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}
