// Package genai produces learning-plan markdown from a topic via the
// Anthropic API.
//
// The Generator interface is what the rest of the system depends on; the
// Anthropic-backed Client is injected by the top-level wiring so tests and the
// importer can substitute their own implementation.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrUpstream marks failures unrelated to business logic: provider errors,
// network failures, timeouts. Callers check it with errors.Is.
var ErrUpstream = errors.New("upstream generation failure")

// DefaultTimeout is the client-side budget for one generation call.
const DefaultTimeout = 30 * time.Second

// DefaultModel is used when the configuration names no model.
const DefaultModel = "claude-sonnet-4-20250514"

// Generator produces markdown text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds settings for the Anthropic-backed client.
type Config struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string

	// Model is the model identifier (default: DefaultModel).
	Model string

	// Timeout bounds one generation call (default: DefaultTimeout).
	Timeout time.Duration

	// MaxTokens caps the response length (default: 4096).
	MaxTokens int

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger
}

// Client calls the Anthropic Messages API.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	timeout   time.Duration
	maxTokens int
	logger    *log.Logger
}

// NewClient creates a generation client from config.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[genai] ", log.LstdFlags)
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Generate implements Generator.
//
// The call is bounded by the configured timeout; hitting it is reported as a
// timeout distinct from a provider error, but both satisfy
// errors.Is(err, ErrUpstream).
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generation timed out after %v", ErrUpstream, c.timeout)
		}
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	text := b.String()
	c.logger.Printf("Generated %d bytes in %v", len(text), time.Since(start).Round(time.Millisecond))

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrUpstream)
	}
	return text, nil
}

// Retryable reports whether a generation failure looks recoverable.
//
// The heuristic matches provider status codes whose string form starts with
// "40" or "50"; those get one delayed retry from calling code. Timeouts and
// everything else propagate immediately.
func Retryable(err error) bool {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return false
	}
	code := strconv.Itoa(apierr.StatusCode)
	return strings.HasPrefix(code, "40") || strings.HasPrefix(code, "50")
}

// GenerateWithRetry calls the generator and, when the failure is retryable,
// waits one delay and tries exactly once more.
func GenerateWithRetry(ctx context.Context, g Generator, prompt string, delay time.Duration, logger *log.Logger) (string, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[genai] ", log.LstdFlags)
	}

	text, err := g.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if !Retryable(err) {
		return "", err
	}

	logger.Printf("Generation failed with recoverable error, retrying in %v: %v", delay, err)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrUpstream, ctx.Err())
	}

	return g.Generate(ctx, prompt)
}
