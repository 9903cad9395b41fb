// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// The pipeline treats the generative model as unreliable and possibly slow:
// every call carries its own timeout and callers are expected to fall back
// to deterministic logic when a call fails.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ModelVariant selects between the fast and smart chat models.
type ModelVariant string

const (
	// VariantFast routes to the cheaper, lower-latency model.
	VariantFast ModelVariant = "fast"
	// VariantSmart routes to the stronger model used for clinical triage.
	VariantSmart ModelVariant = "smart"
)

// Default model and timeout configuration.
const (
	DefaultFastModel      = "gpt-4o-mini"
	DefaultSmartModel     = "gpt-4o"
	DefaultEmbeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	DefaultChatTimeout    = 30 * time.Second
	DefaultEmbedTimeout   = 15 * time.Second
)

// ClientInterface defines the generative operations the pipeline depends on.
type ClientInterface interface {
	// Available reports whether the client is configured with credentials.
	Available() bool

	// Generate produces text for the given prompt using the selected variant.
	Generate(ctx context.Context, prompt string, variant ModelVariant) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey         string
	FastModel      string
	SmartModel     string
	EmbeddingModel string
	ChatTimeout    time.Duration
	EmbedTimeout   time.Duration
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithFastModel overrides the fast chat model.
func WithFastModel(model string) Option {
	return func(o *Opts) { o.FastModel = model }
}

// WithSmartModel overrides the smart chat model.
func WithSmartModel(model string) Option {
	return func(o *Opts) { o.SmartModel = model }
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// WithChatTimeout overrides the per-call chat completion timeout.
func WithChatTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ChatTimeout = d }
}

// Client wraps the OpenAI API for triage classification and embeddings.
type Client struct {
	client         openai.Client
	fastModel      string
	smartModel     string
	embeddingModel string
	chatTimeout    time.Duration
	embedTimeout   time.Duration
}

// NewClient initializes a new GenAI client. The API key is taken from options
// or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		FastModel:      DefaultFastModel,
		SmartModel:     DefaultSmartModel,
		EmbeddingModel: DefaultEmbeddingModel,
		ChatTimeout:    DefaultChatTimeout,
		EmbedTimeout:   DefaultEmbedTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	slog.Debug("genai.NewClient: client configured", "fast_model", cfg.FastModel, "smart_model", cfg.SmartModel, "embedding_model", cfg.EmbeddingModel)
	return &Client{
		client:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		fastModel:      cfg.FastModel,
		smartModel:     cfg.SmartModel,
		embeddingModel: cfg.EmbeddingModel,
		chatTimeout:    cfg.ChatTimeout,
		embedTimeout:   cfg.EmbedTimeout,
	}, nil
}

// Available reports whether the client is configured.
func (c *Client) Available() bool {
	return c != nil
}

// modelFor maps a variant to the configured model name.
func (c *Client) modelFor(variant ModelVariant) string {
	if variant == VariantSmart {
		return c.smartModel
	}
	return c.fastModel
}

// Generate produces text for the given prompt using the selected variant.
func (c *Client) Generate(ctx context.Context, prompt string, variant ModelVariant) (string, error) {
	model := c.modelFor(variant)
	slog.Debug("genai.Generate: requesting completion", "model", model, "prompt_length", len(prompt))

	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(model),
	})
	if err != nil {
		slog.Warn("genai.Generate: completion failed", "model", model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		slog.Warn("genai.Embed: embedding request failed", "model", c.embeddingModel, "error", err)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}
