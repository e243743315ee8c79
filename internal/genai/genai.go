// Package genai provides the model gateway for grievanced.
//
// It wraps an OpenAI-compatible chat completion endpoint (typically a locally
// hosted model served through an OpenAI-style API) and exposes plain text
// generation plus JSON-schema constrained structured output. Callers must not
// assume the underlying model is deterministic; structured results are always
// validated before use.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultTimeout is the per-call deadline applied when the caller's context
// carries none.
const DefaultTimeout = 30 * time.Second

// DefaultModel is used when no model name is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// Typed gateway failures. Both are recoverable: callers retry once and then
// degrade to a user-visible fallback reply.
var (
	// ErrModelTimeout indicates the model did not answer within the deadline.
	ErrModelTimeout = errors.New("model call timed out")
	// ErrModelUnavailable indicates the model endpoint failed or refused.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrMalformedOutput indicates the model returned output that does not
	// match the requested schema.
	ErrMalformedOutput = errors.New("model returned malformed output")
)

// SchemaSpec describes the JSON schema constraint for structured generation.
type SchemaSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ClientInterface defines the gateway operations used by the flow package.
type ClientInterface interface {
	// GenerateWithMessages returns the model's text completion for the messages.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateStructured constrains the completion with a JSON schema and
	// unmarshals the result into out. Fails with ErrMalformedOutput when the
	// completion cannot be parsed.
	GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, spec SchemaSpec, out interface{}) error
}

// Opts holds configuration options for the gateway client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Option configures the gateway client.
type Option func(*Opts)

// WithAPIKey sets the API key. Local OpenAI-compatible servers generally
// accept any non-empty value.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an alternate endpoint, e.g. a local
// Ollama server exposing the OpenAI-compatible API.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the default per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient creates a gateway client from the provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("genai.NewClient: creating client", "api_key_set", cfg.APIKey != "", "base_url", cfg.BaseURL, "model", cfg.Model)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := DefaultModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		timeout: timeout,
	}, nil
}

// GenerateWithMessages returns the model's text completion for the messages.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", c.classifyError(err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithMessages: no choices returned", "model", c.model)
		return "", fmt.Errorf("%w: no choices returned", ErrModelUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured constrains the completion with a JSON schema and
// unmarshals the result into out.
func (c *Client) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, spec SchemaSpec, out interface{}) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Schema:      spec.Schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return c.classifyError(err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateStructured: no choices returned", "model", c.model, "schema", spec.Name)
		return fmt.Errorf("%w: no choices returned", ErrModelUnavailable)
	}

	raw := ExtractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("genai.GenerateStructured: failed to parse completion", "error", err, "schema", spec.Name, "raw", raw)
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// withDeadline applies the client default deadline when the context has none.
func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classifyError maps transport errors to the gateway failure taxonomy.
func (c *Client) classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("genai: model call timed out", "model", c.model)
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	slog.Error("genai: model call failed", "error", err, "model", c.model)
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// completion, returning the innermost JSON object. Local models frequently
// wrap JSON in ```json fences even when a schema response format is requested.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
