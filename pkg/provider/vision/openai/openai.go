// Package openai provides a vision Describer backed by any OpenAI-compatible
// chat completions endpoint with multimodal input support.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/animus-ai/animus/pkg/provider/vision"
)

// DefaultPrompt is used when the caller supplies no description prompt.
const DefaultPrompt = "Describe this image concisely for someone who cannot see it. Focus on content relevant to a conversation."

// Ensure Describer implements vision.Describer at compile time.
var _ vision.Describer = (*Describer)(nil)

// Describer implements vision.Describer over the chat completions API. The
// image travels as an image_url content part; the model downloads it
// server-side.
type Describer struct {
	client    oai.Client
	maxTokens int64
}

// config holds optional configuration for the Describer.
type config struct {
	baseURL   string
	timeout   time.Duration
	maxTokens int64
}

// Option is a functional option for Describer.
type Option func(*config)

// WithBaseURL points the describer at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxTokens caps the description length. Defaults to 512 tokens.
func WithMaxTokens(n int64) Option {
	return func(c *config) { c.maxTokens = n }
}

// New constructs a Describer.
func New(apiKey string, opts ...Option) (*Describer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai vision: apiKey must not be empty")
	}

	cfg := &config{maxTokens: 512}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Describer{client: oai.NewClient(reqOpts...), maxTokens: cfg.maxTokens}, nil
}

// Describe implements vision.Describer.
func (d *Describer) Describe(ctx context.Context, model string, url string, prompt string) (string, error) {
	if model == "" {
		return "", fmt.Errorf("openai vision: model must not be empty")
	}
	if url == "" {
		return "", fmt.Errorf("openai vision: url must not be empty")
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: url,
				}),
			}),
		},
		MaxCompletionTokens: oai.Int(d.maxTokens),
	}

	resp, err := d.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai vision: describe: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai vision: describe: empty description")
	}
	return resp.Choices[0].Message.Content, nil
}
