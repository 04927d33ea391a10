// Package openrouter provides an LLM provider backed by the OpenRouter API
// (or any OpenAI-compatible chat completions endpoint).
//
// Two wire-level behaviours set this provider apart from a plain SDK client:
//
//   - Partial-failure recovery: some providers return a 4xx status while the
//     error body still carries a usable choices[0].message.content. A
//     response middleware buffers the body before SDK parsing and, when a
//     usable completion is found inside a 4xx body, rewrites the response to
//     a 200 so the caller receives the content instead of an error.
//
//   - Reasoning merge: reasoning-capable models return a separate
//     message.reasoning field. When content is empty and reasoning is
//     present, the reasoning becomes the content (untagged); when both are
//     present, the reasoning is prepended wrapped in <reasoning> tags.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

// DefaultBaseURL is the OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using an OpenAI-compatible client with the
// recovery and reasoning-merge behaviours described in the package comment.
type Provider struct {
	client oai.Client
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenRouter base URL. Use this to point
// the provider at any OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenRouter Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: apiKey must not be empty")
	}

	cfg := &config{baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithMiddleware(recoverPartialFailure),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...)}, nil
}

// recoverPartialFailure is an HTTP middleware that rescues completions buried
// in 4xx error bodies.
//
// The body is fully read before any parsing so the original bytes survive a
// failed parse. Only 4xx statuses are inspected; 5xx responses pass through
// untouched for the retry layer to handle.
func recoverPartialFailure(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	// Restore the body regardless of what we find, so downstream error
	// reporting still sees the provider's payload.
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if readErr != nil {
		return resp, nil
	}

	var probe struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return resp, nil
	}
	if len(probe.Choices) == 0 || probe.Choices[0].Message.Content == "" {
		return resp, nil
	}

	// The error body carries a valid completion: synthesize a success so the
	// SDK parses it normally.
	resp.StatusCode = http.StatusOK
	resp.Status = "200 OK"
	return resp, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: build params: %w", err)
	}

	var callOpts []option.RequestOption
	if req.APIKey != "" {
		callOpts = append(callOpts, option.WithAPIKey(req.APIKey))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: empty choices in response")
	}

	choice := resp.Choices[0]
	content := choice.Message.Content
	reasoning := extractReasoning(choice.Message)

	// Merge rules: reasoning alone becomes the content untagged; reasoning
	// plus content gets tagged and prepended.
	switch {
	case content == "" && reasoning != "":
		content = reasoning
	case content != "" && reasoning != "":
		content = "<reasoning>" + reasoning + "</reasoning>\n" + content
	}

	return &llm.CompletionResponse{
		Content:      content,
		Reasoning:    reasoning,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// extractReasoning pulls the non-standard message.reasoning field out of the
// SDK's preserved extra fields.
func extractReasoning(msg oai.ChatCompletionMessage) string {
	field, ok := msg.JSON.ExtraFields["reasoning"]
	if !ok {
		return ""
	}
	var reasoning string
	if err := json.Unmarshal([]byte(field.Raw()), &reasoning); err != nil {
		return ""
	}
	return reasoning
}

// CountTokens implements llm.Provider using the shared character heuristic.
// TODO: replace with tiktoken-go for accurate per-model token counting.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	return llm.EstimateMessageTokens(messages), nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params. Parameters
// outside the OpenAI schema (top_k, min_p, repetition_penalty, OpenRouter
// routing) travel as extra body fields.
func buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("model must not be empty")
	}

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	pp := req.Params
	if pp.Temperature != nil {
		params.Temperature = param.NewOpt(*pp.Temperature)
	}
	if pp.MaxTokens != nil {
		params.MaxCompletionTokens = param.NewOpt(int64(*pp.MaxTokens))
	}
	if pp.TopP != nil {
		params.TopP = param.NewOpt(*pp.TopP)
	}
	if pp.FrequencyPenalty != nil {
		params.FrequencyPenalty = param.NewOpt(*pp.FrequencyPenalty)
	}
	if pp.PresencePenalty != nil {
		params.PresencePenalty = param.NewOpt(*pp.PresencePenalty)
	}
	if pp.Seed != nil {
		params.Seed = param.NewOpt(int64(*pp.Seed))
	}
	if len(pp.Stop) > 0 {
		params.Stop = oai.ChatCompletionNewParamsStopUnion{
			OfStringArray: pp.Stop,
		}
	}
	if len(pp.LogitBias) > 0 {
		bias := make(map[string]int64, len(pp.LogitBias))
		for tok, v := range pp.LogitBias {
			if f, ok := v.(float64); ok {
				bias[tok] = int64(f)
			}
		}
		params.LogitBias = bias
	}

	extra := map[string]any{}
	if pp.TopK != nil {
		extra["top_k"] = *pp.TopK
	}
	if pp.RepetitionPenalty != nil {
		extra["repetition_penalty"] = *pp.RepetitionPenalty
	}
	if pp.MinP != nil {
		extra["min_p"] = *pp.MinP
	}
	if pp.TopA != nil {
		extra["top_a"] = *pp.TopA
	}
	if pp.ResponseFormat != nil {
		extra["response_format"] = pp.ResponseFormat
	}
	if pp.Reasoning != nil {
		extra["reasoning"] = pp.Reasoning
	}
	if len(pp.Transforms) > 0 {
		extra["transforms"] = pp.Transforms
	}
	if pp.Route != "" {
		extra["route"] = pp.Route
	}
	if pp.Verbosity != "" {
		extra["verbosity"] = pp.Verbosity
	}
	if len(extra) > 0 {
		params.SetExtraFields(extra)
	}

	return params, nil
}

// convertMessage converts a types.Message to an OpenAI SDK message param.
func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil

	case "user":
		return oai.UserMessage(m.Content), nil

	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}
