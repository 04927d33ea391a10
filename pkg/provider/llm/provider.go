// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote model API (OpenRouter, OpenAI, Anthropic,
// or a local Ollama instance) and exposes a uniform interface for the Animus
// generation worker to perform completions and count tokens without coupling
// to any specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"

	"github.com/animus-ai/animus/pkg/types"
)

// CharsPerToken is the heuristic ratio used for token estimation across the
// platform. English text averages roughly 4 characters per token for common
// tokenizers; the context assembler and the providers share this constant so
// budget arithmetic stays consistent.
const CharsPerToken = 4

// EstimateTextTokens approximates the token count of a raw text string using
// the [CharsPerToken] heuristic. The result should not undercount badly but
// is never exact; callers that need a hard ceiling add a safety margin.
func EstimateTextTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessageTokens approximates the token count of a message list,
// adding a small per-message overhead for role and formatting tokens.
func EstimateMessageTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTextTokens(m.Content)
		total += 4
	}
	return total
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty and Model must be set.
type CompletionRequest struct {
	// Model is the fully qualified model identifier (e.g., "openai/gpt-4o",
	// "anthropic/claude-3.5-sonnet").
	Model string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []types.Message

	// Params carries the sampling and routing parameters resolved by the
	// config cascade. Nil pointer fields mean provider defaults.
	Params types.LLMParams

	// APIKey, when set, replaces the provider's configured key for this one
	// call. Used for requests that carry a user-supplied key.
	APIKey string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. When the model
	// emitted reasoning alongside content, the reasoning is already merged
	// in (see the openrouter provider for the merge rules).
	Content string

	// Reasoning is the raw reasoning text the model returned, when any.
	// Kept separate so callers can log or strip it without re-parsing.
	Reasoning string

	// FinishReason indicates why generation stopped ("stop", "length", …).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that the given message list
	// would consume in the model's context window. The result need not be
	// exact but should not undercount.
	CountTokens(messages []types.Message) (int, error)
}
