// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to return pre-canned completions without a live model and to
// verify the exact conversations submitted for generation.
package mock

import (
	"context"
	"sync"

	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteResults are returned by successive Complete calls in order.
	// When exhausted, the last element repeats. When empty and CompleteErr
	// is nil, an empty response is returned.
	CompleteResults []*llm.CompletionResponse

	// CompleteErrs are returned by successive Complete calls in order,
	// aligned with CompleteResults. A nil entry means no error.
	CompleteErrs []error

	// CountTokensFn, when set, replaces the default character heuristic.
	CountTokensFn func(messages []types.Message) (int, error)

	// --- Call records ---

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []CompleteCall
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next configured result/error pair.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if n < len(p.CompleteErrs) && p.CompleteErrs[n] != nil {
		return nil, p.CompleteErrs[n]
	}
	if len(p.CompleteResults) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if n >= len(p.CompleteResults) {
		n = len(p.CompleteResults) - 1
	}
	return p.CompleteResults[n], nil
}

// CountTokens uses CountTokensFn when set, else the shared heuristic.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	if p.CountTokensFn != nil {
		return p.CountTokensFn(messages)
	}
	return llm.EstimateMessageTokens(messages), nil
}

// CallCount returns the number of Complete invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
