package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] failed
// or sits behind an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the breaker settings applied to each backend in
// a [FallbackGroup]. The Name field is overwritten per backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs one provider instance with its dedicated breaker.
type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered chain of interchangeable backends, the
// preferred one first. Calls walk the chain until a backend answers;
// backends with an open breaker are skipped without being called.
type FallbackGroup[T any] struct {
	entries []backend[T]
	cbCfg   CircuitBreakerConfig
}

// NewFallbackGroup starts a chain with primary as the preferred backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cbCfg: cfg.CircuitBreaker}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cfg := fg.cbCfg
	cfg.Name = name
	fg.entries = append(fg.entries, backend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Execute runs fn against backends in chain order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against backends in chain order until one
// succeeds, returning its result. A package-level function because Go
// methods cannot introduce the result type parameter. Returns
// [ErrAllFailed] wrapping the last error once the chain is exhausted.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		b := &fg.entries[i]
		var out R
		err := b.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(b.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", b.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", b.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
