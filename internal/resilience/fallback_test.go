package resilience

import (
	"errors"
	"testing"
	"time"
)

func newTestGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("openrouter", "openrouter", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("ollama", "ollama")
	return fg
}

func TestFallbackGroup(t *testing.T) {
	t.Run("preferred backend answers first", func(t *testing.T) {
		fg := newTestGroup(CircuitBreakerConfig{MaxFailures: 3})

		var served string
		err := fg.Execute(func(v string) error {
			served = v
			return nil
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if served != "openrouter" {
			t.Fatalf("served by %q, want openrouter", served)
		}
	})

	t.Run("falls through on failure", func(t *testing.T) {
		fg := newTestGroup(CircuitBreakerConfig{MaxFailures: 3})

		var served string
		err := fg.Execute(func(v string) error {
			if v == "openrouter" {
				return errBackendDown
			}
			served = v
			return nil
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if served != "ollama" {
			t.Fatalf("served by %q, want ollama", served)
		}
	})

	t.Run("exhausted chain wraps ErrAllFailed", func(t *testing.T) {
		fg := newTestGroup(CircuitBreakerConfig{MaxFailures: 3})

		err := fg.Execute(func(string) error { return errBackendDown })
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("Execute() error = %v, want ErrAllFailed", err)
		}
	})

	t.Run("open breaker skips the backend without calling it", func(t *testing.T) {
		fg := newTestGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

		// Trip the preferred backend's breaker.
		for i := 0; i < 2; i++ {
			_ = fg.Execute(func(v string) error {
				if v == "openrouter" {
					return errBackendDown
				}
				return nil
			})
		}

		err := fg.Execute(func(v string) error {
			if v == "openrouter" {
				t.Fatal("tripped backend was called")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	})
}

func TestExecuteWithResult(t *testing.T) {
	newGroup := func() *FallbackGroup[int] {
		fg := NewFallbackGroup(1, "openrouter", FallbackConfig{
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
		})
		fg.AddFallback("ollama", 2)
		return fg
	}

	t.Run("returns the first successful result", func(t *testing.T) {
		got, err := ExecuteWithResult(newGroup(), func(v int) (string, error) {
			if v == 1 {
				return "from-openrouter", nil
			}
			return "from-ollama", nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult() error = %v", err)
		}
		if got != "from-openrouter" {
			t.Fatalf("got %q, want from-openrouter", got)
		}
	})

	t.Run("fails over to the next backend", func(t *testing.T) {
		got, err := ExecuteWithResult(newGroup(), func(v int) (string, error) {
			if v == 1 {
				return "", errBackendDown
			}
			return "from-ollama", nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult() error = %v", err)
		}
		if got != "from-ollama" {
			t.Fatalf("got %q, want from-ollama", got)
		}
	})

	t.Run("exhausted chain wraps ErrAllFailed", func(t *testing.T) {
		_, err := ExecuteWithResult(newGroup(), func(int) (string, error) {
			return "", errBackendDown
		})
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("ExecuteWithResult() error = %v, want ErrAllFailed", err)
		}
	})
}
