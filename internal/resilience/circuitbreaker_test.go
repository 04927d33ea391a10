package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend unavailable")

func TestCircuitBreaker(t *testing.T) {
	t.Run("zero config gets defaults", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openrouter"})
		if cb.maxFailures != 5 {
			t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
		}
		if cb.resetTimeout != 30*time.Second {
			t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
		}
		if cb.halfOpenMax != 3 {
			t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
		}
		if cb.State() != StateClosed {
			t.Errorf("initial state = %v, want closed", cb.State())
		}
	})

	t.Run("closed forwards calls", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openrouter", MaxFailures: 3})
		ran := false
		if err := cb.Execute(func() error { ran = true; return nil }); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !ran {
			t.Fatal("fn did not run")
		}
	})

	t.Run("opens after consecutive failures and rejects", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "openrouter", MaxFailures: 3, ResetTimeout: time.Hour,
		})
		for i := 0; i < 3; i++ {
			_ = cb.Execute(func() error { return errBackendDown })
		}
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open", cb.State())
		}

		err := cb.Execute(func() error {
			t.Fatal("fn ran behind an open breaker")
			return nil
		})
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Execute() error = %v, want ErrCircuitOpen", err)
		}
	})

	t.Run("a success clears the failure streak", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openrouter", MaxFailures: 3})
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return nil })
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed", cb.State())
		}

		// The streak restarts from zero: two more failures still leave it
		// closed.
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed after a restarted streak", cb.State())
		}
	})

	t.Run("cool-down moves open to half-open", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "openrouter", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
		})
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		if cb.State() != StateOpen {
			t.Fatal("breaker did not open")
		}

		time.Sleep(15 * time.Millisecond)
		if cb.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open after cool-down", cb.State())
		}
	})

	t.Run("successful probes close the breaker", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "openrouter", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
		})
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		time.Sleep(15 * time.Millisecond)

		for i := 0; i < 2; i++ {
			if err := cb.Execute(func() error { return nil }); err != nil {
				t.Fatalf("probe %d error = %v", i, err)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed after probes", cb.State())
		}
	})

	t.Run("a failed probe reopens immediately", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "openrouter", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3,
		})
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		time.Sleep(15 * time.Millisecond)

		if err := cb.Execute(func() error { return errBackendDown }); err == nil {
			t.Fatal("failing probe returned nil")
		}

		// Read the stored state directly: State() would report half-open
		// again as soon as the short cool-down elapses.
		cb.mu.Lock()
		s := cb.state
		cb.mu.Unlock()
		if s != StateOpen {
			t.Fatalf("state = %v, want open after failed probe", s)
		}
	})

	t.Run("manual reset closes an open breaker", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "openrouter", MaxFailures: 2, ResetTimeout: time.Hour,
		})
		_ = cb.Execute(func() error { return errBackendDown })
		_ = cb.Execute(func() error { return errBackendDown })
		if cb.State() != StateOpen {
			t.Fatal("breaker did not open")
		}

		cb.Reset()
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed after Reset", cb.State())
		}
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("Execute() after Reset error = %v", err)
		}
	})
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
