package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// chain builds a group over the given provider names, each behind a breaker
// allowing maxFailures strikes.
func chain(maxFailures int, names ...string) *FallbackGroup[string] {
	cfg := FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:  maxFailures,
		ResetTimeout: time.Hour,
	}}
	g := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		g.AddFallback(n, n)
	}
	return g
}

// failOnly returns a fn that records every call and fails for the named
// entries.
func failOnly(calls *[]string, failing ...string) func(string) error {
	return func(v string) error {
		*calls = append(*calls, v)
		if slices.Contains(failing, v) {
			return errBackendDown
		}
		return nil
	}
}

func TestFallbackGroup_StopsAtFirstSuccess(t *testing.T) {
	g := chain(3, "whisper", "deepgram")

	var calls []string
	if err := g.Execute(t.Context(), failOnly(&calls)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if want := []string{"whisper"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	g := chain(3, "whisper", "deepgram")

	var calls []string
	if err := g.Execute(t.Context(), failOnly(&calls, "whisper")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if want := []string{"whisper", "deepgram"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	g := chain(3, "whisper", "deepgram")

	var calls []string
	err := g.Execute(t.Context(), failOnly(&calls, "whisper", "deepgram"))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want both entries tried", calls)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	g := chain(2, "whisper", "deepgram")

	// Two failing rounds trip the whisper breaker.
	for range 2 {
		var calls []string
		_ = g.Execute(t.Context(), failOnly(&calls, "whisper"))
	}

	var calls []string
	if err := g.Execute(t.Context(), failOnly(&calls)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if want := []string{"deepgram"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v (tripped entry must not run)", calls, want)
	}
}

func TestFallbackGroup_EveryBreakerOpen(t *testing.T) {
	g := chain(1, "whisper")

	var warmup []string
	_ = g.Execute(t.Context(), failOnly(&warmup, "whisper"))

	var calls []string
	err := g.Execute(t.Context(), failOnly(&calls))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed with nothing callable", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %v, want none behind an open breaker", calls)
	}
}

func TestFallbackGroup_CancelledCallerStopsFailover(t *testing.T) {
	g := chain(3, "whisper", "deepgram")
	ctx, cancel := context.WithCancel(t.Context())

	// The caller goes away while the first entry is failing; the second
	// must not be tried.
	var calls []string
	err := g.Execute(ctx, func(v string) error {
		calls = append(calls, v)
		cancel()
		return errBackendDown
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if want := []string{"whisper"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestFallbackGroup_NamesInFailoverOrder(t *testing.T) {
	g := chain(1, "whisper", "deepgram", "mock")
	if got, want := g.Names(), []string{"whisper", "deepgram", "mock"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestExecuteWithResult_ReturnsFirstResult(t *testing.T) {
	g := chain(3, "whisper", "deepgram")

	got, err := ExecuteWithResult(t.Context(), g, func(v string) (string, error) {
		return "transcript from " + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "transcript from whisper" {
		t.Errorf("result = %q, want the primary's result", got)
	}
}

func TestExecuteWithResult_FailoverCarriesResult(t *testing.T) {
	g := chain(3, "whisper", "deepgram")

	got, err := ExecuteWithResult(t.Context(), g, func(v string) (string, error) {
		if v == "whisper" {
			return "", errBackendDown
		}
		return "transcript from " + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "transcript from deepgram" {
		t.Errorf("result = %q, want the fallback's result", got)
	}
}

func TestExecuteWithResult_AllFailReturnsZeroValue(t *testing.T) {
	g := chain(3, "whisper")

	got, err := ExecuteWithResult(t.Context(), g, func(string) (string, error) {
		return "half-built result", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got != "" {
		t.Errorf("result = %q, want the zero value on failure", got)
	}
}

func TestExecuteWithResult_PreCancelledContext(t *testing.T) {
	g := chain(3, "whisper", "deepgram")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	_, err := ExecuteWithResult(ctx, g, func(string) (string, error) {
		called = true
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn ran despite a dead context")
	}
}
