package kerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := NewTaskError(KindDecomposition, "breakdown failed", errors.New("bad json"))
	wrapped := fmt.Errorf("solving task: %w", base)

	if KindOf(wrapped) != KindDecomposition {
		t.Errorf("KindOf(wrapped) = %s, want %s", KindOf(wrapped), KindDecomposition)
	}
	if !IsKind(wrapped, KindDecomposition) {
		t.Error("IsKind must see through fmt.Errorf wrapping")
	}
	if IsKind(wrapped, KindValidation) {
		t.Error("IsKind matched the wrong kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("untagged errors must report an empty kind")
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsTransient(NewTransientError(errors.New("x"), "retry me")) {
		t.Error("TransientError must classify as transient")
	}
	if IsTransient(NewPermanentError(errors.New("x"), "give up")) {
		t.Error("PermanentError must not classify as transient")
	}
	if !IsTransient(NewHTTPStatusError(http.StatusServiceUnavailable, "503", "")) {
		t.Error("503 must classify as transient")
	}
	if !IsPermanent(NewHTTPStatusError(http.StatusUnauthorized, "401", "")) {
		t.Error("401 must classify as permanent")
	}
	if GetErrorType(NewDegradedError(errors.New("open"), "circuit open", "")) != ErrorTypeDegraded {
		t.Error("DegradedError must classify as degraded")
	}
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return NewPermanentError(errors.New("bad input"), "not retryable")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("flaky"), "try again")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("result=%q calls=%d", result, calls)
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	boom := func(ctx context.Context) error { return NewTransientError(errors.New("down"), "down") }
	_ = cb.Execute(context.Background(), boom)
	_ = cb.Execute(context.Background(), boom)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !IsDegraded(err) {
		t.Errorf("open circuit must reject with a degraded error, got %v", err)
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("reset must close the circuit")
	}
}
