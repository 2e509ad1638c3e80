package llm

import (
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

func TestRetryRecoversFromTransientError(t *testing.T) {
	attempts := 0
	got, err := retryWithPolicy(func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", wrapFatalError(errors.New("connection reset"))
		}
		return "ok", nil
	}, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5))

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnFatalError(t *testing.T) {
	attempts := 0
	_, err := retryWithPolicy(func() (string, error) {
		attempts++
		return "", wrapFatalError(errors.New("invalid api key"))
	}, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5))

	if !errors.Is(err, ErrFatalAPI) {
		t.Fatalf("expected ErrFatalAPI, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("fatal error must not be retried, got %d attempts", attempts)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	attempts := 0
	transient := errors.New("connection reset")
	_, err := retryWithPolicy(func() (string, error) {
		attempts++
		return "", wrapFatalError(transient)
	}, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2))

	if !errors.Is(err, transient) {
		t.Fatalf("expected underlying transient error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (initial plus 2 retries), got %d", attempts)
	}
}
