package apierrors

import (
	"errors"
	"testing"
	"time"
)

func TestCodeOfRecognizesWrappedError(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodePersistenceIO, "could not write", cause)

	if CodeOf(err) != CodePersistenceIO {
		t.Fatalf("expected CodePersistenceIO, got %v", CodeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Wrap to preserve the cause for errors.Is")
	}
}

func TestCodeOfFallsBackToInternalForPlainErrors(t *testing.T) {
	if CodeOf(errors.New("unrecognized")) != CodeInternal {
		t.Fatalf("expected CodeInternal for a non-apierrors error")
	}
}

func TestWithRetrySetsRetryableAndAfter(t *testing.T) {
	err := New(CodeRateLimit, "too many requests", "Please slow down.").WithRetry(5 * time.Second)
	if !err.Retryable {
		t.Fatalf("expected Retryable to be true")
	}
	if err.RetryAfter != 5*time.Second {
		t.Fatalf("unexpected RetryAfter: %v", err.RetryAfter)
	}
}

func TestAsExtractsConcreteError(t *testing.T) {
	original := New(CodeSessionNotFound, "no such session", "Session not found.")
	extracted, ok := As(error(original))
	if !ok || extracted.Code != CodeSessionNotFound {
		t.Fatalf("expected As to extract the concrete error, got %+v ok=%v", extracted, ok)
	}
}
