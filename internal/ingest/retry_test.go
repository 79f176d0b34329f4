package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testPolicy(), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return NewRetryableError(errors.New("temporary error"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	wantErr := errors.New("bad config")
	err := Retry(context.Background(), testPolicy(), func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return NewRetryableError(errors.New("persistent error"))
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 1
	policy.InitialBackoff = time.Hour // would hang without the hint

	attempts := 0
	start := time.Now()
	err := Retry(context.Background(), policy, func() error {
		attempts++
		if attempts == 1 {
			return NewRetryableErrorWithDelay(errors.New("rate limited"), 10*time.Millisecond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retry-after hint not honored, waited %v", elapsed)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	policy := testPolicy()
	policy.InitialBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, policy, func() error {
		return NewRetryableError(errors.New("keeps failing"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
	if !IsRetryable(NewRetryableError(errors.New("wrapped"))) {
		t.Error("retryable error not detected")
	}
	// Wrapped inside another error it should still be detected.
	wrapped := fmt.Errorf("fetch failed: %w", NewRetryableError(errors.New("inner")))
	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable error not detected")
	}
}
