package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err          error
		expected     bool
		expectedWait bool
		name         string
	}{
		{&RetryableError{Err: ErrQuotaExceeded, RetryAfter: time.Minute}, true, true, "Quota signature waits before the next chunk"},
		{ErrEmptyResult, false, false, "Empty parse results are final"},
		{ErrStateNotFound, false, false, "A page without embedded state is not refetched"},
		{eris.Wrapf(ErrStateNotFound, "%s not assigned in page", "window.__APOLLO_STATE__"), false, false, "Wrapped missing state stays final"},
		{ErrRobotsDisallowed, false, false, "Robots disallowed is a permanent policy block"},
		{ErrBlockedAddress, false, false, "Private addresses are never fetched"},
		{ErrBatchFailed, false, false, "A failed batch needs an operator"},
		{context.Canceled, false, false, "Cancellation stops retries"},
		{errors.New("random error"), true, false, "Unknown errors are retried"},
		{fmt.Errorf("wrapped: %w", &RetryableError{Err: errors.New("x"), RetryAfter: time.Second}), true, true, "Wrapped retryable errors keep their wait"},
		{eris.Wrap(ErrEmptyResult, "parse"), false, false, "eris wrapping keeps sentinels visible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotRetry, gotWait := IsRetryable(tt.err)

			if gotRetry != tt.expected {
				t.Errorf("IsRetryable() retry flag for %s = %v, want %v", tt.name, gotRetry, tt.expected)
			}

			if tt.expectedWait && gotWait <= 0 {
				t.Errorf("IsRetryable() wait duration for %s expected > 0, got %v", tt.name, gotWait)
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Run("Standard Unwrap check", func(t *testing.T) {
		err := fmt.Errorf("context error: %w", ErrStateNotFound)
		if !errors.Is(err, ErrStateNotFound) {
			t.Error("failed to unwrap state error using errors.Is")
		}
	})

	t.Run("Deep Nesting", func(t *testing.T) {
		err := eris.Wrap(fmt.Errorf("layer 1: %w", ErrRobotsDisallowed), "layer 2")
		if !errors.Is(err, ErrRobotsDisallowed) {
			t.Error("failed to unwrap deeply nested error")
		}
	})

	t.Run("Retryable Unwraps To Cause", func(t *testing.T) {
		err := &RetryableError{Err: ErrQuotaExceeded}
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Error("RetryableError should unwrap to its cause")
		}
	})
}

func TestErrorMessages(t *testing.T) {
	if ErrRobotsDisallowed.Error() != "robots.txt disallows crawling" {
		t.Error("ErrRobotsDisallowed message mismatch")
	}
	if ErrBlockedAddress.Error() != "blocked connection to private address" {
		t.Error("ErrBlockedAddress message mismatch")
	}
}
