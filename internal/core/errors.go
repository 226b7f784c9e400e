package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyResult      = errors.New("parser produced no result")
	ErrHTTPStatus       = errors.New("unexpected http status")
	ErrStateNotFound    = errors.New("embedded state not found")
	ErrBatchFailed      = errors.New("llm batch job failed")
	ErrQuotaExceeded    = errors.New("llm token quota exceeded")
	ErrRobotsDisallowed = errors.New("robots.txt disallows crawling")
	ErrBlockedAddress   = errors.New("blocked connection to private address")
	ErrNoLocation       = errors.New("search location is empty")
	ErrInvalidURL       = errors.New("invalid url")
)

// permanent errors are never worth another attempt.
var permanent = []error{
	ErrEmptyResult,
	ErrStateNotFound,
	ErrRobotsDisallowed,
	ErrBlockedAddress,
	ErrBatchFailed,
	ErrNoLocation,
	ErrInvalidURL,
	context.Canceled,
	context.DeadlineExceeded,
}

type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should be attempted again and, when the
// error carries one, how long to wait first. Unknown errors are retryable.
func IsRetryable(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true, re.RetryAfter
	}
	for _, p := range permanent {
		if errors.Is(err, p) {
			return false, 0
		}
	}
	return true, 0
}
