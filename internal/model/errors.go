package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"bistrobooks/internal/domain"
)

// RateLimitError indicates a model backend returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// MapTransportError classifies an HTTP client failure into the domain error
// taxonomy: deadline overruns are timeouts, everything else that kept the
// request from completing means the backend is unreachable. Caller
// cancellation passes through untranslated.
func MapTransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: request canceled: %w", provider, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %v: %w", provider, err, domain.ErrBackendTimeout)
	}
	return fmt.Errorf("%s: %v: %w", provider, err, domain.ErrBackendUnavailable)
}

// MapStatusError classifies a non-200 backend response. 404 counts as
// unavailable because local servers answer it when the configured model is
// not loaded.
func MapStatusError(provider string, status int, body []byte, retryAfter string) error {
	baseErr := fmt.Errorf("%s API error (status %d): %s", provider, status, truncate(string(body), 300))
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(provider, baseErr, ParseRetryAfterHeader(retryAfter))
	case status == http.StatusNotFound || status >= 500:
		return fmt.Errorf("%v: %w", baseErr, domain.ErrBackendUnavailable)
	default:
		return baseErr
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
