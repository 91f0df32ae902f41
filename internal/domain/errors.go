package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrAntiBot           = errors.New("anti-bot interstitial")
	ErrMalformed         = errors.New("malformed payload")
	ErrDownloadFailed    = errors.New("download failed")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrRemoteFailure     = errors.New("remote failure")
)

// RateLimitError is returned for HTTP 429 responses
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration // Zero when the server did not say
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %v)", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.URL)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the server-provided delay from a rate-limit error chain
func RetryAfter(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// ErrorKind returns a stable label for logs and reports
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAntiBot):
		return "anti_bot"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrDownloadFailed):
		return "download_failed"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrRemoteFailure):
		return "remote_failure"
	default:
		return "unknown"
	}
}
