// Package genimg provides remote image generation providers and the
// error classification contract consumed by the batch pipeline.
//
// errors.go defines the classified error types. The pipeline only needs to
// distinguish "rate limited" from everything else; quota errors get their own
// type because their message differs and retrying them is pointless.
package genimg

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitError indicates the provider rejected the call because requests
// are arriving too quickly. The batch pipeline retries these with backoff.
type RateLimitError struct {
	Message string
	Cause   error
}

func (e *RateLimitError) Error() string { return e.Message }

// Unwrap returns the underlying provider error.
func (e *RateLimitError) Unwrap() error { return e.Cause }

// QuotaError indicates the account's usage quota is exhausted.
// Not retryable within the session.
type QuotaError struct {
	Message string
	Cause   error
}

func (e *QuotaError) Error() string { return e.Message }

// Unwrap returns the underlying provider error.
func (e *QuotaError) Unwrap() error { return e.Cause }

// ValidationError indicates a request was rejected before any remote call
// was made (missing source images, invalid aspect ratio, empty prompt).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsQuota reports whether err is (or wraps) a QuotaError.
func IsQuota(err error) bool {
	var q *QuotaError
	return errors.As(err, &q)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ClassifyAPIError maps a raw provider error to one of the classified error
// types with a human-readable message. Unrecognized errors are returned
// as-is; they are treated as fatal by the pipeline.
func ClassifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "exceeded your current quota"):
		return &QuotaError{
			Message: "Usage quota for this model has been exceeded. Please try again later.",
			Cause:   err,
		}
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resource exhausted"):
		return &RateLimitError{
			Message: "API rate limit reached. You may be generating images too quickly. Please wait a moment.",
			Cause:   err,
		}
	case strings.Contains(msg, "prompt was blocked"):
		return fmt.Errorf("the prompt was blocked due to safety settings; modify your prompt and try again")
	case strings.Contains(msg, "api key not valid"):
		return fmt.Errorf("the API key is invalid; ensure it is configured correctly in your environment")
	case strings.Contains(msg, "billing account not found"):
		return fmt.Errorf("billing account not found; ensure your cloud project is linked to a valid billing account")
	case strings.Contains(msg, "service has been disabled"):
		return fmt.Errorf("the generative AI service has been disabled for your project")
	}

	return err
}
