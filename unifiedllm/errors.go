package unifiedllm

import (
	"context"
	"errors"
	"fmt"
)

// SDKError is the base error type for all model client errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error reported by a model provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64 // seconds
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Provider error kinds.
type (
	AuthenticationError struct{ ProviderError }
	NotFoundError       struct{ ProviderError }
	InvalidRequestError struct{ ProviderError }
	RateLimitError      struct{ ProviderError }
	ServerError         struct{ ProviderError }
	ContentFilterError  struct{ ProviderError }
	ContextLengthError  struct{ ProviderError }
)

// Client-side error kinds.
type (
	RequestTimeoutError struct{ SDKError }
	AbortError          struct{ SDKError }
	ConfigurationError  struct{ SDKError }
)

// ErrorFromStatusCode maps an HTTP status code to the matching error kind.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{pe}
	case 401, 403:
		return &AuthenticationError{pe}
	case 404:
		return &NotFoundError{pe}
	case 408:
		return &RequestTimeoutError{SDKError{Message: message}}
	case 413:
		return &ContextLengthError{pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable reports whether err is safe to retry. Unclassified errors are
// retryable; cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var (
		auth     *AuthenticationError
		notFound *NotFoundError
		invalid  *InvalidRequestError
		length   *ContextLengthError
		filter   *ContentFilterError
		config   *ConfigurationError
		abort    *AbortError
	)
	switch {
	case errors.As(err, &auth), errors.As(err, &notFound), errors.As(err, &invalid),
		errors.As(err, &length), errors.As(err, &filter), errors.As(err, &config), errors.As(err, &abort):
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// IsTimeout reports whether err means the call ran out of time or was
// cancelled by the caller.
func IsTimeout(err error) bool {
	var (
		timeout *RequestTimeoutError
		abort   *AbortError
	)
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &timeout) ||
		errors.As(err, &abort)
}
