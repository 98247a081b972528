// In file: internal/llm/errors.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies provider failures so callers can decide whether to retry.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnknown         ErrorKind = "unknown"
)

// ProviderError is the error every adapter returns for a failed completion.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// kindForStatus maps an HTTP status onto an ErrorKind. Anthropic reports
// overload as 529, which is treated like 503.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	}
	return KindUnknown
}

// newProviderError wraps err with a classification. status is the HTTP status
// extracted by the adapter, or zero when there was none.
func newProviderError(provider string, status int, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, StatusCode: status, Err: err}
	if status != 0 {
		pe.Kind = kindForStatus(status)
		return pe
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		pe.Kind = KindUnknown
	case errors.Is(err, context.DeadlineExceeded):
		pe.Kind = KindTimeout
	case errors.As(err, &netErr):
		pe.Kind = KindUnavailable
	default:
		pe.Kind = KindUnknown
	}
	return pe
}

// invalidResponse reports a response that could not be interpreted.
func invalidResponse(provider string, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindInvalidResponse, Err: fmt.Errorf(format, args...)}
}

// IsRetryable determines whether err is worth another attempt. Cancellation
// never is; deadline and network errors are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
