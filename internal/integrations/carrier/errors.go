package carrier

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("tracking not found")
	ErrRateLimited = errors.New("provider rate limit exceeded")
	ErrUnavailable = errors.New("provider unavailable")
	ErrMalformed   = errors.New("malformed provider response")
)

// ProviderError describes a failed call to a tracking provider.
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Kind       error
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewProviderError(p Provider, op string, kind error) *ProviderError {
	return &ProviderError{Provider: p, Op: op, Kind: kind}
}

func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	return e
}

func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// KindFromStatus maps a non-2xx HTTP status onto an error kind.
func KindFromStatus(code int) error {
	switch {
	case code == 404:
		return ErrNotFound
	case code == 429:
		return ErrRateLimited
	default:
		return ErrUnavailable
	}
}

// KindLabel returns a short metrics label for err.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
