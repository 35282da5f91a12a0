// Package llm defines the provider-neutral completion interface used by the
// plan generator and role detector, plus SDK-backed OpenAI and Gemini
// implementations.
package llm

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrRateLimited   = errors.New("llm rate limited")
	ErrQuotaExceeded = errors.New("llm quota exceeded")
	ErrBadRequest    = errors.New("llm bad request")
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

// Request is a single-turn completion request.
type Request struct {
	System string
	User   string
	// JSON asks the provider to constrain output to a JSON object.
	JSON bool
	// Model overrides the completer's default model when set.
	Model string
}

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// StatusError maps an HTTP status code from a provider to a sentinel error.
// It returns nil for 2xx codes.
func StatusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}
