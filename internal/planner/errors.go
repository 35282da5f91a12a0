package planner

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kalambet/folio/internal/llm"
)

// ErrGenerationFailed matches every *GenerationError.
var ErrGenerationFailed = errors.New("plan generation failed")

// Reason classifies a generation failure.
type Reason string

const (
	ReasonRateLimited     Reason = "rate_limited"
	ReasonTimeout         Reason = "timeout"
	ReasonUnavailable     Reason = "unavailable"
	ReasonNetwork         Reason = "network"
	ReasonInvalidResponse Reason = "invalid_response"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonQuotaExceeded   Reason = "quota_exceeded"
	ReasonBadRequest      Reason = "bad_request"
	ReasonCanceled        Reason = "canceled"
)

// Retryable reports whether a failure with this reason may succeed if the
// same request is sent again.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimited, ReasonTimeout, ReasonUnavailable, ReasonNetwork, ReasonInvalidResponse:
		return true
	}
	return false
}

// GenerationError is the only error type returned by Generate.
type GenerationError struct {
	Reason    Reason
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("plan generation failed (%s, %s): %v", e.Reason, kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

func fail(reason Reason, err error) *GenerationError {
	return &GenerationError{Reason: reason, Retryable: reason.Retryable(), Err: err}
}

func invalidResponse(format string, args ...any) *GenerationError {
	return fail(ReasonInvalidResponse, fmt.Errorf(format, args...))
}

// classify converts a transport or provider error into a GenerationError.
func classify(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fail(ReasonCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fail(ReasonTimeout, err)
	case errors.Is(err, llm.ErrRateLimited):
		return fail(ReasonRateLimited, err)
	case errors.Is(err, llm.ErrUnauthorized):
		return fail(ReasonUnauthorized, err)
	case errors.Is(err, llm.ErrQuotaExceeded):
		return fail(ReasonQuotaExceeded, err)
	case errors.Is(err, llm.ErrBadRequest):
		return fail(ReasonBadRequest, err)
	case errors.Is(err, llm.ErrEmptyResponse):
		return fail(ReasonInvalidResponse, err)
	case errors.Is(err, llm.ErrUnavailable):
		return fail(ReasonUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fail(ReasonTimeout, err)
		}
		return fail(ReasonNetwork, err)
	}
	return fail(ReasonUnavailable, err)
}
