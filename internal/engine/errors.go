package engine

import (
	"context"
	"errors"
	"fmt"

	"fraclaims/internal/domain"
)

var (
	// ErrChannelTimeout is returned when the status channel is idle longer than the configured limit.
	ErrChannelTimeout = errors.New("status channel idle timeout exceeded")
	// ErrChannelClosedPrematurely is returned when the channel closes before a terminal phase.
	ErrChannelClosedPrematurely = errors.New("status channel closed before a terminal event")
)

// EngineUnreachableError indicates a network or transport failure talking to the engine.
// It is the only retryable engine error.
type EngineUnreachableError struct {
	Cause error
}

func (e *EngineUnreachableError) Error() string {
	return fmt.Sprintf("engine unreachable: %v", e.Cause)
}

func (e *EngineUnreachableError) Unwrap() error {
	return e.Cause
}

// EngineRejectedError indicates the engine answered with a non-success status.
type EngineRejectedError struct {
	StatusCode int
	Body       string
}

func (e *EngineRejectedError) Error() string {
	return fmt.Sprintf("engine rejected submission (status %d): %s", e.StatusCode, truncate(e.Body, 300))
}

// ChannelFailedError carries the message of a `failed` event pushed by the engine.
type ChannelFailedError struct {
	Message string
}

func (e *ChannelFailedError) Error() string {
	if e.Message == "" {
		return "engine reported processing failure"
	}
	return "engine reported processing failure: " + e.Message
}

// MalformedResultError indicates a result payload that is not structured data.
type MalformedResultError struct {
	Cause error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed engine result: %v", e.Cause)
}

func (e *MalformedResultError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient engine failure.
func IsRetryable(err error) bool {
	var unreachable *EngineUnreachableError
	return errors.As(err, &unreachable)
}

// FailureKind maps a pipeline error to the failure kind recorded on the outcome.
func FailureKind(err error) domain.FailureKind {
	var (
		unreachable *EngineUnreachableError
		rejected    *EngineRejectedError
		failed      *ChannelFailedError
		malformed   *MalformedResultError
	)
	switch {
	case err == nil:
		return domain.FailureNone
	case errors.Is(err, domain.ErrEmptyDocument):
		return domain.FailureInvalidRequest
	case errors.As(err, &rejected):
		return domain.FailureEngineRejected
	case errors.Is(err, ErrChannelTimeout):
		return domain.FailureChannelTimeout
	case errors.Is(err, ErrChannelClosedPrematurely):
		return domain.FailureChannelClosed
	case errors.As(err, &failed):
		return domain.FailureEngineReportedFail
	case errors.As(err, &malformed):
		return domain.FailureMalformedResult
	case errors.As(err, &unreachable):
		return domain.FailureEngineUnreachable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.FailureCanceled
	default:
		return domain.FailureInternal
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
