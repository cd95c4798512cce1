// Package apierr provides shared error sentinels, failure classification and
// retry infrastructure for the chat-completion client. Provider-specific error
// types are classified into these sentinels at the adapter boundary.
//
// Adapters wrap sentinels using fmt.Errorf("%s: %w", msg, sentinel).
// Callers check with errors.Is(err, apierr.ErrRateLimit) or use KindOf.
package apierr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for API interaction failures.
var (
	// ErrRateLimit indicates the API rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTransient indicates a network, timeout or 5xx server failure (retryable).
	ErrTransient = errors.New("transient service error")

	// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrAuthFailed indicates API authentication failed (invalid key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrContentPolicy indicates the provider refused the content.
	ErrContentPolicy = errors.New("content rejected by policy")

	// ErrTruncated indicates the model stopped before finishing its answer.
	// Resending the same chunk will not help; a smaller chunk size will.
	ErrTruncated = errors.New("response truncated")
)

// Kind is the coarse failure category of a chunk request.
type Kind int

const (
	// KindNone means no failure.
	KindNone Kind = iota
	// KindRateLimit means retries were exhausted on throttling.
	KindRateLimit
	// KindTransient means retries were exhausted on network or server errors.
	KindTransient
	// KindFatal means the request cannot succeed by resending it.
	KindFatal
	// KindCanceled means the caller canceled the run.
	KindCanceled
)

// String returns the name used in logs and terminal errors.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindRateLimit:
		return "RateLimitExceeded"
	case KindTransient:
		return "TransientServiceError"
	case KindFatal:
		return "FatalRequestError"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Retryable reports whether errors of this kind are worth resending.
func (k Kind) Retryable() bool {
	return k == KindRateLimit || k == KindTransient
}

// KindOf classifies an already-classified error into a Kind.
// Unknown errors are fatal: retrying an error we do not understand only burns quota.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrRateLimit):
		return KindRateLimit
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindFatal
	}
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
