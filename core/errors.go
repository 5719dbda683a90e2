package core

import (
	"errors"
	"fmt"
)

// FailureReason classifies why an attempted score update was rejected.
// Only ReasonPersistence is retryable by callers; the rest are permanent
// for the request that produced them.
type FailureReason string

const (
	ReasonInvalidActor     FailureReason = "invalid_actor"
	ReasonInvalidDelta     FailureReason = "invalid_delta"
	ReasonRateLimited      FailureReason = "rate_limited"
	ReasonTokenRejected    FailureReason = "token_rejected"
	ReasonPersistence      FailureReason = "persistence_failure"
	ReasonCacheUnavailable FailureReason = "cache_unavailable"
)

// TokenReason refines ReasonTokenRejected.
type TokenReason string

const (
	TokenMalformed     TokenReason = "malformed"
	TokenExpired       TokenReason = "expired"
	TokenActorMismatch TokenReason = "actor_mismatch"
	TokenAlreadyUsed   TokenReason = "already_used"
	TokenUnknownAction TokenReason = "unknown_action"
	// TokenActionMismatch rejects a token bound to a different action kind
	// than the one the request claims.
	TokenActionMismatch TokenReason = "action_mismatch"
)

var (
	ErrInvalidActor = &UpdateError{Reason: ReasonInvalidActor, msg: "invalid actor id"}
	ErrInvalidDelta = &UpdateError{Reason: ReasonInvalidDelta, msg: "delta out of bounds"}
	ErrRateLimited  = &UpdateError{Reason: ReasonRateLimited, msg: "rate limit exceeded"}
)

// UpdateError is the externally observable failure of a score update attempt.
type UpdateError struct {
	Reason FailureReason
	Token  TokenReason // set when Reason is ReasonTokenRejected
	msg    string
	cause  error
}

func (e *UpdateError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Token)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *UpdateError) Unwrap() error { return e.cause }

// Retryable reports whether a caller may retry the same request.
func (e *UpdateError) Retryable() bool {
	return e.Reason == ReasonPersistence || e.Reason == ReasonCacheUnavailable
}

// NewTokenError builds a token rejection with a sub-reason.
func NewTokenError(sub TokenReason, cause error) *UpdateError {
	return &UpdateError{Reason: ReasonTokenRejected, Token: sub, msg: "token rejected", cause: cause}
}

// NewPersistenceError wraps a durable store or cache failure.
func NewPersistenceError(cause error) *UpdateError {
	return &UpdateError{Reason: ReasonPersistence, msg: "persistence failure", cause: cause}
}

// ReasonOf extracts the failure reason from err, or empty if err is not an UpdateError.
func ReasonOf(err error) FailureReason {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}

// TokenReasonOf extracts the token sub-reason from err, or empty if err is
// not a token rejection.
func TokenReasonOf(err error) TokenReason {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Token
	}
	return ""
}
