// Package common defines shared constants and sentinel errors used across
// the relay. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrTxConflict marks a transaction that lost a race with a concurrent
	// one and can be retried from the start.
	ErrTxConflict = errors.New("transaction conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Session guard outcomes. These are turned into user notices and never
	// leave the session controller.
	ErrUnknownUser      = errors.New("unknown user")
	ErrAlreadySearching = errors.New("already searching")
	ErrAlreadyPaired    = errors.New("already paired")
	ErrNotPaired        = errors.New("not paired")
	ErrStalePartner     = errors.New("stale partner reference")

	// Outbound and collaborator failures.
	ErrDeliveryFailure  = errors.New("delivery failure")
	ErrAgentUnavailable = errors.New("agent unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
