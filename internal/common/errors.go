// Package common defines shared constants and sentinel errors used across
// the recording-sync components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Backend availability / auth errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Policy pauses: the account is not eligible to upload right now.
	// These are not failures and must not consume a retry attempt.
	ErrProRequired   = errors.New("pro subscription required")
	ErrGraceReadOnly = errors.New("account is in read-only grace period")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
