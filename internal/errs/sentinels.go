// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or invalid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary sign-in lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidSignature indicates a sign-in message whose signature does not recover to its address.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidTransition indicates a payment status change that is not allowed (e.g. out of completed).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation is the class of all request validation failures; see ValidationError.
	ErrValidation = errors.New("validation")
)

// ValidationError reports which request field is malformed.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return "validation: " + e.Field + ": " + e.Msg
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a field-level validation error.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
