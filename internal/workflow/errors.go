package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidation is returned for malformed input (empty title, negative
	// amount); safe to report verbatim to the caller
	ErrValidation = errors.New("validation failed")

	// ErrNotFoundOrForbidden is returned when the id/ownership/state
	// predicate of an operation did not match. The cases are deliberately
	// indistinguishable so callers cannot probe for requests they may not
	// act on.
	ErrNotFoundOrForbidden = errors.New("not found or not permitted")

	// ErrPolicyViolation is returned when a business precondition blocks an
	// otherwise well-formed operation, such as submitting with no approver
	// configured. Unlike ErrNotFoundOrForbidden it carries enough detail
	// for the caller to fix the precondition.
	ErrPolicyViolation = errors.New("policy violation")
)
