package shared

import "errors"

// Error taxonomy shared by every authorization and workflow component. Typed
// errors elsewhere unwrap to one of these so transports can map them.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates a failed capability or stage-role check.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyProcessed indicates a transition against a finalized or stale record.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvariant indicates an internal defect such as a missing matrix tuple.
	ErrInvariant = errors.New("invariant violation")
	// ErrUnauthenticated indicates that no identity accompanies the call.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
