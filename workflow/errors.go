package workflow

import "errors"

// Error kinds returned by workflow operations. Each is wrapped with a
// user-facing message; test with errors.Is.
var (
	ErrPhaseLocked       = errors.New("phase locked")
	ErrAlreadyLastPhase  = errors.New("order is already in the last phase")
	ErrAlreadyFirstPhase = errors.New("order is already in the first phase")
	ErrMissingReason     = errors.New("a reason is required to go back a phase")
	ErrPersistence       = errors.New("failed to save order")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrNotFound          = errors.New("order not found")
)
