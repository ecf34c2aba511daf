package store

import "errors"

// Validation failures resolved locally and returned to the caller
// synchronously; check with errors.Is.
var (
	ErrNotFound          = errors.New("payment not found")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrIllegalTransition = errors.New("illegal payment status transition")
	ErrVersionConflict   = errors.New("payment was modified concurrently")
)
