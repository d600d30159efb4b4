package optim

import "errors"

// Common errors.
var (
	// ErrNotConfigured is returned by every operation except Setup before Setup succeeds.
	ErrNotConfigured = errors.New("optimizer is not set up")

	// ErrAlreadyConfigured is returned by Setup on a ready optimizer; call Reset first.
	ErrAlreadyConfigured = errors.New("optimizer is already set up")

	// ErrLengthMismatch reports parameter, gradient or source sequences of different lengths.
	ErrLengthMismatch = errors.New("sequence length mismatch")

	// ErrBackendMismatch reports a parameter and gradient that differ in location or shape.
	ErrBackendMismatch = errors.New("parameter and gradient buffers are incompatible")

	// ErrNilBuffer reports a nil buffer where one is required.
	ErrNilBuffer = errors.New("nil buffer")

	// ErrNotImplemented is returned by the base rule, which has no update formula.
	ErrNotImplemented = errors.New("update rule not implemented")

	// ErrInvalidMaxNorm reports a non-positive clipping threshold.
	ErrInvalidMaxNorm = errors.New("max norm must be positive")

	// ErrStateMismatch reports a snapshot that does not fit the optimizer's state.
	ErrStateMismatch = errors.New("state snapshot does not match optimizer")
)
