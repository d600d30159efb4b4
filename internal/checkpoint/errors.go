package checkpoint

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrTruncated          = errors.New("file is truncated")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrInvalidTensor      = errors.New("invalid tensor entry")
)

// ValidationError describes a malformed tensor entry.
type ValidationError struct {
	Kind    error  // One of ErrOutOfBounds, ErrInvalidTensor
	Tensor  string // Tensor name involved
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: tensor %q: %s", e.Kind, e.Tensor, e.Details)
}

// Unwrap lets errors.Is match the error kind.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}
