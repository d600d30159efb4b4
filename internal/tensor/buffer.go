package tensor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidShape     = errors.New("invalid shape")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrLocationMismatch = errors.New("location mismatch")
	ErrDataLength       = errors.New("data length does not match shape")
)

// Buffer is a mutable float32 array resident in one memory space.
//
// All mutating methods work in place. Binary operations require both
// operands to share a location; moving data between locations is the job
// of device.Transfer, never of the buffer itself.
type Buffer interface {
	// Location reports where the buffer's memory lives.
	Location() Location

	// Shape returns the buffer dimensions. Callers must not modify it.
	Shape() Shape

	// Len returns the number of elements.
	Len() int

	// Fill sets every element to v.
	Fill(v float32) error

	// Scale multiplies every element by alpha.
	Scale(alpha float32) error

	// Axpy adds alpha*x element-wise: b += alpha * x.
	Axpy(alpha float32, x Buffer) error

	// SquaredNorm returns the sum of squares of all elements, computed
	// into a host scalar. On accelerators this waits for queued work.
	SquaredNorm() (float64, error)

	// Like returns a zero-filled buffer of the same shape and location.
	Like() (Buffer, error)

	// Host copies the contents into a fresh host slice.
	Host() ([]float32, error)

	// Load overwrites the contents from host memory.
	Load(data []float32) error
}

// CheckOperands validates that x can be combined element-wise with dst.
func CheckOperands(dst, x Buffer) error {
	if dst.Location() != x.Location() {
		return fmt.Errorf("%w: %s vs %s", ErrLocationMismatch, dst.Location(), x.Location())
	}
	if !dst.Shape().Equal(x.Shape()) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, dst.Shape(), x.Shape())
	}
	return nil
}

// CheckLength validates a host slice against a shape.
func CheckLength(data []float32, shape Shape) error {
	if len(data) != shape.NumElements() {
		return fmt.Errorf("%w: got %d elements for shape %v", ErrDataLength, len(data), shape)
	}
	return nil
}
