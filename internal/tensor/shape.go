package tensor

import (
	"fmt"
	"slices"
)

// Shape lists the extent of each dimension of a buffer, outermost first.
// An empty shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions, 1 for a scalar.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// NumElementsWithin returns the element count when it is at most limit.
// It stops multiplying as soon as the running product passes limit, so
// shapes whose count would overflow int report false instead of wrapping.
// Dimensions must already be positive.
func (s Shape) NumElementsWithin(limit int) (int, bool) {
	n := 1
	for _, d := range s {
		if d > 0 && n > limit/d {
			return 0, false
		}
		n *= d
	}
	return n, n <= limit
}

// Validate reports ErrInvalidShape for the first non-positive dimension.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("%w: dim %d is %d", ErrInvalidShape, i, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns an independent copy. A nil shape clones to an empty one.
func (s Shape) Clone() Shape {
	if s == nil {
		return Shape{}
	}
	return slices.Clone(s)
}
