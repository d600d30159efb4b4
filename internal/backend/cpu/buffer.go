package cpu

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/born-optim/internal/parallel"
	"github.com/born-ml/born-optim/internal/tensor"
)

// Buffer is a float32 array in host memory.
type Buffer struct {
	data  []float32
	shape tensor.Shape
	par   parallel.Config
}

// Compile-time check that Buffer implements tensor.Buffer.
var _ tensor.Buffer = (*Buffer)(nil)

// New allocates a zero-filled host buffer.
func New(shape tensor.Shape) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{
		data:  make([]float32, shape.NumElements()),
		shape: shape.Clone(),
		par:   parallel.DefaultConfig(),
	}, nil
}

// FromSlice wraps data without copying. The caller keeps ownership of the
// slice and sees every in-place update made through the buffer.
func FromSlice(data []float32, shape tensor.Shape) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := tensor.CheckLength(data, shape); err != nil {
		return nil, err
	}
	return &Buffer{
		data:  data,
		shape: shape.Clone(),
		par:   parallel.DefaultConfig(),
	}, nil
}

// Data returns the backing slice.
func (b *Buffer) Data() []float32 {
	return b.data
}

// Location implements tensor.Buffer.
func (b *Buffer) Location() tensor.Location {
	return tensor.Host
}

// Shape implements tensor.Buffer.
func (b *Buffer) Shape() tensor.Shape {
	return b.shape
}

// Len implements tensor.Buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Fill implements tensor.Buffer.
func (b *Buffer) Fill(v float32) error {
	parallel.For(len(b.data), b.par, func(i int) {
		b.data[i] = v
	})
	return nil
}

// Scale implements tensor.Buffer.
func (b *Buffer) Scale(alpha float32) error {
	parallel.Chunks(len(b.data), b.par, func(lo, hi int) {
		blas32.Scal(alpha, vec(b.data[lo:hi]))
	})
	return nil
}

// Axpy implements tensor.Buffer. x must be a host buffer of the same shape.
func (b *Buffer) Axpy(alpha float32, x tensor.Buffer) error {
	if err := tensor.CheckOperands(b, x); err != nil {
		return err
	}
	src, err := hostData(x)
	if err != nil {
		return err
	}
	parallel.Chunks(len(b.data), b.par, func(lo, hi int) {
		blas32.Axpy(alpha, vec(src[lo:hi]), vec(b.data[lo:hi]))
	})
	return nil
}

// SquaredNorm implements tensor.Buffer.
//
// Squares are widened to float64 before they are summed, so large elements
// do not overflow and long buffers do not lose precision.
func (b *Buffer) SquaredNorm() (float64, error) {
	var (
		mu    sync.Mutex
		total float64
	)
	parallel.Chunks(len(b.data), b.par, func(lo, hi int) {
		var partial float64
		for _, x := range b.data[lo:hi] {
			partial += float64(x) * float64(x)
		}
		mu.Lock()
		total += partial
		mu.Unlock()
	})
	return total, nil
}

// Like implements tensor.Buffer.
func (b *Buffer) Like() (tensor.Buffer, error) {
	return New(b.shape)
}

// Host implements tensor.Buffer.
func (b *Buffer) Host() ([]float32, error) {
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Load implements tensor.Buffer.
func (b *Buffer) Load(data []float32) error {
	if err := tensor.CheckLength(data, b.shape); err != nil {
		return err
	}
	copy(b.data, data)
	return nil
}

// String returns a short description for logs and test failures.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer%v on %s", b.shape, tensor.Host)
}

// hostData extracts the backing slice of another host buffer without copying.
func hostData(x tensor.Buffer) ([]float32, error) {
	if hb, ok := x.(*Buffer); ok {
		return hb.data, nil
	}
	return x.Host()
}

func vec(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}
