//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/born-optim/internal/tensor"
)

// Buffer is a float32 storage buffer on a WebGPU device.
//
// All methods require the owning device to be active (see Backend.Activate).
type Buffer struct {
	backend *Backend
	buffer  *wgpu.Buffer
	shape   tensor.Shape
	size    uint64 // Size in bytes
}

// Compile-time check that Buffer implements tensor.Buffer.
var _ tensor.Buffer = (*Buffer)(nil)

// Location implements tensor.Buffer.
func (b *Buffer) Location() tensor.Location {
	return b.backend.Location()
}

// Shape implements tensor.Buffer.
func (b *Buffer) Shape() tensor.Shape {
	return b.shape
}

// Len implements tensor.Buffer.
func (b *Buffer) Len() int {
	return b.shape.NumElements()
}

// Fill implements tensor.Buffer.
func (b *Buffer) Fill(v float32) error {
	if err := b.backend.requireActive(); err != nil {
		return err
	}
	b.backend.dispatch("fill", fillShader, b.Len(), v, binding{b.buffer, b.size})
	return nil
}

// Scale implements tensor.Buffer.
func (b *Buffer) Scale(alpha float32) error {
	if err := b.backend.requireActive(); err != nil {
		return err
	}
	b.backend.dispatch("scale", scaleShader, b.Len(), alpha, binding{b.buffer, b.size})
	return nil
}

// Axpy implements tensor.Buffer.
func (b *Buffer) Axpy(alpha float32, x tensor.Buffer) error {
	if err := tensor.CheckOperands(b, x); err != nil {
		return err
	}
	if err := b.backend.requireActive(); err != nil {
		return err
	}
	src, ok := x.(*Buffer)
	if !ok || src.backend != b.backend {
		return fmt.Errorf("%w: %T at %s", ErrForeignBuffer, x, x.Location())
	}
	if src == b {
		// A buffer cannot be bound as both read and read_write.
		return b.Scale(1 + alpha)
	}
	b.backend.dispatch("axpy", axpyShader, b.Len(), alpha,
		binding{b.buffer, b.size},
		binding{src.buffer, src.size},
	)
	return nil
}

// SquaredNorm implements tensor.Buffer. Per-workgroup partial sums are
// computed on the device and added on the host in float64.
func (b *Buffer) SquaredNorm() (float64, error) {
	if err := b.backend.requireActive(); err != nil {
		return 0, err
	}

	groups := workgroupCount(b.Len())
	//nolint:gosec // G115: groups is positive
	partialSize := uint64(groups) * 4
	partials := b.backend.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  partialSize,
	})
	defer partials.Release()

	b.backend.dispatch("sum_squares", sumSquaresShader, b.Len(), 0,
		binding{b.buffer, b.size},
		binding{partials, partialSize},
	)

	raw, err := b.backend.readBuffer(partials, partialSize)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range decodeFloats(raw) {
		sum += float64(v)
	}
	return sum, nil
}

// Like implements tensor.Buffer.
func (b *Buffer) Like() (tensor.Buffer, error) {
	if err := b.backend.requireActive(); err != nil {
		return nil, err
	}
	return b.backend.newBuffer(b.shape, nil)
}

// Host implements tensor.Buffer.
func (b *Buffer) Host() ([]float32, error) {
	if err := b.backend.requireActive(); err != nil {
		return nil, err
	}
	raw, err := b.backend.readBuffer(b.buffer, b.size)
	if err != nil {
		return nil, err
	}
	return decodeFloats(raw), nil
}

// Load implements tensor.Buffer.
func (b *Buffer) Load(data []float32) error {
	if err := tensor.CheckLength(data, b.shape); err != nil {
		return err
	}
	if err := b.backend.requireActive(); err != nil {
		return err
	}
	b.backend.copyInto(b.buffer, encodeFloats(data))
	return nil
}

// Release frees the device memory.
func (b *Buffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// String returns a short description for debugging.
func (b *Buffer) String() string {
	return fmt.Sprintf("webgpu.Buffer(%s, shape=%v)", b.Location(), b.shape)
}
