//go:build !windows

package webgpu

import "github.com/born-ml/born-optim/internal/tensor"

// Backend is unavailable on this platform.
type Backend struct {
	index int
}

// New always fails with ErrUnavailable on this platform.
func New(index int) (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports false on this platform.
func IsAvailable() bool {
	return false
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Location returns webgpu:index.
func (b *Backend) Location() tensor.Location {
	return tensor.Accelerator(tensor.WebGPU, b.index)
}

// Activate fails with ErrUnavailable.
func (b *Backend) Activate() (func(), error) {
	return nil, ErrUnavailable
}

// Alloc fails with ErrUnavailable.
func (b *Backend) Alloc(tensor.Shape) (tensor.Buffer, error) {
	return nil, ErrUnavailable
}

// Upload fails with ErrUnavailable.
func (b *Backend) Upload([]float32, tensor.Shape) (tensor.Buffer, error) {
	return nil, ErrUnavailable
}

// Release is a no-op.
func (b *Backend) Release() {}
