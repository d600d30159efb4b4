package cpu

import "github.com/born-ml/born-optim/internal/tensor"

// Backend is the host device. Activation is a no-op: host memory has no
// notion of a current device.
type Backend struct{}

// NewBackend creates the host device.
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "CPU"
}

// Location returns tensor.Host.
func (b *Backend) Location() tensor.Location {
	return tensor.Host
}

// Activate returns a no-op release function.
func (b *Backend) Activate() (func(), error) {
	return func() {}, nil
}

// Alloc allocates a zero-filled host buffer.
func (b *Backend) Alloc(shape tensor.Shape) (tensor.Buffer, error) {
	return New(shape)
}

// Upload copies data into a new host buffer.
func (b *Backend) Upload(data []float32, shape tensor.Shape) (tensor.Buffer, error) {
	buf, err := New(shape)
	if err != nil {
		return nil, err
	}
	if err := buf.Load(data); err != nil {
		return nil, err
	}
	return buf, nil
}

// Release is a no-op for the host device.
func (b *Backend) Release() {}
