package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/born-optim/internal/tensor"
)

// ErrInactiveDevice is returned by mock buffers touched outside their device scope.
var ErrInactiveDevice = errors.New("device is not active")

// ErrAlreadyActive reports a second activation of a mock that is still held.
// Real accelerators block in that case.
var ErrAlreadyActive = errors.New("device is already active")

// MockAccelerator is a host-memory stand-in for an accelerator.
// Its buffers refuse to operate unless the device is active, which makes
// missing device scopes visible in tests without real GPU hardware.
type MockAccelerator struct {
	loc tensor.Location

	mu          sync.Mutex
	active      int
	activations int
}

// Compile-time check that MockAccelerator implements Device.
var _ Device = (*MockAccelerator)(nil)

// NewMockAccelerator creates a mock device at the given kind and ordinal.
func NewMockAccelerator(kind tensor.Device, index int) *MockAccelerator {
	return &MockAccelerator{loc: tensor.Accelerator(kind, index)}
}

// Location implements Device.
func (m *MockAccelerator) Location() tensor.Location {
	return m.loc
}

// Activate implements Device.
func (m *MockAccelerator) Activate() (func(), error) {
	m.mu.Lock()
	if m.active > 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", m.loc, ErrAlreadyActive)
	}
	m.active++
	m.activations++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.active--
			m.mu.Unlock()
		})
	}, nil
}

// Active reports whether some scope currently holds the device.
func (m *MockAccelerator) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active > 0
}

// Activations returns how many times the device has been activated.
func (m *MockAccelerator) Activations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations
}

// Alloc implements Device.
func (m *MockAccelerator) Alloc(shape tensor.Shape) (tensor.Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &MockBuffer{dev: m, data: make([]float32, shape.NumElements()), shape: shape.Clone()}, nil
}

// Upload implements Device.
func (m *MockAccelerator) Upload(data []float32, shape tensor.Shape) (tensor.Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := tensor.CheckLength(data, shape); err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, fmt.Errorf("%w: upload to %s", ErrInactiveDevice, m.loc)
	}
	buf := &MockBuffer{dev: m, data: make([]float32, len(data)), shape: shape.Clone()}
	copy(buf.data, data)
	return buf, nil
}

// FromSlice copies data into a new buffer on the device without requiring
// an active scope. Intended for test fixtures.
func (m *MockAccelerator) FromSlice(data []float32, shape tensor.Shape) (*MockBuffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := tensor.CheckLength(data, shape); err != nil {
		return nil, err
	}
	buf := &MockBuffer{dev: m, data: make([]float32, len(data)), shape: shape.Clone()}
	copy(buf.data, data)
	return buf, nil
}

// MockBuffer is a buffer owned by a MockAccelerator.
type MockBuffer struct {
	dev   *MockAccelerator
	data  []float32
	shape tensor.Shape
}

// Compile-time check that MockBuffer implements tensor.Buffer.
var _ tensor.Buffer = (*MockBuffer)(nil)

// Peek returns the backing slice without requiring an active scope.
func (b *MockBuffer) Peek() []float32 {
	return b.data
}

func (b *MockBuffer) guard(op string) error {
	if !b.dev.Active() {
		return fmt.Errorf("%w: %s on %s", ErrInactiveDevice, op, b.dev.loc)
	}
	return nil
}

// Location implements tensor.Buffer.
func (b *MockBuffer) Location() tensor.Location { return b.dev.loc }

// Shape implements tensor.Buffer.
func (b *MockBuffer) Shape() tensor.Shape { return b.shape }

// Len implements tensor.Buffer.
func (b *MockBuffer) Len() int { return len(b.data) }

// Fill implements tensor.Buffer.
func (b *MockBuffer) Fill(v float32) error {
	if err := b.guard("fill"); err != nil {
		return err
	}
	for i := range b.data {
		b.data[i] = v
	}
	return nil
}

// Scale implements tensor.Buffer.
func (b *MockBuffer) Scale(alpha float32) error {
	if err := b.guard("scale"); err != nil {
		return err
	}
	for i := range b.data {
		b.data[i] *= alpha
	}
	return nil
}

// Axpy implements tensor.Buffer.
func (b *MockBuffer) Axpy(alpha float32, x tensor.Buffer) error {
	if err := b.guard("axpy"); err != nil {
		return err
	}
	if err := tensor.CheckOperands(b, x); err != nil {
		return err
	}
	src, ok := x.(*MockBuffer)
	if !ok {
		return fmt.Errorf("%w: foreign buffer type %T", tensor.ErrLocationMismatch, x)
	}
	for i := range b.data {
		b.data[i] += alpha * src.data[i]
	}
	return nil
}

// SquaredNorm implements tensor.Buffer.
func (b *MockBuffer) SquaredNorm() (float64, error) {
	if err := b.guard("squared norm"); err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range b.data {
		sum += float64(v) * float64(v)
	}
	return sum, nil
}

// Like implements tensor.Buffer.
func (b *MockBuffer) Like() (tensor.Buffer, error) {
	if err := b.guard("alloc"); err != nil {
		return nil, err
	}
	return b.dev.Alloc(b.shape)
}

// Host implements tensor.Buffer.
func (b *MockBuffer) Host() ([]float32, error) {
	if err := b.guard("read"); err != nil {
		return nil, err
	}
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Load implements tensor.Buffer.
func (b *MockBuffer) Load(data []float32) error {
	if err := b.guard("write"); err != nil {
		return err
	}
	if err := tensor.CheckLength(data, b.shape); err != nil {
		return err
	}
	copy(b.data, data)
	return nil
}
