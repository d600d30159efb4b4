//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/born-optim/internal/tensor"
)

// Backend is one opened WebGPU device.
//
// Buffer operations are recorded and submitted while the device is active.
// Activate serializes submissions: one operation at a time owns the queue.
type Backend struct {
	index int

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	submit sync.Mutex
	active atomic.Bool
}

// New opens a WebGPU device and assigns it accelerator ordinal index.
// Returns ErrUnavailable if the native library or an adapter is missing.
func New(index int) (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	if index < 0 {
		return nil, fmt.Errorf("webgpu: negative device index %d", index)
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		index:       index,
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: &adapterInfo,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Name, b.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// Location returns webgpu:index.
func (b *Backend) Location() tensor.Location {
	return tensor.Accelerator(tensor.WebGPU, b.index)
}

// Activate takes the device's submission lock. The returned function
// releases it; calling it more than once has no further effect.
func (b *Backend) Activate() (func(), error) {
	b.submit.Lock()
	if b.device == nil {
		b.submit.Unlock()
		return nil, fmt.Errorf("%w: device released", ErrUnavailable)
	}
	b.active.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.active.Store(false)
			b.submit.Unlock()
		})
	}, nil
}

// Alloc allocates a zero-filled storage buffer.
func (b *Backend) Alloc(shape tensor.Shape) (tensor.Buffer, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return b.newBuffer(shape, nil)
}

// Upload copies data into a new storage buffer.
func (b *Backend) Upload(data []float32, shape tensor.Shape) (tensor.Buffer, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := tensor.CheckLength(data, shape); err != nil {
		return nil, err
	}
	return b.newBuffer(shape, data)
}

// Release frees all cached pipelines and the device. Buffers allocated by
// the backend must not be used afterwards.
func (b *Backend) Release() {
	b.submit.Lock()
	defer b.submit.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil

	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

func (b *Backend) requireActive() error {
	if !b.active.Load() {
		return fmt.Errorf("%w: %s", ErrInactive, b.Location())
	}
	return nil
}
