//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/born-optim/internal/tensor"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// binding is one buffer bound at the next binding slot of group 0.
type binding struct {
	buffer *wgpu.Buffer
	size   uint64
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// newBuffer creates a storage buffer for shape, initialized from data when
// data is non-nil and zero-filled otherwise.
func (b *Backend) newBuffer(shape tensor.Shape, data []float32) (*Buffer, error) {
	n := shape.NumElements()
	if workgroupCount(n) > maxWorkgroups {
		return nil, fmt.Errorf("%w: %d elements", ErrTooLarge, n)
	}

	size := uint64(n) * 4
	var buffer *wgpu.Buffer
	if data != nil {
		buffer = b.createBuffer(encodeFloats(data), storageUsage)
	} else {
		buffer = b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: storageUsage,
			Size:  size,
		})
	}

	return &Buffer{
		backend: b,
		buffer:  buffer,
		shape:   shape.Clone(),
		size:    size,
	}, nil
}

// createBuffer creates a GPU buffer holding data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createParams creates the 16-byte uniform shared by every kernel:
// element count followed by a scalar operand.
func (b *Backend) createParams(n int, alpha float32) *wgpu.Buffer {
	params := make([]byte, 16)
	//nolint:gosec // G115: element count is bounded by the dispatch limit
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	binary.LittleEndian.PutUint32(params[4:8], math.Float32bits(alpha))
	return b.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

// copyInto uploads data into an existing storage buffer through a staging
// buffer.
func (b *Backend) copyInto(dst *wgpu.Buffer, data []byte) {
	size := uint64(len(data))
	staging := b.createBuffer(data, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	// Mapping waits for all submitted work that touches src.
	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)

	staging.Unmap()
	return result, nil
}

// dispatch runs kernel name over n elements with the given storage
// bindings followed by the uniform params at the last slot.
func (b *Backend) dispatch(name, code string, n int, alpha float32, bindings ...binding) {
	shader := b.compileShader(name, code)
	pipeline := b.getOrCreatePipeline(name, shader)

	params := b.createParams(n, alpha)
	defer params.Release()

	entries := make([]wgpu.BindGroupEntry, 0, len(bindings)+1)
	for i, bd := range bindings {
		//nolint:gosec // G115: binding count is tiny
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), bd.buffer, 0, bd.size))
	}
	//nolint:gosec // G115: binding count is tiny
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(bindings)), params, 0, 16))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: bounded by maxWorkgroups at allocation
	computePass.DispatchWorkgroups(uint32(workgroupCount(n)), 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)
}

// workgroupCount returns ceil(n / workgroupSize).
func workgroupCount(n int) int {
	return (n + workgroupSize - 1) / workgroupSize
}

func encodeFloats(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
