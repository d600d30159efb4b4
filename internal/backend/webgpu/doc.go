// Package webgpu implements accelerator-resident buffers on a WebGPU device.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The backend is built on Windows, where wgpu_native is loaded at runtime.
// On other platforms New returns ErrUnavailable.
package webgpu

import "errors"

// Common errors.
var (
	ErrUnavailable   = errors.New("webgpu: not available on this system")
	ErrInactive      = errors.New("webgpu: device is not active")
	ErrTooLarge      = errors.New("webgpu: buffer exceeds dispatch limit")
	ErrForeignBuffer = errors.New("webgpu: buffer belongs to another device")
)
