// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides float32 buffers on a WebGPU device.
//
// The backend is available on Windows. Elsewhere New returns
// ErrUnavailable, so callers can fall back to host buffers:
//
//	devices := device.NewContext()
//	if gpu, err := webgpu.New(0); err == nil {
//	    defer gpu.Release()
//	    _ = devices.Register(gpu)
//	}
package webgpu

import internalwebgpu "github.com/born-ml/born-optim/internal/backend/webgpu"

// Backend is one opened WebGPU device.
type Backend = internalwebgpu.Backend

// Errors returned by the backend.
var (
	ErrUnavailable = internalwebgpu.ErrUnavailable
	ErrInactive    = internalwebgpu.ErrInactive
)

// New opens a WebGPU device as accelerator ordinal index.
// Call Release() when done to free GPU resources.
func New(index int) (*Backend, error) {
	return internalwebgpu.New(index)
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
