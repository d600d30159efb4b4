// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor defines the buffer abstraction consumed by the optimizer.
//
// A Buffer is a mutable float32 array that lives in one memory space (a
// Location): host memory, or a specific accelerator. The optimizer only
// needs a closed set of in-place primitives from it: Fill, Scale, Axpy and
// SquaredNorm, plus host copies for checkpointing.
package tensor

import "github.com/born-ml/born-optim/internal/tensor"

// Buffer is a mutable float32 array resident in one memory space.
type Buffer = tensor.Buffer

// Shape represents the dimensions of a buffer.
type Shape = tensor.Shape

// Device identifies a kind of compute device.
type Device = tensor.Device

// Location names a memory space: a device kind plus ordinal.
type Location = tensor.Location

// Device kinds.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// Host is the host memory location.
var Host = tensor.Host

// Accelerator returns the location of accelerator index of kind d.
func Accelerator(d Device, index int) Location {
	return tensor.Accelerator(d, index)
}

// Errors returned by buffer operations.
var (
	ErrInvalidShape     = tensor.ErrInvalidShape
	ErrShapeMismatch    = tensor.ErrShapeMismatch
	ErrLocationMismatch = tensor.ErrLocationMismatch
	ErrDataLength       = tensor.ErrDataLength
)
