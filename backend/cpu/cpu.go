// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides host-memory buffers backed by gonum BLAS.
//
// Example:
//
//	import (
//	    "github.com/born-ml/born-optim/backend/cpu"
//	    "github.com/born-ml/born-optim/tensor"
//	)
//
//	func main() {
//	    w, _ := cpu.FromSlice(weights, tensor.Shape{784, 10})
//	    g, _ := cpu.New(tensor.Shape{784, 10})
//	    _ = g.Axpy(5e-4, w)
//	}
package cpu

import (
	internalcpu "github.com/born-ml/born-optim/internal/backend/cpu"
	"github.com/born-ml/born-optim/tensor"
)

// Buffer is a float32 array in host memory.
type Buffer = internalcpu.Buffer

// Backend is the host device.
type Backend = internalcpu.Backend

// Compile-time check that Buffer implements tensor.Buffer.
var _ tensor.Buffer = (*Buffer)(nil)

// New allocates a zero-filled host buffer.
func New(shape tensor.Shape) (*Buffer, error) {
	return internalcpu.New(shape)
}

// FromSlice wraps data without copying. Updates through the buffer are
// visible in data.
func FromSlice(data []float32, shape tensor.Shape) (*Buffer, error) {
	return internalcpu.FromSlice(data, shape)
}
