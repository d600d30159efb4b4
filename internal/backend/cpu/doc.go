// Package cpu implements host-resident buffers.
//
// Reductions and scaled additions go through gonum's float32 BLAS; long
// buffers are split across goroutines with internal/parallel.
package cpu
