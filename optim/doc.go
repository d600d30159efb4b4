// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizer update protocol for training loops.
//
// # Overview
//
// An Optimizer holds ordered (parameter, gradient, state) slots and a step
// counter. It owns everything around a parameter update:
//   - Setup binds parameters and gradients and creates per-slot state
//   - ZeroGrads, WeightDecay, ComputeGradsNorm and ClipGrads prepare gradients
//   - AccumulateGrads sums gradients from data-parallel shards on any device
//   - Update advances the counter and applies the Rule to every slot
//
// The update formula itself is a Rule supplied by the caller.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/born-optim/backend/cpu"
//	    "github.com/born-ml/born-optim/optim"
//	    "github.com/born-ml/born-optim/tensor"
//	)
//
//	type sgd struct{ lr float32 }
//
//	func (sgd) Name() string { return "sgd" }
//	func (sgd) NewState(_, _ tensor.Buffer) (optim.State, error) { return nil, nil }
//	func (r sgd) Update(p, g tensor.Buffer, _ optim.State, _ int) error {
//	    return p.Axpy(-r.lr, g)
//	}
//
//	func main() {
//	    w, _ := cpu.FromSlice(weights, tensor.Shape{784, 10})
//	    g, _ := cpu.New(tensor.Shape{784, 10})
//
//	    opt := optim.New(sgd{lr: 0.01})
//	    _ = opt.Setup([]tensor.Buffer{w}, []tensor.Buffer{g})
//
//	    for step := range steps {
//	        _ = opt.ZeroGrads()
//	        backward(step) // accumulates into g
//	        _, _ = opt.ClipGrads(1.0)
//	        _ = opt.Update()
//	    }
//	}
//
// # Accelerators
//
// Buffers on accelerators are operated on inside a device scope. Pass a
// device.Context holding the opened devices with WithContext:
//
//	devices := device.NewContext()
//	_ = devices.Register(gpu)
//	opt := optim.New(rule, optim.WithContext(devices))
package optim
