// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"go.uber.org/zap"

	"github.com/born-ml/born-optim/device"
	"github.com/born-ml/born-optim/internal/optim"
)

// Optimizer applies a Rule to a fixed set of parameters.
type Optimizer = optim.Optimizer

// Rule is the numeric update strategy applied to each parameter.
type Rule = optim.Rule

// BackendRule is a Rule with device-specialized kernels.
type BackendRule = optim.BackendRule

// State is the auxiliary data a rule keeps for one parameter.
type State = optim.State

// Slot is one parameter with its gradient and state.
type Slot = optim.Slot

// Option configures an Optimizer.
type Option = optim.Option

// Snapshot is a host copy of an optimizer's step counter and state.
type Snapshot = optim.Snapshot

// StateTensor is one state buffer copied to host memory.
type StateTensor = optim.StateTensor

// Errors returned by Optimizer methods.
var (
	ErrNotConfigured     = optim.ErrNotConfigured
	ErrAlreadyConfigured = optim.ErrAlreadyConfigured
	ErrLengthMismatch    = optim.ErrLengthMismatch
	ErrBackendMismatch   = optim.ErrBackendMismatch
	ErrNilBuffer         = optim.ErrNilBuffer
	ErrNotImplemented    = optim.ErrNotImplemented
	ErrInvalidMaxNorm    = optim.ErrInvalidMaxNorm
	ErrStateMismatch     = optim.ErrStateMismatch
)

// New creates an unconfigured optimizer. A nil rule yields a rule with no
// state whose Update fails with ErrNotImplemented.
func New(rule Rule, opts ...Option) *Optimizer {
	return optim.New(rule, opts...)
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return optim.WithLogger(logger)
}

// WithContext sets the device context used to scope buffer operations.
func WithContext(devices *device.Context) Option {
	return optim.WithContext(devices)
}

// StateKey returns the snapshot key of state buffer name in slot i.
func StateKey(slot int, name string) string {
	return optim.StateKey(slot, name)
}
