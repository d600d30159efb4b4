// Package optim implements the optimizer update protocol.
//
// An Optimizer holds an ordered list of slots, each a (parameter, gradient,
// state) triple, and a step counter. The numeric formula that turns a
// gradient into a parameter change is supplied by a Rule; the optimizer
// owns everything around it:
//   - Setup: build slots and per-parameter state once
//   - ZeroGrads: clear gradients before backprop accumulates into them
//   - ComputeGradsNorm / ClipGrads: global L2 norm and rescaling
//   - WeightDecay: L2 regularization applied to gradients
//   - AccumulateGrads: sum gradients from data-parallel shards
//   - Update: advance the step counter and apply the rule to every slot
//
// Parameters and gradients are referenced, never copied. Every per-buffer
// operation runs inside a device.Context scope for the buffer's location.
//
// Example usage:
//
//	opt := optim.New(rule, optim.WithContext(devices))
//	if err := opt.Setup(params, grads); err != nil {
//	    return err
//	}
//
//	for step := range steps {
//	    _ = opt.ZeroGrads()
//	    backward(model, batch) // accumulates into grads
//	    _ = opt.WeightDecay(5e-4)
//	    _, _ = opt.ClipGrads(1.0)
//	    _ = opt.Update()
//	}
package optim

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/born-ml/born-optim/internal/device"
	"github.com/born-ml/born-optim/internal/tensor"
)

// Slot is one parameter with its gradient and optimizer state.
type Slot struct {
	Param tensor.Buffer
	Grad  tensor.Buffer
	State State

	rule Rule // Kernel resolved for Param's device at Setup
}

// Optimizer applies a Rule to a fixed set of parameters.
//
// An Optimizer is driven by a single caller; it performs no internal
// locking. Concurrent AccumulateGrads calls must be serialized by the caller.
type Optimizer struct {
	rule    Rule
	devices *device.Context
	logger  *zap.Logger

	slots []Slot
	t     int
	ready bool
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithContext sets the device context used to scope buffer operations.
// The default context only knows the host.
func WithContext(devices *device.Context) Option {
	return func(o *Optimizer) {
		if devices != nil {
			o.devices = devices
		}
	}
}

// New creates an unconfigured optimizer. A nil rule yields the base rule,
// which keeps no state and fails Update with ErrNotImplemented.
func New(rule Rule, opts ...Option) *Optimizer {
	if rule == nil {
		rule = baseRule{}
	}
	o := &Optimizer{
		rule:    rule,
		devices: device.NewContext(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("rule", rule.Name()))
	return o
}

// Setup binds the optimizer to params and grads, matched by position, and
// creates each slot's state. It resets the step counter to 0.
//
// Setup may run once; a ready optimizer must be Reset before it can be set
// up again.
func (o *Optimizer) Setup(params, grads []tensor.Buffer) error {
	if o.ready {
		return ErrAlreadyConfigured
	}
	if len(params) != len(grads) {
		return fmt.Errorf("%w: %d parameters, %d gradients", ErrLengthMismatch, len(params), len(grads))
	}

	slots := make([]Slot, 0, len(params))
	for i := range params {
		p, g := params[i], grads[i]
		if p == nil || g == nil {
			return fmt.Errorf("slot %d: %w", i, ErrNilBuffer)
		}
		if err := tensor.CheckOperands(p, g); err != nil {
			return fmt.Errorf("%w: slot %d: %w", ErrBackendMismatch, i, err)
		}

		rule := resolveRule(o.rule, p.Location().Device)

		var state State
		err := o.devices.Use(p.Location(), func() error {
			var initErr error
			state, initErr = rule.NewState(p, g)
			return initErr
		})
		if err != nil {
			return fmt.Errorf("slot %d: init state: %w", i, err)
		}

		slots = append(slots, Slot{Param: p, Grad: g, State: state, rule: rule})
	}

	o.slots = slots
	o.t = 0
	o.ready = true

	o.logger.Debug("optimizer set up", zap.Int("slots", len(slots)))
	return nil
}

// Reset drops all slots and state and returns the optimizer to the
// unconfigured state.
func (o *Optimizer) Reset() {
	o.slots = nil
	o.t = 0
	o.ready = false
}

// Ready reports whether Setup has succeeded.
func (o *Optimizer) Ready() bool {
	return o.ready
}

// T returns the number of Update calls since Setup.
func (o *Optimizer) T() int {
	return o.t
}

// Len returns the number of slots.
func (o *Optimizer) Len() int {
	return len(o.slots)
}

// Slots returns the slots in Setup order. The buffers are shared with the
// optimizer; the slice is a copy.
func (o *Optimizer) Slots() []Slot {
	out := make([]Slot, len(o.slots))
	copy(out, o.slots)
	return out
}

// Rule returns the rule given to New.
func (o *Optimizer) Rule() Rule {
	return o.rule
}

// ZeroGrads fills every gradient buffer with zeros.
//
// Backprop accumulates into gradients, so call this before each backward pass.
func (o *Optimizer) ZeroGrads() error {
	if !o.ready {
		return ErrNotConfigured
	}
	for i, s := range o.slots {
		err := o.devices.Use(s.Grad.Location(), func() error {
			return s.Grad.Fill(0)
		})
		if err != nil {
			return fmt.Errorf("slot %d: zero grad: %w", i, err)
		}
	}
	return nil
}

// ComputeGradsNorm returns the L2 norm over all gradient elements of all slots.
//
// The result is a host value, so this waits for pending accelerator work on
// every gradient. NaN and Inf propagate unchanged.
func (o *Optimizer) ComputeGradsNorm() (float64, error) {
	if !o.ready {
		return 0, ErrNotConfigured
	}

	var sqnorm float64
	for i, s := range o.slots {
		var sq float64
		err := o.devices.Use(s.Grad.Location(), func() error {
			var normErr error
			sq, normErr = s.Grad.SquaredNorm()
			return normErr
		})
		if err != nil {
			return 0, fmt.Errorf("slot %d: grad norm: %w", i, err)
		}
		sqnorm += sq
	}
	return math.Sqrt(sqnorm), nil
}

// ClipGrads rescales all gradients by maxnorm/norm when the global gradient
// norm exceeds maxnorm. It returns the norm measured before clipping.
func (o *Optimizer) ClipGrads(maxnorm float64) (float64, error) {
	if !o.ready {
		return 0, ErrNotConfigured
	}
	if !(maxnorm > 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidMaxNorm, maxnorm)
	}

	norm, err := o.ComputeGradsNorm()
	if err != nil {
		return 0, err
	}
	if !(norm > maxnorm) {
		return norm, nil
	}

	ratio := maxnorm / norm
	for i, s := range o.slots {
		err := o.devices.Use(s.Grad.Location(), func() error {
			return s.Grad.Scale(float32(ratio))
		})
		if err != nil {
			return norm, fmt.Errorf("slot %d: clip grad: %w", i, err)
		}
	}

	o.logger.Debug("clipped gradients",
		zap.Float64("norm", norm),
		zap.Float64("max_norm", maxnorm),
		zap.Float64("ratio", ratio),
	)
	return norm, nil
}

// WeightDecay adds decay*param to every gradient: grad += decay * param.
// decay is expected to be non-negative.
func (o *Optimizer) WeightDecay(decay float64) error {
	if !o.ready {
		return ErrNotConfigured
	}
	for i, s := range o.slots {
		err := o.devices.Use(s.Param.Location(), func() error {
			return s.Grad.Axpy(float32(decay), s.Param)
		})
		if err != nil {
			return fmt.Errorf("slot %d: weight decay: %w", i, err)
		}
	}
	return nil
}

// AccumulateGrads adds each buffer in src into the gradient of the slot at
// the same position. Sources may live anywhere; each one is moved to its
// destination gradient's location first. The sum is not averaged.
//
// Every source is checked before any gradient is written, so a rejected
// call leaves all gradients unchanged.
func (o *Optimizer) AccumulateGrads(src []tensor.Buffer) error {
	if !o.ready {
		return ErrNotConfigured
	}
	if len(src) != len(o.slots) {
		return fmt.Errorf("%w: %d sources for %d slots", ErrLengthMismatch, len(src), len(o.slots))
	}

	for i, s := range o.slots {
		if src[i] == nil {
			return fmt.Errorf("slot %d: %w", i, ErrNilBuffer)
		}
		if !src[i].Shape().Equal(s.Grad.Shape()) {
			return fmt.Errorf("slot %d: %w: %v vs %v", i, tensor.ErrShapeMismatch, src[i].Shape(), s.Grad.Shape())
		}
	}

	for i, s := range o.slots {
		dst := s.Grad.Location()
		x, err := o.devices.Transfer(src[i], dst)
		if err != nil {
			return fmt.Errorf("slot %d: transfer from %s: %w", i, src[i].Location(), err)
		}

		err = o.devices.Use(dst, func() error {
			return s.Grad.Axpy(1, x)
		})
		if err != nil {
			return fmt.Errorf("slot %d: accumulate grad: %w", i, err)
		}
	}
	return nil
}

// Update increments the step counter and applies the rule to every slot in
// order. If a slot fails, later slots are not updated and the counter stays
// incremented.
func (o *Optimizer) Update() error {
	if !o.ready {
		return ErrNotConfigured
	}

	o.t++
	for i, s := range o.slots {
		err := o.devices.Use(s.Param.Location(), func() error {
			return s.rule.Update(s.Param, s.Grad, s.State, o.t)
		})
		if err != nil {
			return fmt.Errorf("slot %d: update: %w", i, err)
		}
	}

	o.logger.Debug("update step", zap.Int("t", o.t))
	return nil
}
