package optim

import (
	"fmt"
	"sort"

	"github.com/born-ml/born-optim/internal/tensor"
)

// Snapshot is a host copy of an optimizer's step counter and state buffers.
type Snapshot struct {
	Rule    string
	T       int
	Tensors map[string]StateTensor
}

// StateTensor is one state buffer copied to host memory.
type StateTensor struct {
	Shape tensor.Shape
	Data  []float32
}

// StateKey names state buffer name of slot i: "state.{i}.{name}".
func StateKey(slot int, name string) string {
	return fmt.Sprintf("state.%d.%s", slot, name)
}

// StateDict copies the step counter and every state buffer to the host.
// Rules without state produce a snapshot with no tensors.
func (o *Optimizer) StateDict() (Snapshot, error) {
	if !o.ready {
		return Snapshot{}, ErrNotConfigured
	}

	snap := Snapshot{
		Rule:    o.rule.Name(),
		T:       o.t,
		Tensors: make(map[string]StateTensor),
	}
	for i, s := range o.slots {
		for _, name := range stateNames(s.State) {
			buf := s.State[name]

			var data []float32
			err := o.devices.Use(buf.Location(), func() error {
				var readErr error
				data, readErr = buf.Host()
				return readErr
			})
			if err != nil {
				return Snapshot{}, fmt.Errorf("slot %d: read state %q: %w", i, name, err)
			}

			snap.Tensors[StateKey(i, name)] = StateTensor{
				Shape: buf.Shape().Clone(),
				Data:  data,
			}
		}
	}
	return snap, nil
}

// LoadStateDict restores the step counter and state from snap.
//
// The snapshot must come from the same rule and cover exactly the state
// buffers this optimizer created at Setup. Everything is validated before
// any buffer is written; values are loaded into the existing buffers so
// state identity is preserved.
func (o *Optimizer) LoadStateDict(snap Snapshot) error {
	if !o.ready {
		return ErrNotConfigured
	}
	if snap.Rule != o.rule.Name() {
		return fmt.Errorf("%w: snapshot rule %q, optimizer rule %q", ErrStateMismatch, snap.Rule, o.rule.Name())
	}
	if snap.T < 0 {
		return fmt.Errorf("%w: negative step %d", ErrStateMismatch, snap.T)
	}

	expected := 0
	for i, s := range o.slots {
		for _, name := range stateNames(s.State) {
			key := StateKey(i, name)
			st, ok := snap.Tensors[key]
			if !ok {
				return fmt.Errorf("%w: missing %s", ErrStateMismatch, key)
			}
			if !st.Shape.Equal(s.State[name].Shape()) {
				return fmt.Errorf("%w: %s shape %v, want %v", ErrStateMismatch, key, st.Shape, s.State[name].Shape())
			}
			if err := tensor.CheckLength(st.Data, st.Shape); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrStateMismatch, key, err)
			}
			expected++
		}
	}
	if len(snap.Tensors) != expected {
		return fmt.Errorf("%w: snapshot has %d tensors, optimizer has %d", ErrStateMismatch, len(snap.Tensors), expected)
	}

	for i, s := range o.slots {
		for _, name := range stateNames(s.State) {
			buf := s.State[name]
			data := snap.Tensors[StateKey(i, name)].Data
			err := o.devices.Use(buf.Location(), func() error {
				return buf.Load(data)
			})
			if err != nil {
				return fmt.Errorf("slot %d: load state %q: %w", i, name, err)
			}
		}
	}

	o.t = snap.T
	return nil
}

// stateNames returns the keys of s in sorted order.
func stateNames(s State) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
