package optim

import "github.com/born-ml/born-optim/internal/tensor"

// State is the auxiliary data a rule keeps for one parameter, keyed by name
// (for example "velocity"). A nil State means the rule keeps nothing.
//
// The optimizer creates State once per slot at Setup and hands the same map
// to every Update call. Rules must mutate the buffers in place rather than
// replace them, or history such as momentum is lost between steps.
type State map[string]tensor.Buffer

// Rule is the numeric update strategy applied to each parameter.
type Rule interface {
	// Name identifies the rule in logs and state snapshots.
	Name() string

	// NewState allocates the initial state for one parameter/gradient pair.
	// It runs with the parameter's device current.
	NewState(param, grad tensor.Buffer) (State, error)

	// Update applies one step to param using grad and state. t is the
	// step counter, already incremented for this step. grad must be
	// treated as read-only.
	Update(param, grad tensor.Buffer, state State, t int) error
}

// BackendRule is implemented by rules with device-specialized kernels.
//
// Kernel returns the rule to use for buffers on dev, or nil to fall back to
// the generic rule. The optimizer asks once per slot at Setup.
type BackendRule interface {
	Rule
	Kernel(dev tensor.Device) Rule
}

// baseRule keeps no state and has no update formula.
type baseRule struct{}

func (baseRule) Name() string { return "base" }

func (baseRule) NewState(_, _ tensor.Buffer) (State, error) { return nil, nil }

func (baseRule) Update(_, _ tensor.Buffer, _ State, _ int) error { return ErrNotImplemented }

// resolveRule picks the kernel for buffers on dev.
func resolveRule(r Rule, dev tensor.Device) Rule {
	br, ok := r.(BackendRule)
	if !ok {
		return r
	}
	if k := br.Kernel(dev); k != nil {
		return k
	}
	return r
}
