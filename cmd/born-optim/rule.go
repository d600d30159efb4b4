package main

import (
	"github.com/born-ml/born-optim/internal/optim"
	"github.com/born-ml/born-optim/internal/tensor"
)

// rehearsalRule is heavy-ball momentum used by the rehearse command:
//
//	v = mu*v + g
//	p = p - lr*v
type rehearsalRule struct {
	lr float32
	mu float32
}

func (r rehearsalRule) Name() string { return "rehearsal-momentum" }

func (r rehearsalRule) NewState(param, _ tensor.Buffer) (optim.State, error) {
	v, err := param.Like()
	if err != nil {
		return nil, err
	}
	return optim.State{"velocity": v}, nil
}

func (r rehearsalRule) Update(param, grad tensor.Buffer, state optim.State, _ int) error {
	v := state["velocity"]
	if err := v.Scale(r.mu); err != nil {
		return err
	}
	if err := v.Axpy(1, grad); err != nil {
		return err
	}
	return param.Axpy(-r.lr, v)
}
