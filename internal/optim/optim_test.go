package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/born-ml/born-optim/internal/backend/cpu"
	"github.com/born-ml/born-optim/internal/device"
	"github.com/born-ml/born-optim/internal/optim"
	"github.com/born-ml/born-optim/internal/tensor"
)

// momentum is SGD with momentum:
//
//	velocity = mu * velocity + grad
//	param    = param - lr * velocity
type momentum struct {
	lr, mu float32
}

func (m momentum) Name() string { return "momentum" }

func (m momentum) NewState(param, _ tensor.Buffer) (optim.State, error) {
	v, err := param.Like()
	if err != nil {
		return nil, err
	}
	return optim.State{"velocity": v}, nil
}

func (m momentum) Update(param, grad tensor.Buffer, state optim.State, _ int) error {
	v := state["velocity"]
	if err := v.Scale(m.mu); err != nil {
		return err
	}
	if err := v.Axpy(1, grad); err != nil {
		return err
	}
	return param.Axpy(-m.lr, v)
}

// stepRecorder remembers the step counter passed to each Update call.
type stepRecorder struct {
	steps []int
}

func (r *stepRecorder) Name() string { return "recorder" }

func (r *stepRecorder) NewState(_, _ tensor.Buffer) (optim.State, error) { return nil, nil }

func (r *stepRecorder) Update(_, _ tensor.Buffer, _ optim.State, t int) error {
	r.steps = append(r.steps, t)
	return nil
}

func host(t *testing.T, data ...float32) *cpu.Buffer {
	t.Helper()
	buf, err := cpu.FromSlice(data, tensor.Shape{len(data)})
	require.NoError(t, err)
	return buf
}

func setup(t *testing.T, opt *optim.Optimizer, params, grads []tensor.Buffer) {
	t.Helper()
	require.NoError(t, opt.Setup(params, grads))
}

func TestSetup_CountsSlotsAndResetsStep(t *testing.T) {
	params := []tensor.Buffer{host(t, 1, 2), host(t, 3), host(t, 4, 5, 6)}
	grads := []tensor.Buffer{host(t, 0, 0), host(t, 0), host(t, 0, 0, 0)}

	opt := optim.New(nil)
	assert.False(t, opt.Ready())

	setup(t, opt, params, grads)
	assert.True(t, opt.Ready())
	assert.Equal(t, 3, opt.Len())
	assert.Equal(t, 0, opt.T())

	for i, s := range opt.Slots() {
		assert.Same(t, params[i], s.Param, "slot %d param is referenced, not copied", i)
		assert.Same(t, grads[i], s.Grad, "slot %d grad is referenced, not copied", i)
		assert.Nil(t, s.State, "base rule keeps no state")
	}
}

func TestSetup_Errors(t *testing.T) {
	gpu := device.NewMockAccelerator(tensor.WebGPU, 0)
	gpuGrad, err := gpu.FromSlice([]float32{0, 0}, tensor.Shape{2})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params []tensor.Buffer
		grads  []tensor.Buffer
		want   error
	}{
		{"length", []tensor.Buffer{host(t, 1)}, nil, optim.ErrLengthMismatch},
		{"shape", []tensor.Buffer{host(t, 1, 2)}, []tensor.Buffer{host(t, 1)}, tensor.ErrShapeMismatch},
		{"location", []tensor.Buffer{host(t, 1, 2)}, []tensor.Buffer{gpuGrad}, tensor.ErrLocationMismatch},
		{"nil", []tensor.Buffer{nil}, []tensor.Buffer{host(t, 1)}, optim.ErrNilBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := optim.New(nil)
			err := opt.Setup(tt.params, tt.grads)
			require.ErrorIs(t, err, tt.want)
			assert.False(t, opt.Ready())
		})
	}

	opt := optim.New(nil)
	err = opt.Setup([]tensor.Buffer{host(t, 1, 2)}, []tensor.Buffer{gpuGrad})
	require.ErrorIs(t, err, optim.ErrBackendMismatch)
}

func TestSetup_TwiceRequiresReset(t *testing.T) {
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 1)}, []tensor.Buffer{host(t, 0)})
	require.ErrorIs(t, opt.Update(), optim.ErrNotImplemented)
	assert.Equal(t, 1, opt.T())

	err := opt.Setup([]tensor.Buffer{host(t, 1)}, []tensor.Buffer{host(t, 0)})
	require.ErrorIs(t, err, optim.ErrAlreadyConfigured)

	opt.Reset()
	assert.False(t, opt.Ready())
	setup(t, opt, []tensor.Buffer{host(t, 1), host(t, 2)}, []tensor.Buffer{host(t, 0), host(t, 0)})
	assert.Equal(t, 2, opt.Len())
	assert.Equal(t, 0, opt.T())
}

func TestOperationsRequireSetup(t *testing.T) {
	opt := optim.New(nil)

	require.ErrorIs(t, opt.ZeroGrads(), optim.ErrNotConfigured)
	_, err := opt.ComputeGradsNorm()
	require.ErrorIs(t, err, optim.ErrNotConfigured)
	_, err = opt.ClipGrads(1)
	require.ErrorIs(t, err, optim.ErrNotConfigured)
	require.ErrorIs(t, opt.WeightDecay(0.1), optim.ErrNotConfigured)
	require.ErrorIs(t, opt.AccumulateGrads(nil), optim.ErrNotConfigured)
	require.ErrorIs(t, opt.Update(), optim.ErrNotConfigured)
	_, err = opt.StateDict()
	require.ErrorIs(t, err, optim.ErrNotConfigured)
	require.ErrorIs(t, opt.LoadStateDict(optim.Snapshot{}), optim.ErrNotConfigured)

	assert.Equal(t, 0, opt.T())
}

func TestZeroGradsThenNormIsZero(t *testing.T) {
	g1, g2 := host(t, 1, -2, 3), host(t, 4)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0, 0), host(t, 0)}, []tensor.Buffer{g1, g2})

	require.NoError(t, opt.ZeroGrads())
	norm, err := opt.ComputeGradsNorm()
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm)
	assert.Equal(t, []float32{0, 0, 0}, g1.Data())
}

func TestComputeGradsNorm(t *testing.T) {
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 1, 2)}, []tensor.Buffer{host(t, 3, 4)})

	norm, err := opt.ComputeGradsNorm()
	require.NoError(t, err)
	assert.Equal(t, 5.0, norm)
}

func TestComputeGradsNorm_OrderInvariant(t *testing.T) {
	a := []float32{0.5, -1.25, 2}
	b := []float32{3, 0.75}
	c := []float32{-4}

	var want float64
	for _, v := range append(append(append([]float32{}, a...), b...), c...) {
		want += float64(v) * float64(v)
	}
	want = math.Sqrt(want)

	forward := optim.New(nil)
	setup(t, forward,
		[]tensor.Buffer{host(t, 0, 0, 0), host(t, 0, 0), host(t, 0)},
		[]tensor.Buffer{host(t, a...), host(t, b...), host(t, c...)})
	reversed := optim.New(nil)
	setup(t, reversed,
		[]tensor.Buffer{host(t, 0), host(t, 0, 0), host(t, 0, 0, 0)},
		[]tensor.Buffer{host(t, c...), host(t, b...), host(t, a...)})

	n1, err := forward.ComputeGradsNorm()
	require.NoError(t, err)
	n2, err := reversed.ComputeGradsNorm()
	require.NoError(t, err)

	assert.InDelta(t, want, n1, 1e-9)
	assert.InDelta(t, n1, n2, 1e-9)
}

func TestClipGrads_AboveThreshold(t *testing.T) {
	g := host(t, 3, 4)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 1, 2)}, []tensor.Buffer{g})

	pre, err := opt.ClipGrads(2.5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, pre)
	assert.Equal(t, []float32{1.5, 2}, g.Data())

	post, err := opt.ComputeGradsNorm()
	require.NoError(t, err)
	assert.InDelta(t, 2.5, post, 1e-6)
}

func TestClipGrads_SameRatioAcrossSlots(t *testing.T) {
	g1, g2 := host(t, 6, 0), host(t, 0, 8)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0), host(t, 0, 0)}, []tensor.Buffer{g1, g2})

	_, err := opt.ClipGrads(1)
	require.NoError(t, err)

	// Global norm is 10, so both buffers shrink by 0.1 rather than each to norm 1.
	assert.InDelta(t, 0.6, g1.Data()[0], 1e-6)
	assert.InDelta(t, 0.8, g2.Data()[1], 1e-6)
}

func TestClipGrads_AtOrBelowThresholdIsNoop(t *testing.T) {
	g := host(t, 3, 4)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0)}, []tensor.Buffer{g})

	for _, maxnorm := range []float64{5, 10} {
		_, err := opt.ClipGrads(maxnorm)
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 4}, g.Data())
	}
}

func TestClipGrads_InvalidThreshold(t *testing.T) {
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0)}, []tensor.Buffer{host(t, 1)})

	for _, maxnorm := range []float64{0, -1, math.NaN()} {
		_, err := opt.ClipGrads(maxnorm)
		require.ErrorIs(t, err, optim.ErrInvalidMaxNorm)
	}
}

func TestClipGrads_NaNPassesThrough(t *testing.T) {
	nan := float32(math.NaN())
	g := host(t, nan, 100)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0)}, []tensor.Buffer{g})

	norm, err := opt.ClipGrads(1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(norm))
	assert.Equal(t, float32(100), g.Data()[1], "NaN norm never exceeds the threshold")
}

func TestClipGrads_Logs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	opt := optim.New(nil, optim.WithLogger(zap.New(core)))
	setup(t, opt, []tensor.Buffer{host(t, 0, 0)}, []tensor.Buffer{host(t, 3, 4)})

	_, err := opt.ClipGrads(1)
	require.NoError(t, err)

	entries := logs.FilterMessage("clipped gradients").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, 5.0, fields["norm"])
	assert.Equal(t, "base", fields["rule"])
}

func TestWeightDecay(t *testing.T) {
	g := host(t, 0)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 2)}, []tensor.Buffer{g})

	require.NoError(t, opt.WeightDecay(0.1))
	assert.InDelta(t, 0.2, g.Data()[0], 1e-7)
}

func TestWeightDecay_Linear(t *testing.T) {
	params := []float32{2, -1.5, 0.25, 8}
	twice, once := host(t, 1, 1, 1, 1), host(t, 1, 1, 1, 1)

	a := optim.New(nil)
	setup(t, a, []tensor.Buffer{host(t, params...)}, []tensor.Buffer{twice})
	require.NoError(t, a.WeightDecay(0.125))
	require.NoError(t, a.WeightDecay(0.25))

	b := optim.New(nil)
	setup(t, b, []tensor.Buffer{host(t, params...)}, []tensor.Buffer{once})
	require.NoError(t, b.WeightDecay(0.375))

	assert.InDeltaSlice(t, once.Data(), twice.Data(), 1e-6)
	assert.Equal(t, 0, a.T())
}

func TestAccumulateGrads_TwoShardsEqualPresummed(t *testing.T) {
	shard1 := []tensor.Buffer{host(t, 1, 2), host(t, 3)}
	shard2 := []tensor.Buffer{host(t, 10, 20), host(t, 30)}
	summed := []tensor.Buffer{host(t, 11, 22), host(t, 33)}

	ga, gb := host(t, 0.5, 0.5), host(t, 1)
	a := optim.New(nil)
	setup(t, a, []tensor.Buffer{host(t, 0, 0), host(t, 0)}, []tensor.Buffer{ga, gb})
	require.NoError(t, a.AccumulateGrads(shard1))
	require.NoError(t, a.AccumulateGrads(shard2))

	ha, hb := host(t, 0.5, 0.5), host(t, 1)
	b := optim.New(nil)
	setup(t, b, []tensor.Buffer{host(t, 0, 0), host(t, 0)}, []tensor.Buffer{ha, hb})
	require.NoError(t, b.AccumulateGrads(summed))

	assert.Equal(t, ha.Data(), ga.Data())
	assert.Equal(t, hb.Data(), gb.Data())
	assert.Equal(t, []float32{11.5, 22.5}, ga.Data())
	assert.Equal(t, 0, a.T())
}

func TestAccumulateGrads_Errors(t *testing.T) {
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0)}, []tensor.Buffer{host(t, 0, 0)})

	require.ErrorIs(t, opt.AccumulateGrads(nil), optim.ErrLengthMismatch)
	require.ErrorIs(t, opt.AccumulateGrads([]tensor.Buffer{host(t, 1)}), tensor.ErrShapeMismatch)
	require.ErrorIs(t, opt.AccumulateGrads([]tensor.Buffer{nil}), optim.ErrNilBuffer)
}

func TestAccumulateGrads_RejectedCallWritesNothing(t *testing.T) {
	g0, g1 := host(t, 0, 0), host(t, 0, 0)
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 0, 0), host(t, 0, 0)}, []tensor.Buffer{g0, g1})

	err := opt.AccumulateGrads([]tensor.Buffer{host(t, 1, 1), host(t, 1)})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Equal(t, []float32{0, 0}, g0.Data(), "slot 0 untouched")

	err = opt.AccumulateGrads([]tensor.Buffer{host(t, 1, 1), nil})
	require.ErrorIs(t, err, optim.ErrNilBuffer)
	assert.Equal(t, []float32{0, 0}, g0.Data(), "slot 0 untouched")

	// A corrected retry is counted exactly once.
	require.NoError(t, opt.AccumulateGrads([]tensor.Buffer{host(t, 1, 1), host(t, 2, 2)}))
	assert.Equal(t, []float32{1, 1}, g0.Data())
	assert.Equal(t, []float32{2, 2}, g1.Data())
}

func TestAccumulateGrads_AcrossDevices(t *testing.T) {
	devices := device.NewContext()
	gpu0 := device.NewMockAccelerator(tensor.WebGPU, 0)
	gpu1 := device.NewMockAccelerator(tensor.WebGPU, 1)
	require.NoError(t, devices.Register(gpu0))
	require.NoError(t, devices.Register(gpu1))

	p0, _ := gpu0.FromSlice([]float32{0, 0}, tensor.Shape{2})
	g0, _ := gpu0.FromSlice([]float32{1, 1}, tensor.Shape{2})
	hostGrad := host(t, 1, 1)

	opt := optim.New(nil, optim.WithContext(devices))
	setup(t, opt, []tensor.Buffer{p0, host(t, 0, 0)}, []tensor.Buffer{g0, hostGrad})

	// Slot 0 lives on gpu0 and receives from gpu1; slot 1 lives on the host
	// and receives from gpu0.
	fromGPU1, _ := gpu1.FromSlice([]float32{2, 3}, tensor.Shape{2})
	fromGPU0, _ := gpu0.FromSlice([]float32{4, 5}, tensor.Shape{2})
	require.NoError(t, opt.AccumulateGrads([]tensor.Buffer{fromGPU1, fromGPU0}))

	assert.Equal(t, []float32{3, 4}, g0.Peek())
	assert.Equal(t, []float32{5, 6}, hostGrad.Data())
	assert.Equal(t, gpu0.Location(), opt.Slots()[0].Grad.Location())

	// Host source into an accelerator gradient.
	require.NoError(t, opt.AccumulateGrads([]tensor.Buffer{host(t, 1, 1), host(t, 0, 0)}))
	assert.Equal(t, []float32{4, 5}, g0.Peek())

	assert.False(t, gpu0.Active())
	assert.False(t, gpu1.Active())
}

func TestDeviceScopedOperations(t *testing.T) {
	devices := device.NewContext()
	gpu := device.NewMockAccelerator(tensor.WebGPU, 0)
	require.NoError(t, devices.Register(gpu))

	p, _ := gpu.FromSlice([]float32{1, 2}, tensor.Shape{2})
	g, _ := gpu.FromSlice([]float32{3, 4}, tensor.Shape{2})

	opt := optim.New(momentum{lr: 0.1, mu: 0.9}, optim.WithContext(devices))
	setup(t, opt, []tensor.Buffer{p}, []tensor.Buffer{g})

	// Mock buffers fail outside their device scope, so every call below
	// proves the optimizer activated the right device.
	norm, err := opt.ComputeGradsNorm()
	require.NoError(t, err)
	assert.Equal(t, 5.0, norm)

	_, err = opt.ClipGrads(2.5)
	require.NoError(t, err)
	require.NoError(t, opt.WeightDecay(0.5))
	assert.InDeltaSlice(t, []float32{2, 3}, g.Peek(), 1e-6)

	require.NoError(t, opt.Update())
	assert.InDeltaSlice(t, []float32{0.8, 1.7}, p.Peek(), 1e-6)

	require.NoError(t, opt.ZeroGrads())
	assert.Equal(t, []float32{0, 0}, g.Peek())

	assert.False(t, gpu.Active())
	assert.Equal(t, tensor.Host, devices.Current())
}

func TestUnregisteredDeviceFails(t *testing.T) {
	gpu := device.NewMockAccelerator(tensor.WebGPU, 0)
	p, _ := gpu.FromSlice([]float32{1}, tensor.Shape{1})
	g, _ := gpu.FromSlice([]float32{1}, tensor.Shape{1})

	opt := optim.New(nil)
	err := opt.Setup([]tensor.Buffer{p}, []tensor.Buffer{g})
	require.ErrorIs(t, err, device.ErrUnknownDevice)
}

func TestUpdate_BaseRuleNotImplemented(t *testing.T) {
	opt := optim.New(nil)
	setup(t, opt, []tensor.Buffer{host(t, 1)}, []tensor.Buffer{host(t, 1)})

	err := opt.Update()
	require.ErrorIs(t, err, optim.ErrNotImplemented)
	assert.Equal(t, 1, opt.T())
}

func TestUpdate_MomentumStatePersists(t *testing.T) {
	p, g := host(t, 1), host(t, 1)
	opt := optim.New(momentum{lr: 0.1, mu: 0.9})
	setup(t, opt, []tensor.Buffer{p}, []tensor.Buffer{g})

	velocity := opt.Slots()[0].State["velocity"]
	require.NotNil(t, velocity)

	// v1 = 1.0, x1 = 1.0 - 0.1*1.0 = 0.9
	require.NoError(t, opt.Update())
	assert.InDelta(t, 0.9, p.Data()[0], 1e-6)

	// v2 = 0.9*1.0 + 1.0 = 1.9, x2 = 0.9 - 0.1*1.9 = 0.71
	require.NoError(t, opt.Update())
	assert.InDelta(t, 0.71, p.Data()[0], 1e-5)

	assert.Same(t, velocity, opt.Slots()[0].State["velocity"], "state is never reallocated")
	assert.Equal(t, 2, opt.T())
}

func TestUpdate_StepCounter(t *testing.T) {
	rec := &stepRecorder{}
	opt := optim.New(rec)
	setup(t, opt, []tensor.Buffer{host(t, 1), host(t, 2)}, []tensor.Buffer{host(t, 3), host(t, 4)})

	for range 3 {
		require.NoError(t, opt.Update())
		require.NoError(t, opt.ZeroGrads())
		require.NoError(t, opt.WeightDecay(0.1))
		_, err := opt.ClipGrads(1)
		require.NoError(t, err)
		_, err = opt.ComputeGradsNorm()
		require.NoError(t, err)
	}

	assert.Equal(t, 3, opt.T())
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3}, rec.steps)
}

// scaledKernel marks buffers it updates so tests can tell kernels apart.
type scaledKernel struct{ factor float32 }

func (k scaledKernel) Name() string { return "scaled" }

func (k scaledKernel) NewState(param, _ tensor.Buffer) (optim.State, error) {
	marker, err := param.Like()
	if err != nil {
		return nil, err
	}
	return optim.State{"marker": marker}, nil
}

func (k scaledKernel) Update(param, _ tensor.Buffer, _ optim.State, _ int) error {
	return param.Scale(k.factor)
}

// perDevice uses scaledKernel on WebGPU buffers and halves everything else.
type perDevice struct{}

func (perDevice) Name() string { return "per-device" }

func (perDevice) NewState(_, _ tensor.Buffer) (optim.State, error) { return nil, nil }

func (perDevice) Update(param, _ tensor.Buffer, _ optim.State, _ int) error {
	return param.Scale(0.5)
}

func (perDevice) Kernel(dev tensor.Device) optim.Rule {
	if dev == tensor.WebGPU {
		return scaledKernel{factor: 3}
	}
	return nil
}

func TestBackendRule_KernelResolvedPerSlot(t *testing.T) {
	devices := device.NewContext()
	gpu := device.NewMockAccelerator(tensor.WebGPU, 0)
	require.NoError(t, devices.Register(gpu))

	gp, _ := gpu.FromSlice([]float32{2}, tensor.Shape{1})
	gg, _ := gpu.FromSlice([]float32{0}, tensor.Shape{1})
	hp := host(t, 2)

	opt := optim.New(perDevice{}, optim.WithContext(devices))
	setup(t, opt, []tensor.Buffer{gp, hp}, []tensor.Buffer{gg, host(t, 0)})

	slots := opt.Slots()
	assert.Contains(t, slots[0].State, "marker")
	assert.Nil(t, slots[1].State)

	require.NoError(t, opt.Update())
	assert.Equal(t, []float32{6}, gp.Peek())
	assert.Equal(t, []float32{1}, hp.Data())
}
