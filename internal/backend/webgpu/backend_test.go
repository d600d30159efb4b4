//go:build windows

package webgpu_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-optim/internal/backend/webgpu"
	"github.com/born-ml/born-optim/internal/device"
	"github.com/born-ml/born-optim/internal/tensor"
)

func newDevice(t *testing.T) (*device.Context, *webgpu.Backend) {
	t.Helper()
	if !webgpu.IsAvailable() {
		t.Skip("WebGPU not available")
	}
	backend, err := webgpu.New(0)
	require.NoError(t, err)
	t.Cleanup(backend.Release)

	ctx := device.NewContext()
	require.NoError(t, ctx.Register(backend))
	return ctx, backend
}

func TestBufferKernels(t *testing.T) {
	ctx, backend := newDevice(t)
	loc := backend.Location()
	assert.Equal(t, tensor.Accelerator(tensor.WebGPU, 0), loc)

	err := ctx.Use(loc, func() error {
		y, err := backend.Upload([]float32{1, 2, 3}, tensor.Shape{3})
		require.NoError(t, err)
		x, err := backend.Upload([]float32{10, 20, 30}, tensor.Shape{3})
		require.NoError(t, err)

		require.NoError(t, y.Axpy(0.5, x))
		require.NoError(t, y.Scale(2))
		got, err := y.Host()
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{12, 24, 36}, got, 1e-5)

		require.NoError(t, y.Axpy(1, y))
		got, err = y.Host()
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{24, 48, 72}, got, 1e-4)

		require.NoError(t, y.Fill(0))
		sq, err := y.SquaredNorm()
		require.NoError(t, err)
		assert.Zero(t, sq)
		return nil
	})
	require.NoError(t, err)
}

func TestSquaredNormAcrossWorkgroups(t *testing.T) {
	ctx, backend := newDevice(t)

	const n = 1000
	data := make([]float32, n)
	var want float64
	for i := range data {
		data[i] = float32(i%7) - 3
		want += float64(data[i]) * float64(data[i])
	}

	err := ctx.Use(backend.Location(), func() error {
		buf, err := backend.Upload(data, tensor.Shape{n})
		require.NoError(t, err)
		got, err := buf.SquaredNorm()
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-3)
		return nil
	})
	require.NoError(t, err)
}

func TestLikeAndLoad(t *testing.T) {
	ctx, backend := newDevice(t)

	err := ctx.Use(backend.Location(), func() error {
		buf, err := backend.Upload([]float32{1, 2}, tensor.Shape{2})
		require.NoError(t, err)
		z, err := buf.Like()
		require.NoError(t, err)
		got, err := z.Host()
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0}, got)

		require.NoError(t, z.Load([]float32{float32(math.Inf(1)), 3}))
		got, err = z.Host()
		require.NoError(t, err)
		assert.True(t, math.IsInf(float64(got[0]), 1))
		require.ErrorIs(t, z.Load([]float32{1}), tensor.ErrDataLength)
		return nil
	})
	require.NoError(t, err)
}

func TestOpsRequireActiveDevice(t *testing.T) {
	ctx, backend := newDevice(t)

	var buf tensor.Buffer
	require.NoError(t, ctx.Use(backend.Location(), func() error {
		var err error
		buf, err = backend.Alloc(tensor.Shape{4})
		return err
	}))

	require.ErrorIs(t, buf.Fill(1), webgpu.ErrInactive)
	_, err := buf.Host()
	require.ErrorIs(t, err, webgpu.ErrInactive)
	_, err = backend.Alloc(tensor.Shape{1})
	require.ErrorIs(t, err, webgpu.ErrInactive)
}

func TestTransferRoundTrip(t *testing.T) {
	ctx, backend := newDevice(t)

	host, err := ctx.Transfer(mustHost(t, []float32{4, 5}), backend.Location())
	require.NoError(t, err)
	assert.Equal(t, backend.Location(), host.Location())

	back, err := ctx.Transfer(host, tensor.Host)
	require.NoError(t, err)
	got, err := back.Host()
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5}, got)
}

func mustHost(t *testing.T, data []float32) tensor.Buffer {
	t.Helper()
	ctx := device.NewContext()
	dev, err := ctx.Lookup(tensor.Host)
	require.NoError(t, err)
	buf, err := dev.Upload(data, tensor.Shape{len(data)})
	require.NoError(t, err)
	return buf
}
