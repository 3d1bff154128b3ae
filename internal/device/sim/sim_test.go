package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rkbackend/internal/device"
)

const yoloModel = `
inputs:
  - name: images
    dims: [1, 384, 640, 3]
    fmt: NHWC
    type: UINT8
outputs:
  - name: output
    dims: [1, 81, 48, 80]
    type: UINT8
    qnt_type: AFFINE
    zp: -128
    scale: 0.0039
sdk:
  api_version: "1.5.2"
  driver_version: "0.9.2"
`

func TestLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.rknn")
	require.NoError(t, os.WriteFile(path, []byte(yoloModel), 0o644))

	ctx, err := NewDriver().Init(path)
	require.NoError(t, err)

	count, err := ctx.QueryIOCount()
	require.NoError(t, err)
	assert.Equal(t, device.IOCount{Inputs: 1, Outputs: 1}, count)

	in, err := ctx.QueryInputAttr(0)
	require.NoError(t, err)
	assert.Equal(t, int64(737280), in.Size)
	assert.Equal(t, device.LayoutNHWC, in.Layout)

	out, err := ctx.QueryOutputAttr(0)
	require.NoError(t, err)
	assert.Equal(t, int64(311040), out.Size)
	assert.Equal(t, device.QuantAffineAsymmetric, out.QuantType)
	assert.Equal(t, int32(-128), out.ZeroPoint)

	v, err := ctx.QuerySDKVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.5.2", v.API)
}

func TestLoadModel_Missing(t *testing.T) {
	_, err := NewDriver().Init(filepath.Join(t.TempDir(), "nope.rknn"))
	assert.Error(t, err)
}

func TestContext_RunIsDeterministic(t *testing.T) {
	m := &Model{
		Inputs:  []TensorSpec{{Name: "in", Dims: []int64{1, 4}}},
		Outputs: []TensorSpec{{Name: "a", Dims: []int64{8}}, {Name: "b", Dims: []int64{2}}},
	}
	drv := NewDriver(WithModel(m))
	ctx, err := drv.Init("ignored")
	require.NoError(t, err)

	run := func() ([]byte, []byte) {
		require.NoError(t, ctx.SetInputs([]device.Input{{Index: 0, Buf: []byte{1, 2, 3, 4}}}))
		require.NoError(t, ctx.Run())
		outs := []device.Output{
			{Index: 0, Buf: make([]byte, 8), Prealloc: true},
			{Index: 1, Buf: make([]byte, 2), Prealloc: true},
		}
		require.NoError(t, ctx.GetOutputs(outs))
		return outs[0].Buf, outs[1].Buf
	}

	a1, b1 := run()
	a2, b2 := run()
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1[:2], b1)
	assert.Len(t, drv.Contexts(), 1)
}

func TestContext_Faults(t *testing.T) {
	m := &Model{
		Inputs:  []TensorSpec{{Name: "in", Dims: []int64{4}}},
		Outputs: []TensorSpec{{Name: "out", Dims: []int64{4}}},
	}
	ctx, err := NewDriver(WithModel(m), WithFault(OpRun, StatusTimeout)).Init("")
	require.NoError(t, err)

	require.NoError(t, ctx.SetInputs([]device.Input{{Buf: []byte{1, 2, 3, 4}}}))
	err = ctx.Run()
	assert.ErrorIs(t, err, device.ErrDeviceCall)

	sc := ctx.(*Context)
	sc.SetFault(OpRun, 0)
	assert.NoError(t, ctx.Run())
	assert.Equal(t, 2, sc.Calls(OpRun))
}

func TestContext_PreallocTooSmall(t *testing.T) {
	m := &Model{
		Inputs:  []TensorSpec{{Name: "in", Dims: []int64{4}}},
		Outputs: []TensorSpec{{Name: "out", Dims: []int64{16}}},
	}
	ctx, err := NewDriver(WithModel(m)).Init("")
	require.NoError(t, err)

	require.NoError(t, ctx.SetInputs([]device.Input{{Buf: []byte{9}}}))
	require.NoError(t, ctx.Run())
	err = ctx.GetOutputs([]device.Output{{Index: 0, Buf: make([]byte, 4), Prealloc: true}})
	assert.ErrorIs(t, err, device.ErrDeviceCall)
}

func TestDriverRegistered(t *testing.T) {
	d, err := device.Lookup(DriverName)
	require.NoError(t, err)
	assert.Equal(t, DriverName, d.Name())
}
