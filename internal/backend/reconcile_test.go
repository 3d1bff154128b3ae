package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/model"
)

func TestReconcile(t *testing.T) {
	d := descriptor(t, threeOutputConfig)
	pool, err := Plan(d, 1)
	require.NoError(t, err)

	in := device.TensorAttr{Name: "images", Dims: []int64{1, 384, 640, 3}, Layout: device.LayoutNHWC}
	outs := []device.TensorAttr{
		{Index: 0, Name: "output", ElementCount: 311040, Size: 311040},
		{Index: 1, Name: "376", ElementCount: 77760, Size: 77760},
		{Index: 2, Name: "377", ElementCount: 19440, Size: 19440},
	}

	attrs := &device.Attributes{Inputs: []device.TensorAttr{in}, Outputs: outs}
	assert.NoError(t, reconcile(d, attrs, pool, discard()))

	// Smaller device outputs and extra device outputs only warn.
	smaller := append([]device.TensorAttr(nil), outs...)
	smaller[1].Size = 100
	smaller = append(smaller, device.TensorAttr{Index: 3, Name: "extra", Size: 1 << 30})
	assert.NoError(t, reconcile(d, &device.Attributes{Inputs: attrs.Inputs, Outputs: smaller}, pool, discard()))

	assert.ErrorIs(t, reconcile(d, &device.Attributes{Outputs: outs}, pool, discard()), errNoDeviceInputs)
	assert.ErrorIs(t, reconcile(d, &device.Attributes{Inputs: attrs.Inputs, Outputs: outs[:2]}, pool, discard()), errTooFewOutputs)

	larger := append([]device.TensorAttr(nil), outs...)
	larger[2].Size = 19441
	assert.ErrorIs(t, reconcile(d, &device.Attributes{Inputs: attrs.Inputs, Outputs: larger}, pool, discard()), errOutputTooLarge)
}

func TestResolveLayoutAndGeometry(t *testing.T) {
	nchw := device.TensorAttr{Dims: []int64{1, 3, 384, 640}, Layout: device.LayoutNCHW}
	layout := resolveLayout(nchw, discard())
	assert.Equal(t, device.LayoutNCHW, layout)
	g, err := inputGeometry(nchw, layout)
	require.NoError(t, err)
	assert.Equal(t, geometry{Channels: 3, Height: 384, Width: 640}, g)

	odd := device.TensorAttr{Dims: []int64{1, 384, 640, 3}, Layout: device.LayoutNC1HWC2}
	layout = resolveLayout(odd, discard())
	assert.Equal(t, device.LayoutNHWC, layout)
	g, err = inputGeometry(odd, layout)
	require.NoError(t, err)
	assert.Equal(t, int64(737280), g.Elements())

	_, err = inputGeometry(device.TensorAttr{Dims: []int64{4}}, device.LayoutNHWC)
	assert.ErrorIs(t, err, errBadInputGeometry)
}

func TestCode(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.InvalidArgument, Code(&model.ConfigError{Model: "m", Err: model.ErrInvalidConfig}))
	assert.Equal(t, codes.ResourceExhausted, Code(&AllocError{Model: "m"}))
	assert.Equal(t, codes.Internal, Code(&DeviceError{Model: "m", Err: device.ErrDeviceCall}))
	assert.Equal(t, codes.Internal, Code(&RequestError{RequestID: "r", Err: ErrOutputSize}))
	assert.Equal(t, codes.NotFound, Code(model.ErrNotFound))
	assert.Equal(t, codes.Unavailable, Code(model.ErrNotReady))
	assert.Equal(t, codes.InvalidArgument, Code(ErrBatchTooWide))

	st := Status(&DeviceError{Model: "m", Stage: "run", Err: device.ErrDeviceCall})
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "run")
}
