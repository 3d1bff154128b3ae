package model

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rkbackend/internal/tensor"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const yoloConfig = `{
  "name": "yolov5",
  "max_batch_size": 0,
  "input": [{"name": "images", "data_type": "TYPE_UINT8", "dims": ["384", "640", "3"]}],
  "output": [
    {"name": "output", "data_type": "TYPE_UINT8", "dims": [81, 48, 80]},
    {"name": "376", "data_type": "TYPE_UINT8", "dims": [81, 24, 40]},
    {"name": "377", "data_type": "TYPE_UINT8", "dims": [81, 12, 20]}
  ]
}`

func TestValidate_JSON(t *testing.T) {
	cfg, err := ParseConfigJSON([]byte(yoloConfig))
	require.NoError(t, err)

	d, err := Validate("yolov5", cfg, discard())
	require.NoError(t, err)

	assert.Equal(t, "images", d.InputName())
	assert.Equal(t, tensor.Shape{384, 640, 3}, d.InputShape())
	assert.Equal(t, tensor.DataTypeUint8, d.DataType())
	assert.Equal(t, []string{"output", "376", "377"}, d.OutputNames())

	shape, err := d.OutputShape("376")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{81, 24, 40}, shape)

	var sizes []int64
	for _, o := range d.Outputs() {
		n, err := o.ByteSize()
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	assert.Equal(t, []int64{311040, 77760, 19440}, sizes)
}

func TestValidate_FromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"max_batch_size": 4,
		"input":          []any{map[string]any{"name": "x", "data_type": "TYPE_FP32", "dims": []any{3, 224, 224}}},
		"output":         []any{map[string]any{"name": "y", "data_type": "TYPE_INT8", "dims": []any{1000}}},
	})
	require.NoError(t, err)

	d, err := Validate("resnet", cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, 4, d.MaxBatchSize())

	dt, err := d.OutputDataType("y")
	require.NoError(t, err)
	assert.Equal(t, tensor.DataTypeInt8, dt)
	assert.Equal(t, tensor.DataTypeFP32, d.DataType())
}

func TestValidate_ZeroElementOutput(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"input": []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{4}}},
		"output": []any{
			map[string]any{"name": "empty", "data_type": "TYPE_UINT8", "dims": []any{0, 48, 80}},
			map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{2}},
		},
	})
	require.NoError(t, err)

	d, err := Validate("m", cfg, discard())
	require.NoError(t, err)

	o, k, err := d.Output("empty")
	require.NoError(t, err)
	assert.Equal(t, 0, k)
	assert.Equal(t, tensor.Shape{0, 48, 80}, o.Shape)

	size, err := o.ByteSize()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]any
		field string
	}{
		{
			name:  "missing input",
			cfg:   map[string]any{"output": []any{}},
			field: "input",
		},
		{
			name: "empty input",
			cfg: map[string]any{
				"input":  []any{},
				"output": []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{1}}},
			},
			field: "input",
		},
		{
			name: "missing input name",
			cfg: map[string]any{
				"input":  []any{map[string]any{"data_type": "TYPE_UINT8", "dims": []any{1}}},
				"output": []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{1}}},
			},
			field: "input[0].name",
		},
		{
			name: "missing output datatype",
			cfg: map[string]any{
				"input":  []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{1}}},
				"output": []any{map[string]any{"name": "y", "dims": []any{1}}},
			},
			field: "output[0].data_type",
		},
		{
			name: "unparsable dims",
			cfg: map[string]any{
				"input":  []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{"abc"}}},
				"output": []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{1}}},
			},
			field: "input[0].dims",
		},
		{
			name: "dynamic output dims",
			cfg: map[string]any{
				"input":  []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{1}}},
				"output": []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{-1, 4}}},
			},
			field: "output[0].dims",
		},
		{
			name: "duplicate output",
			cfg: map[string]any{
				"input": []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{1}}},
				"output": []any{
					map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{1}},
					map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{2}},
				},
			},
			field: "output[1].name",
		},
		{
			name: "input without device type",
			cfg: map[string]any{
				"input":  []any{map[string]any{"name": "x", "data_type": "TYPE_FP64", "dims": []any{1}}},
				"output": []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{1}}},
			},
			field: "input[0].data_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFromMap(tt.cfg)
			require.NoError(t, err)

			_, err = Validate("m", cfg, discard())
			require.ErrorIs(t, err, ErrInvalidConfig)

			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestDescriptor_OutputNotFound(t *testing.T) {
	cfg, err := ParseConfigJSON([]byte(yoloConfig))
	require.NoError(t, err)
	d, err := Validate("yolov5", cfg, discard())
	require.NoError(t, err)

	_, err = d.OutputShape("missing")
	assert.ErrorIs(t, err, ErrOutputNotFound)
	_, err = d.OutputDataType("missing")
	assert.ErrorIs(t, err, ErrOutputNotFound)
}

func TestDescriptor_TwoPhaseShape(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"max_batch_size": 8,
		"input":          []any{map[string]any{"name": "x", "data_type": "TYPE_UINT8", "dims": []any{3, 4}}},
		"output":         []any{map[string]any{"name": "y", "data_type": "TYPE_UINT8", "dims": []any{2}}},
	})
	require.NoError(t, err)
	d, err := Validate("m", cfg, discard())
	require.NoError(t, err)

	_, err = d.TensorShape()
	assert.ErrorIs(t, err, ErrNotReady)

	m := NewModel("m", 1, "/models/m/1/model.rknn", "sim", d)
	assert.ErrorIs(t, d.Finalize(m), ErrNotReady)

	m.SetStatus(StatusLoaded)
	require.NoError(t, d.Finalize(m))

	shape, err := d.TensorShape()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{-1, 3, 4}, shape)

	// Memoized: a later batching answer is ignored.
	m.SetStatus(StatusUnloading)
	require.NoError(t, d.Finalize(m))
	shape, err = d.TensorShape()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{-1, 3, 4}, shape)
}

func TestDescriptor_NonBatchingShape(t *testing.T) {
	cfg, err := ParseConfigJSON([]byte(yoloConfig))
	require.NoError(t, err)
	d, err := Validate("yolov5", cfg, discard())
	require.NoError(t, err)

	m := NewModel("yolov5", 1, "", "sim", d)
	m.SetStatus(StatusLoaded)
	require.NoError(t, d.Finalize(m))

	shape, err := d.TensorShape()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{384, 640, 3}, shape)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Set(NewModel("b", 1, "", "sim", nil))
	r.Set(NewModel("a", 1, "", "sim", nil))

	models := r.List()
	require.Len(t, models, 2)
	assert.Equal(t, "a", models[0].ID)

	_, err := r.Get("c")
	assert.ErrorIs(t, err, ErrNotFound)

	r.Delete("a")
	_, err = r.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModel_SetError(t *testing.T) {
	m := NewModel("a", 1, "", "sim", nil)
	m.SetError(errors.New("boom"))
	assert.Equal(t, StatusFailed, m.Status())
	assert.Equal(t, "boom", m.Error())

	m.SetStatus(StatusLoaded)
	assert.Empty(t, m.Error())
	assert.NotNil(t, m.LoadedAt())
}
