package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rkbackend/internal/config"
	"github.com/ekisa-team/rkbackend/internal/config/source"
	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/device/sim"
	"github.com/ekisa-team/rkbackend/internal/envvar"
	"github.com/ekisa-team/rkbackend/internal/service"
)

const tinyModel = `
inputs:
  - name: pixels
    dims: [1, 2, 2, 3]
    fmt: NHWC
    type: UINT8
outputs:
  - name: scores
    dims: [1, 4]
    type: UINT8
  - name: boxes
    dims: [1, 2]
    type: UINT8
`

func tinyConfig(maxBatch int) map[string]any {
	return map[string]any{
		"max_batch_size": maxBatch,
		"input": []any{
			map[string]any{"name": "pixels", "data_type": "TYPE_UINT8", "dims": []any{2, 2, 3}},
		},
		"output": []any{
			map[string]any{"name": "scores", "data_type": "TYPE_UINT8", "dims": []any{4}},
			map[string]any{"name": "boxes", "data_type": "TYPE_UINT8", "dims": []any{2}},
		},
	}
}

func setup(t *testing.T) humatest.TestAPI {
	t.Helper()
	t.Setenv(envvar.RKBackendModelsPath, "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	repo := source.NewRepository(root)
	for _, id := range []string{"tiny", "single"} {
		path := repo.ArtifactPath(id, 1)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(tinyModel), 0o644))
	}

	drv := sim.NewDriver()
	manager := service.NewManager(logger, service.WithDriverLookup(func(string) (device.Driver, error) {
		return drv, nil
	}))
	t.Cleanup(func() { _ = manager.Close() })

	cfg := &config.Config{
		Storage: config.StorageConfig{ModelsDir: root},
		Models: map[string]config.ModelConfig{
			"tiny":   {Config: tinyConfig(4)},
			"single": {Config: tinyConfig(0)},
			"broken": {Config: map[string]any{"input": []any{}}},
		},
	}
	require.Error(t, manager.LoadModelsFromConfig(context.Background(), cfg))

	_, api := humatest.New(t)
	inference := service.NewInference(manager, logger)
	NewModelsHandler(api, manager, inference)
	NewInferHandler(api, manager, inference)
	return api
}

func decode[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Bytes(), &v))
	return v
}

func TestModels_List(t *testing.T) {
	api := setup(t)

	resp := api.Get("/v2/models")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[struct {
		Models []ModelIndexEntryDTO `json:"models"`
	}](t, resp.Body)
	require.Len(t, body.Models, 3)
	assert.Equal(t, "broken", body.Models[0].Name)
	assert.Equal(t, "failed", body.Models[0].State)
	assert.NotEmpty(t, body.Models[0].Reason)
	assert.Equal(t, "loaded", body.Models[2].State)

	resp = api.Get("/v2/health/ready")
	assert.False(t, decode[struct{ Ready bool }](t, resp.Body).Ready)

	resp = api.Get("/v2/health/live")
	assert.True(t, decode[struct{ Ready bool }](t, resp.Body).Ready)
}

func TestModels_Metadata(t *testing.T) {
	api := setup(t)

	resp := api.Get("/v2/models/tiny")
	require.Equal(t, http.StatusOK, resp.Code)

	meta := decode[ModelMetadataDTO](t, resp.Body)
	assert.Equal(t, Platform, meta.Platform)
	assert.Equal(t, []string{"1"}, meta.Versions)
	assert.Equal(t, 4, meta.MaxBatchSize)
	require.Len(t, meta.Inputs, 1)
	assert.Equal(t, TensorMetadataDTO{Name: "pixels", DataType: "UINT8", Shape: []int64{-1, 2, 2, 3}}, meta.Inputs[0])
	require.Len(t, meta.Outputs, 2)
	assert.Equal(t, []int64{-1, 4}, meta.Outputs[0].Shape)

	resp = api.Get("/v2/models/single")
	meta = decode[ModelMetadataDTO](t, resp.Body)
	assert.Equal(t, []int64{2, 2, 3}, meta.Inputs[0].Shape)
	assert.Equal(t, []int64{4}, meta.Outputs[0].Shape)

	resp = api.Get("/v2/models/ghost")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = api.Get("/v2/models/broken/ready")
	assert.False(t, decode[struct{ Ready bool }](t, resp.Body).Ready)
}

func TestInfer_Single(t *testing.T) {
	api := setup(t)

	resp := api.Post("/v2/models/single/infer", InferRequestDTO{
		ID:     "req-1",
		Inputs: []InferTensorDTO{{Name: "pixels", DataType: "UINT8", Shape: []int64{2, 2, 3}, Data: bytes.Repeat([]byte{9}, 12)}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	out := decode[InferResponseDTO](t, resp.Body)
	assert.Equal(t, "single", out.ModelName)
	assert.Equal(t, "req-1", out.ID)
	require.Len(t, out.Outputs, 2)
	assert.Equal(t, "scores", out.Outputs[0].Name)
	assert.Equal(t, []int64{4}, out.Outputs[0].Shape)
	assert.Len(t, out.Outputs[0].Data, 4)
	assert.Len(t, out.Outputs[1].Data, 2)
}

func TestInfer_Batch(t *testing.T) {
	api := setup(t)

	data := append(bytes.Repeat([]byte{1}, 12), bytes.Repeat([]byte{2}, 12)...)
	data = append(data, bytes.Repeat([]byte{1}, 12)...)

	resp := api.Post("/v2/models/tiny/infer", InferRequestDTO{
		Inputs:  []InferTensorDTO{{Name: "pixels", Shape: []int64{3, 2, 2, 3}, Data: data}},
		Outputs: []RequestedOutputDTO{{Name: "boxes"}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	out := decode[InferResponseDTO](t, resp.Body)
	require.Len(t, out.Outputs, 1)
	boxes := out.Outputs[0]
	assert.Equal(t, "boxes", boxes.Name)
	assert.Equal(t, []int64{3, 2}, boxes.Shape)
	require.Len(t, boxes.Data, 6)
	assert.Equal(t, boxes.Data[0:2], boxes.Data[4:6])
}

func TestInfer_Errors(t *testing.T) {
	api := setup(t)
	pixels := bytes.Repeat([]byte{1}, 12)

	tests := []struct {
		name  string
		model string
		body  InferRequestDTO
		code  int
	}{
		{
			name:  "unknown model",
			model: "ghost",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "pixels", Data: pixels}}},
			code:  http.StatusNotFound,
		},
		{
			name:  "model not loaded",
			model: "broken",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "pixels", Data: pixels}}},
			code:  http.StatusServiceUnavailable,
		},
		{
			name:  "wrong input name",
			model: "tiny",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "images", Data: pixels}}},
			code:  http.StatusBadRequest,
		},
		{
			name:  "wrong datatype",
			model: "tiny",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "pixels", DataType: "FP32", Data: pixels}}},
			code:  http.StatusBadRequest,
		},
		{
			name:  "batch on non-batching model",
			model: "single",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "pixels", Shape: []int64{1, 2, 2, 3}, Data: pixels}}},
			code:  http.StatusBadRequest,
		},
		{
			name:  "uneven batch",
			model: "tiny",
			body:  InferRequestDTO{Inputs: []InferTensorDTO{{Name: "pixels", Shape: []int64{5, 2, 2, 3}, Data: pixels}}},
			code:  http.StatusBadRequest,
		},
		{
			name:  "unknown output",
			model: "tiny",
			body: InferRequestDTO{
				Inputs:  []InferTensorDTO{{Name: "pixels", Data: pixels}},
				Outputs: []RequestedOutputDTO{{Name: "masks"}},
			},
			code: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Post("/v2/models/"+tt.model+"/infer", tt.body)
			assert.Equal(t, tt.code, resp.Code, resp.Body.String())
		})
	}
}

func TestModels_StatsAndUnload(t *testing.T) {
	api := setup(t)

	resp := api.Post("/v2/models/single/infer", InferRequestDTO{
		Inputs: []InferTensorDTO{{Name: "pixels", Data: bytes.Repeat([]byte{3}, 12)}},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = api.Get("/v2/models/single/stats")
	require.Equal(t, http.StatusOK, resp.Code)
	stats := decode[struct {
		Name      string                  `json:"name"`
		Instances []service.InstanceStats `json:"instances"`
	}](t, resp.Body)
	require.Len(t, stats.Instances, 1)
	assert.Equal(t, uint64(1), stats.Instances[0].Stats.Requests)
	assert.Equal(t, uint64(1), stats.Instances[0].Stats.Succeeded)

	resp = api.Post("/v2/repository/models/single/unload")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = api.Get("/v2/models/single")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
