package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/rkbackend/internal/model"
	"github.com/ekisa-team/rkbackend/internal/service"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Platform is reported in model metadata.
const Platform = "rknn"

type (
	TensorMetadataDTO struct {
		Name     string  `json:"name"`
		DataType string  `json:"datatype"`
		Shape    []int64 `json:"shape"`
	}

	ModelMetadataDTO struct {
		Name         string              `json:"name"`
		Versions     []string            `json:"versions"`
		Platform     string              `json:"platform"`
		State        string              `json:"state"`
		Reason       string              `json:"reason,omitempty"`
		MaxBatchSize int                 `json:"max_batch_size"`
		Inputs       []TensorMetadataDTO `json:"inputs"`
		Outputs      []TensorMetadataDTO `json:"outputs"`
	}

	ModelIndexEntryDTO struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Driver  string `json:"driver"`
		State   string `json:"state"`
		Reason  string `json:"reason,omitempty"`
	}
)

type (
	ModelInput struct {
		Model string `path:"model" minLength:"1"`
	}

	ListModelsOutput struct {
		Body struct {
			Models []ModelIndexEntryDTO `json:"models"`
		}
	}

	ModelMetadataOutput struct {
		Body ModelMetadataDTO
	}

	ReadyOutput struct {
		Body struct {
			Ready bool `json:"ready"`
		}
	}

	StatsOutput struct {
		Body struct {
			Name      string                  `json:"name"`
			Instances []service.InstanceStats `json:"instances"`
		}
	}
)

// ModelsHandler handles the model repository and health endpoints.
type ModelsHandler struct {
	manager   *service.Manager
	inference *service.Inference
}

// NewModelsHandler creates a new ModelsHandler instance.
func NewModelsHandler(api huma.API, manager *service.Manager, inference *service.Inference) *ModelsHandler {
	h := &ModelsHandler{manager: manager, inference: inference}

	huma.Register(api, huma.Operation{
		OperationID: "server-live",
		Method:      http.MethodGet,
		Path:        "/v2/health/live",
		Summary:     "Report whether the server is alive",
		Tags:        []string{"health"},
	}, h.handleLive)

	huma.Register(api, huma.Operation{
		OperationID: "server-ready",
		Method:      http.MethodGet,
		Path:        "/v2/health/ready",
		Summary:     "Report whether every configured model is loaded",
		Tags:        []string{"health"},
	}, h.handleReady)

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/v2/models",
		Summary:     "List configured models and their state",
		Tags:        []string{"models"},
	}, h.handleList)

	huma.Register(api, huma.Operation{
		OperationID: "model-metadata",
		Method:      http.MethodGet,
		Path:        "/v2/models/{model}",
		Summary:     "Get model metadata",
		Tags:        []string{"models"},
	}, h.handleMetadata)

	huma.Register(api, huma.Operation{
		OperationID: "model-ready",
		Method:      http.MethodGet,
		Path:        "/v2/models/{model}/ready",
		Summary:     "Report whether a model is loaded",
		Tags:        []string{"models"},
	}, h.handleModelReady)

	huma.Register(api, huma.Operation{
		OperationID: "model-stats",
		Method:      http.MethodGet,
		Path:        "/v2/models/{model}/stats",
		Summary:     "Get per-instance execution statistics",
		Tags:        []string{"models"},
	}, h.handleStats)

	huma.Register(api, huma.Operation{
		OperationID:   "unload-model",
		Method:        http.MethodPost,
		Path:          "/v2/repository/models/{model}/unload",
		Summary:       "Unload a model and release its NPU contexts",
		Tags:          []string{"repository"},
		DefaultStatus: http.StatusNoContent,
	}, h.handleUnload)

	return h
}

func (h *ModelsHandler) handleLive(ctx context.Context, _ *struct{}) (*ReadyOutput, error) {
	out := &ReadyOutput{}
	out.Body.Ready = true
	return out, nil
}

func (h *ModelsHandler) handleReady(ctx context.Context, _ *struct{}) (*ReadyOutput, error) {
	out := &ReadyOutput{}
	out.Body.Ready = true
	for _, m := range h.manager.Models().List() {
		if m.Status() != model.StatusLoaded {
			out.Body.Ready = false
			break
		}
	}
	return out, nil
}

func (h *ModelsHandler) handleList(ctx context.Context, _ *struct{}) (*ListModelsOutput, error) {
	out := &ListModelsOutput{}
	out.Body.Models = []ModelIndexEntryDTO{}
	for _, m := range h.manager.Models().List() {
		out.Body.Models = append(out.Body.Models, ModelIndexEntryDTO{
			Name:    m.ID,
			Version: strconv.Itoa(m.Version),
			Driver:  m.Driver,
			State:   string(m.Status()),
			Reason:  m.Error(),
		})
	}
	return out, nil
}

func (h *ModelsHandler) handleMetadata(ctx context.Context, input *ModelInput) (*ModelMetadataOutput, error) {
	m, err := h.manager.Models().Get(input.Model)
	if err != nil {
		return nil, httpError("model not found", err)
	}

	meta := ModelMetadataDTO{
		Name:     m.ID,
		Versions: []string{strconv.Itoa(m.Version)},
		Platform: Platform,
		State:    string(m.Status()),
		Reason:   m.Error(),
		Inputs:   []TensorMetadataDTO{},
		Outputs:  []TensorMetadataDTO{},
	}

	d := m.Descriptor
	if d == nil {
		return &ModelMetadataOutput{Body: meta}, nil
	}

	meta.MaxBatchSize = d.MaxBatchSize()

	shape, err := d.TensorShape()
	if err != nil {
		shape = d.InputShape()
	}
	meta.Inputs = append(meta.Inputs, TensorMetadataDTO{
		Name:     d.InputName(),
		DataType: d.DataType().String(),
		Shape:    shape,
	})

	for _, o := range d.Outputs() {
		s := o.Shape
		if d.MaxBatchSize() > 0 {
			s = append(tensor.Shape{tensor.DynamicDim}, s...)
		}
		meta.Outputs = append(meta.Outputs, TensorMetadataDTO{
			Name:     o.Name,
			DataType: o.DataType.String(),
			Shape:    s,
		})
	}

	return &ModelMetadataOutput{Body: meta}, nil
}

func (h *ModelsHandler) handleModelReady(ctx context.Context, input *ModelInput) (*ReadyOutput, error) {
	m, err := h.manager.Models().Get(input.Model)
	if err != nil {
		return nil, httpError("model not found", err)
	}
	out := &ReadyOutput{}
	out.Body.Ready = m.Status() == model.StatusLoaded
	return out, nil
}

func (h *ModelsHandler) handleStats(ctx context.Context, input *ModelInput) (*StatsOutput, error) {
	stats, err := h.inference.Stats(input.Model)
	if err != nil {
		return nil, httpError("model not found", err)
	}
	out := &StatsOutput{}
	out.Body.Name = input.Model
	out.Body.Instances = stats
	return out, nil
}

func (h *ModelsHandler) handleUnload(ctx context.Context, input *ModelInput) (*struct{}, error) {
	if err := h.manager.Unload(input.Model); err != nil {
		return nil, httpError("failed to unload model", err)
	}
	return nil, nil
}
