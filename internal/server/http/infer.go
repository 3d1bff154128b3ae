package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/rkbackend/internal/host"
	"github.com/ekisa-team/rkbackend/internal/model"
	"github.com/ekisa-team/rkbackend/internal/service"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

type (
	InferTensorDTO struct {
		Name     string  `json:"name" minLength:"1"`
		DataType string  `json:"datatype,omitempty"`
		Shape    []int64 `json:"shape,omitempty"`
		Data     []byte  `json:"data" doc:"Raw little-endian tensor bytes, base64 encoded"`
	}

	RequestedOutputDTO struct {
		Name string `json:"name" minLength:"1"`
	}

	InferRequestDTO struct {
		ID      string               `json:"id,omitempty"`
		Inputs  []InferTensorDTO     `json:"inputs" minItems:"1" maxItems:"1"`
		Outputs []RequestedOutputDTO `json:"outputs,omitempty"`
	}

	InferResponseDTO struct {
		ModelName    string           `json:"model_name"`
		ModelVersion string           `json:"model_version"`
		ID           string           `json:"id,omitempty"`
		Outputs      []InferTensorDTO `json:"outputs"`
	}
)

type (
	InferInput struct {
		Model string `path:"model" minLength:"1"`
		Body  InferRequestDTO
	}

	InferOutput struct {
		Body InferResponseDTO
	}
)

// InferHandler handles HTTP inference requests.
type InferHandler struct {
	manager   *service.Manager
	inference *service.Inference
}

// NewInferHandler creates a new InferHandler instance.
func NewInferHandler(api huma.API, manager *service.Manager, inference *service.Inference) *InferHandler {
	h := &InferHandler{manager: manager, inference: inference}

	huma.Register(api, huma.Operation{
		OperationID:   "model-infer",
		Method:        http.MethodPost,
		Path:          "/v2/models/{model}/infer",
		Summary:       "Run inference on a model",
		Tags:          []string{"inference"},
		DefaultStatus: http.StatusOK,
	}, h.handleInfer)

	return h
}

// handleInfer handles the model-infer operation. An input whose shape has
// one more dimension than the model input is a batch: it is split along
// the first dimension into one request per sample, and the outputs are
// stacked back in the same order.
func (h *InferHandler) handleInfer(ctx context.Context, input *InferInput) (*InferOutput, error) {
	m, err := h.manager.Models().Get(input.Model)
	if err != nil {
		return nil, httpError("model not found", err)
	}
	if m.Descriptor == nil || m.Status() != model.StatusLoaded {
		return nil, huma.Error503ServiceUnavailable(fmt.Sprintf("model %s is %s", m.ID, m.Status()))
	}
	d := m.Descriptor

	in := input.Body.Inputs[0]
	if in.Name != d.InputName() {
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown input %q, expected %q", in.Name, d.InputName()))
	}
	if in.DataType != "" {
		dt, err := tensor.ParseDataType(in.DataType)
		if err != nil || dt != d.DataType() {
			return nil, huma.Error400BadRequest(fmt.Sprintf("input datatype %s, expected %s", in.DataType, d.DataType()))
		}
	}

	count := 1
	batched := len(in.Shape) == len(d.InputShape())+1
	if batched {
		if d.MaxBatchSize() == 0 {
			return nil, huma.Error400BadRequest(fmt.Sprintf("model %s does not batch", m.ID))
		}
		count = int(in.Shape[0])
	}
	if count <= 0 || len(in.Data) == 0 || len(in.Data)%count != 0 {
		return nil, huma.Error400BadRequest(fmt.Sprintf("%d bytes do not split into %d samples", len(in.Data), count))
	}

	outputs := make([]string, 0, len(input.Body.Outputs))
	for _, o := range input.Body.Outputs {
		outputs = append(outputs, o.Name)
	}

	size := len(in.Data) / count
	samples := make([]service.Sample, count)
	for n := range samples {
		samples[n] = service.Sample{
			ID:      input.Body.ID + "/" + strconv.Itoa(n),
			Data:    in.Data[n*size : (n+1)*size],
			Outputs: outputs,
		}
	}

	responses, err := h.inference.Infer(ctx, m.ID, samples)
	if err != nil {
		return nil, httpError("inference failed", err)
	}

	stacked, err := stack(responses, batched)
	if err != nil {
		return nil, httpError("inference failed", err)
	}

	return &InferOutput{
		Body: InferResponseDTO{
			ModelName:    m.ID,
			ModelVersion: strconv.Itoa(m.Version),
			ID:           input.Body.ID,
			Outputs:      stacked,
		},
	}, nil
}

// stack concatenates the outputs of every response per output name. When
// batched is set the shapes gain a leading batch dimension.
func stack(responses []*host.Response, batched bool) ([]InferTensorDTO, error) {
	var out []InferTensorDTO
	for n, resp := range responses {
		tensors, err := resp.Outputs()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			out = make([]InferTensorDTO, len(tensors))
			for k, t := range tensors {
				shape := []int64(t.Shape.Clone())
				if batched {
					shape = append([]int64{int64(len(responses))}, shape...)
				}
				out[k] = InferTensorDTO{
					Name:     t.Name,
					DataType: t.DataType.String(),
					Shape:    shape,
					Data:     make([]byte, 0, len(t.Data)*len(responses)),
				}
			}
		}
		for k, t := range tensors {
			out[k].Data = append(out[k].Data, t.Data...)
		}
	}
	if out == nil {
		out = []InferTensorDTO{}
	}
	return out, nil
}
