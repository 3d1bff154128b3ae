package backend

import (
	"fmt"

	"github.com/ekisa-team/rkbackend/internal/model"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// scatter copies each request's requested outputs out of its pool slot
// and sends the responses. A request that fails here gets one error
// response and is not sent again.
func (i *Instance) scatter(report *BatchReport, requests []*Request) {
	outputs := i.desc.Outputs()

	for s, req := range requests {
		res := &report.Results[s]

		tensors, err := i.scatterRequest(s, req, outputs)
		if err != nil {
			res.State = StateScatterFailed
			res.Err = err
			i.logger.Warn("Request failed", "request", req.ID, "error", err)
			if sendErr := req.Response.SendError(err); sendErr != nil {
				i.logger.Error("Failed to send error response", "request", req.ID, "error", sendErr)
			}
			res.State = StateSent
			continue
		}

		res.State = StateScattered
		res.Outputs = tensors
	}

	for s, req := range requests {
		res := &report.Results[s]
		if res.State != StateScattered {
			continue
		}
		if err := req.Response.Send(true); err != nil {
			i.logger.Error("Failed to send response", "request", req.ID, "error", err)
			res.Err = &RequestError{RequestID: req.ID, Err: err}
		}
		res.State = StateSent
	}
}

func (i *Instance) scatterRequest(slot int, req *Request, outputs []model.Output) ([]OutputTensor, error) {
	wanted := make(map[string]bool, len(req.Outputs))
	for _, name := range req.Outputs {
		if _, _, err := i.desc.Output(name); err != nil {
			return nil, &RequestError{RequestID: req.ID, Output: name, Err: err}
		}
		wanted[name] = true
	}

	buf := i.pool.Slot(slot)
	tensors := make([]OutputTensor, 0, len(outputs))

	for k, o := range outputs {
		if len(wanted) > 0 && !wanted[o.Name] {
			continue
		}

		offset, size := i.pool.Offset(k), i.pool.Size(k)
		dst, kind, _, err := req.Response.CreateOutputBuffer(o.Name, o.DataType, o.Shape)
		if err != nil {
			return nil, &RequestError{RequestID: req.ID, Output: o.Name, Err: err}
		}
		if kind != tensor.MemoryCPU && kind != tensor.MemoryCPUPinned {
			return nil, &RequestError{RequestID: req.ID, Output: o.Name, Err: fmt.Errorf("%w: host returned %s", ErrUnsupportedMemory, kind)}
		}
		if int64(len(dst)) != size {
			return nil, &RequestError{RequestID: req.ID, Output: o.Name, Err: fmt.Errorf("%w: got %d bytes, want %d", ErrOutputSize, len(dst), size)}
		}

		copy(dst, buf[offset:offset+size])
		tensors = append(tensors, OutputTensor{
			Name:     o.Name,
			DataType: o.DataType,
			Shape:    o.Shape,
			Offset:   offset,
			Size:     size,
		})
	}

	return tensors, nil
}
