// Package host is an in-process model-serving host. It assembles
// per-request inputs into one contiguous batch buffer and collects the
// responses the backend produces.
package host

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc/status"

	"github.com/ekisa-team/rkbackend/internal/backend"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Error definitions for the host package.
var (
	ErrAlreadySent  = errors.New("response already sent")
	ErrNotSent      = errors.New("response has not been sent")
	ErrDuplicateOut = errors.New("output buffer already created")
)

// Tensor is one output tensor of a response.
type Tensor struct {
	Name     string          `json:"name"`
	DataType tensor.DataType `json:"datatype"`
	Shape    tensor.Shape    `json:"shape"`
	Data     []byte          `json:"data"`
}

// Response collects the outputs of one request. It implements
// backend.Response.
type Response struct {
	id string

	mu      sync.Mutex
	outputs []Tensor
	status  *status.Status
	sent    bool
	final   bool
	done    chan struct{}
}

// NewResponse creates an empty response for request id.
func NewResponse(id string) *Response {
	return &Response{id: id, done: make(chan struct{})}
}

// ID returns the request identifier.
func (r *Response) ID() string { return r.id }

// CreateOutputBuffer implements backend.Response.
func (r *Response) CreateOutputBuffer(name string, dt tensor.DataType, shape tensor.Shape) ([]byte, tensor.MemoryKind, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent {
		return nil, tensor.MemoryCPU, 0, ErrAlreadySent
	}
	for _, o := range r.outputs {
		if o.Name == name {
			return nil, tensor.MemoryCPU, 0, fmt.Errorf("%w: %q", ErrDuplicateOut, name)
		}
	}

	size, err := tensor.ByteSize(dt, shape)
	if err != nil {
		return nil, tensor.MemoryCPU, 0, err
	}

	buf := make([]byte, size)
	r.outputs = append(r.outputs, Tensor{Name: name, DataType: dt, Shape: shape.Clone(), Data: buf})
	return buf, tensor.MemoryCPU, 0, nil
}

// Send implements backend.Response.
func (r *Response) Send(final bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent {
		return ErrAlreadySent
	}
	r.sent = true
	r.final = final
	close(r.done)
	return nil
}

// SendError implements backend.Response. Partially created outputs are
// discarded.
func (r *Response) SendError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent {
		return ErrAlreadySent
	}
	r.sent = true
	r.final = true
	r.outputs = nil
	r.status = backend.Status(err)
	close(r.done)
	return nil
}

// Done is closed once the response is sent.
func (r *Response) Done() <-chan struct{} { return r.done }

// Outputs returns the tensors of a successful response.
func (r *Response) Outputs() ([]Tensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sent {
		return nil, ErrNotSent
	}
	if r.status != nil {
		return nil, r.status.Err()
	}
	return r.outputs, nil
}

// Err returns the error response as a gRPC status error, or nil.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == nil {
		return nil
	}
	return r.status.Err()
}

// Status returns the gRPC status of an error response, or nil.
func (r *Response) Status() *status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// Batch assembles requests for one backend.Execute call.
type Batch struct {
	buf       []byte
	requests  []*backend.Request
	responses []*Response
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends a request whose input is data. outputs names the requested
// outputs; empty means all.
func (b *Batch) Add(id string, data []byte, outputs ...string) *Response {
	resp := NewResponse(id)
	b.requests = append(b.requests, &backend.Request{
		ID:       id,
		Input:    backend.Range{Offset: int64(len(b.buf)), Length: int64(len(data))},
		Outputs:  outputs,
		Response: resp,
	})
	b.buf = append(b.buf, data...)
	b.responses = append(b.responses, resp)
	return resp
}

// Len returns the number of requests.
func (b *Batch) Len() int { return len(b.requests) }

// Input returns the contiguous input buffer.
func (b *Batch) Input() backend.Input {
	return backend.Input{Buffer: b.buf, Kind: tensor.MemoryCPU}
}

// Requests returns the assembled requests.
func (b *Batch) Requests() []*backend.Request { return b.requests }

// Responses returns the responses in request order.
func (b *Batch) Responses() []*Response { return b.responses }

// Run executes the batch on e.
func (b *Batch) Run(e backend.Executor) (*backend.BatchReport, error) {
	return e.Execute(b.Input(), b.requests)
}
