// Package backend executes request batches on an NPU. An Instance owns a
// device session and a fixed pool of output buffers; Execute binds each
// request's input, runs the device, and scatters the results into the
// host's responses.
package backend

import (
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Response is the host's sink for one request's outputs.
type Response interface {
	// CreateOutputBuffer returns a buffer of exactly the byte size of
	// shape for the named output.
	CreateOutputBuffer(name string, dt tensor.DataType, shape tensor.Shape) (buf []byte, kind tensor.MemoryKind, memoryID int64, err error)

	// Send delivers the response. final marks the last response for the
	// request.
	Send(final bool) error

	// SendError delivers an error response.
	SendError(err error) error
}

// Range is a byte range into the batch input buffer.
type Range struct {
	Offset int64
	Length int64
}

// End returns the exclusive end of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Request is one inbound request of a batch. It lives for exactly one
// Execute call.
type Request struct {
	ID    string
	Input Range

	// Outputs lists the requested outputs. Empty means every declared
	// output.
	Outputs []string

	Response Response
}

// Input is the host's contiguous input buffer for a batch.
type Input struct {
	Buffer []byte
	Kind   tensor.MemoryKind
}

// Executor runs request batches for one model instance.
type Executor interface {
	// Name returns the instance identifier.
	Name() string

	// Execute runs a batch. Every request receives exactly one response,
	// successful or not. The returned error is non-nil when the whole
	// batch failed.
	Execute(input Input, requests []*Request) (*BatchReport, error)

	// Close releases the instance.
	Close() error
}
