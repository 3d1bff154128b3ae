package backend

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ekisa-team/rkbackend/internal/model"
)

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("instance not found in registry")
	ErrAlreadyRegistered = errors.New("instance is already registered in the registry")
	ErrInstanceClosed    = errors.New("instance is closed")

	ErrAlloc   = errors.New("output buffer allocation failed")
	ErrDevice  = errors.New("device execution failed")
	ErrRequest = errors.New("request failed")

	ErrBatchTooWide      = errors.New("batch exceeds max batch width")
	ErrRaggedBatch       = errors.New("request inputs differ in length")
	ErrInputOutOfRange   = errors.New("request input range is outside the input buffer")
	ErrOverlappingInputs = errors.New("request input ranges overlap")
	ErrUnsupportedMemory = errors.New("input buffer is not in CPU memory")
	ErrMissingResponse   = errors.New("request has no response sink")
	ErrOutputSize        = errors.New("output buffer has the wrong size")
)

// ConfigError reports a malformed model configuration.
type ConfigError = model.ConfigError

// AllocError reports that the output buffer pool could not be created.
type AllocError struct {
	Model string
	Bytes int64
	Err   error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("model %q: allocate %d bytes: %v", e.Model, e.Bytes, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AllocError) Unwrap() error { return e.Err }

// Is makes every AllocError match ErrAlloc.
func (e *AllocError) Is(target error) bool { return target == ErrAlloc }

// DeviceError reports a driver failure that aborted a whole batch.
type DeviceError struct {
	Model string
	Stage string
	Err   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("model %q: %s: %v", e.Model, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes every DeviceError match ErrDevice.
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// RequestError reports a failure confined to one request.
type RequestError struct {
	RequestID string
	Output    string
	Err       error
}

func (e *RequestError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("request %q: %v", e.RequestID, e.Err)
	}
	return fmt.Sprintf("request %q: output %q: %v", e.RequestID, e.Output, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }

// Is makes every RequestError match ErrRequest.
func (e *RequestError) Is(target error) bool { return target == ErrRequest }

// Code maps an error to the gRPC status code reported to clients.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, model.ErrOutputNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrNotReady),
		errors.Is(err, ErrInstanceClosed):
		return codes.Unavailable
	case errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, ErrBatchTooWide),
		errors.Is(err, ErrRaggedBatch),
		errors.Is(err, ErrInputOutOfRange),
		errors.Is(err, ErrOverlappingInputs),
		errors.Is(err, ErrUnsupportedMemory),
		errors.Is(err, ErrMissingResponse):
		return codes.InvalidArgument
	case errors.Is(err, ErrAlloc):
		return codes.ResourceExhausted
	case errors.Is(err, ErrDevice), errors.Is(err, ErrRequest):
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Status converts an error into a gRPC status.
func Status(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	return status.New(Code(err), err.Error())
}
