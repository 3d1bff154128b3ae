package http

import (
	"github.com/danielgtaylor/huma/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ekisa-team/rkbackend/internal/backend"
)

// httpError maps a backend or response error onto an HTTP error.
func httpError(msg string, err error) huma.StatusError {
	code := backend.Code(err)
	if code == codes.Unknown {
		if s, ok := status.FromError(err); ok {
			code = s.Code()
		}
	}

	switch code {
	case codes.NotFound:
		return huma.Error404NotFound(msg, err)
	case codes.InvalidArgument:
		return huma.Error400BadRequest(msg, err)
	case codes.Unavailable, codes.ResourceExhausted:
		return huma.Error503ServiceUnavailable(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
