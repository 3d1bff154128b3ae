package tensor

import "errors"

// Error definitions for the tensor package.
var (
	ErrUnknownDataType = errors.New("unknown tensor datatype")
	ErrDynamicShape    = errors.New("shape has dynamic dimensions")
	ErrShapeOverflow   = errors.New("shape size overflows int64")
)
