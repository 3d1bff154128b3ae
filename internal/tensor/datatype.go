// Package tensor describes host tensor datatypes, shapes and memory kinds.
package tensor

import (
	"fmt"
	"strings"
)

// DataType is a host tensor element datatype.
type DataType int

const (
	DataTypeInvalid DataType = iota
	DataTypeBool
	DataTypeUint8
	DataTypeUint16
	DataTypeUint32
	DataTypeUint64
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeFP16
	DataTypeFP32
	DataTypeFP64
	DataTypeBytes
	DataTypeBF16
)

var dataTypeNames = map[DataType]string{
	DataTypeBool:   "BOOL",
	DataTypeUint8:  "UINT8",
	DataTypeUint16: "UINT16",
	DataTypeUint32: "UINT32",
	DataTypeUint64: "UINT64",
	DataTypeInt8:   "INT8",
	DataTypeInt16:  "INT16",
	DataTypeInt32:  "INT32",
	DataTypeInt64:  "INT64",
	DataTypeFP16:   "FP16",
	DataTypeFP32:   "FP32",
	DataTypeFP64:   "FP64",
	DataTypeBytes:  "BYTES",
	DataTypeBF16:   "BF16",
}

// String returns the wire name of the datatype (e.g. "UINT8").
func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return "INVALID"
}

// Width returns the size in bytes of one element. BYTES tensors are
// treated as raw uint8 payloads. Invalid datatypes have width 0.
func (d DataType) Width() int64 {
	switch d {
	case DataTypeBool, DataTypeUint8, DataTypeInt8, DataTypeBytes:
		return 1
	case DataTypeUint16, DataTypeInt16, DataTypeFP16, DataTypeBF16:
		return 2
	case DataTypeUint32, DataTypeInt32, DataTypeFP32:
		return 4
	case DataTypeUint64, DataTypeInt64, DataTypeFP64:
		return 8
	default:
		return 0
	}
}

// ParseDataType parses a model configuration datatype such as "TYPE_FP32".
// The wire form without the "TYPE_" prefix ("FP32") is accepted as well.
func ParseDataType(s string) (DataType, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "TYPE_")
	if name == "STRING" {
		return DataTypeBytes, nil
	}
	for dt, n := range dataTypeNames {
		if n == name {
			return dt, nil
		}
	}
	return DataTypeInvalid, fmt.Errorf("%w: %q", ErrUnknownDataType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DataType) UnmarshalText(text []byte) error {
	dt, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

// MemoryKind identifies where a buffer lives.
type MemoryKind int

const (
	// MemoryCPU is ordinary host memory.
	MemoryCPU MemoryKind = iota
	// MemoryCPUPinned is page-locked host memory.
	MemoryCPUPinned
	// MemoryDevice is accelerator-local memory.
	MemoryDevice
)

func (k MemoryKind) String() string {
	switch k {
	case MemoryCPU:
		return "cpu"
	case MemoryCPUPinned:
		return "cpu_pinned"
	case MemoryDevice:
		return "device"
	default:
		return fmt.Sprintf("memory(%d)", int(k))
	}
}
