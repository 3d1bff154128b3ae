package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Layout is the memory layout of a device tensor.
type Layout int

const (
	LayoutNCHW Layout = iota
	LayoutNHWC
	LayoutNC1HWC2
	LayoutUndefined
)

func (l Layout) String() string {
	switch l {
	case LayoutNCHW:
		return "NCHW"
	case LayoutNHWC:
		return "NHWC"
	case LayoutNC1HWC2:
		return "NC1HWC2"
	default:
		return "UNDEFINED"
	}
}

// NumericType is the element type of a device tensor.
type NumericType int

const (
	TypeFloat32 NumericType = iota
	TypeFloat16
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeBool
	TypeInvalid
)

var numericTypeNames = [...]string{
	TypeFloat32: "FP32",
	TypeFloat16: "FP16",
	TypeInt8:    "INT8",
	TypeUint8:   "UINT8",
	TypeInt16:   "INT16",
	TypeUint16:  "UINT16",
	TypeInt32:   "INT32",
	TypeUint32:  "UINT32",
	TypeInt64:   "INT64",
	TypeBool:    "BOOL",
}

func (t NumericType) String() string {
	if t >= 0 && int(t) < len(numericTypeNames) {
		return numericTypeNames[t]
	}
	return "UNKNOW"
}

// QuantType is the quantization scheme of a device tensor.
type QuantType int

const (
	QuantNone QuantType = iota
	QuantDFP
	QuantAffineAsymmetric
)

func (q QuantType) String() string {
	switch q {
	case QuantNone:
		return "NONE"
	case QuantDFP:
		return "DFP"
	case QuantAffineAsymmetric:
		return "AFFINE"
	default:
		return "UNKNOW"
	}
}

// TensorAttr is the live attribute set of one device tensor.
type TensorAttr struct {
	Index        int         `json:"index"`
	Name         string      `json:"name"`
	Dims         []int64     `json:"dims"`
	ElementCount int64       `json:"n_elems"`
	Size         int64       `json:"size"`
	Layout       Layout      `json:"fmt"`
	Type         NumericType `json:"type"`
	QuantType    QuantType   `json:"qnt_type"`
	ZeroPoint    int32       `json:"zp"`
	Scale        float32     `json:"scale"`
}

// LogValue implements slog.LogValuer.
func (a TensorAttr) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", a.Index),
		slog.String("name", a.Name),
		slog.Int("n_dims", len(a.Dims)),
		slog.String("dims", tensor.Shape(a.Dims).String()),
		slog.Int64("n_elems", a.ElementCount),
		slog.Int64("size", a.Size),
		slog.String("fmt", a.Layout.String()),
		slog.String("type", a.Type.String()),
		slog.String("qnt_type", a.QuantType.String()),
		slog.Int("zp", int(a.ZeroPoint)),
		slog.Float64("scale", float64(a.Scale)),
	)
}

// Dim returns the extent of axis i, or 0 when the tensor has fewer axes.
func (a TensorAttr) Dim(i int) int64 {
	if i < 0 || i >= len(a.Dims) {
		return 0
	}
	return a.Dims[i]
}

// Attributes is one snapshot of the model's live tensor attributes.
type Attributes struct {
	IOCount IOCount
	Inputs  []TensorAttr
	Outputs []TensorAttr
}

// NumericTypeFor maps a host datatype to the device numeric type used when
// binding inputs. The second result is false when the device has no
// matching type.
func NumericTypeFor(dt tensor.DataType) (NumericType, bool) {
	switch dt {
	case tensor.DataTypeBool:
		return TypeBool, true
	case tensor.DataTypeUint8, tensor.DataTypeBytes:
		return TypeUint8, true
	case tensor.DataTypeUint16:
		return TypeUint16, true
	case tensor.DataTypeUint32:
		return TypeUint32, true
	case tensor.DataTypeUint64, tensor.DataTypeInt64:
		return TypeInt64, true
	case tensor.DataTypeInt8:
		return TypeInt8, true
	case tensor.DataTypeInt16:
		return TypeInt16, true
	case tensor.DataTypeInt32:
		return TypeInt32, true
	case tensor.DataTypeFP16, tensor.DataTypeBF16:
		return TypeFloat16, true
	case tensor.DataTypeFP32:
		return TypeFloat32, true
	default:
		return TypeInvalid, false
	}
}

// Width returns the byte width of one element of the numeric type.
func (t NumericType) Width() int64 {
	switch t {
	case TypeInt8, TypeUint8, TypeBool:
		return 1
	case TypeFloat16, TypeInt16, TypeUint16:
		return 2
	case TypeFloat32, TypeInt32, TypeUint32:
		return 4
	case TypeInt64:
		return 8
	default:
		return 0
	}
}

// ParseLayout parses a layout name such as "NHWC". Unknown names map to
// LayoutUndefined.
func ParseLayout(s string) Layout {
	for _, l := range []Layout{LayoutNCHW, LayoutNHWC, LayoutNC1HWC2} {
		if strings.EqualFold(l.String(), s) {
			return l
		}
	}
	return LayoutUndefined
}

// ParseNumericType parses a numeric type name such as "UINT8".
func ParseNumericType(s string) (NumericType, error) {
	for i, name := range numericTypeNames {
		if strings.EqualFold(name, s) {
			return NumericType(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown numeric type %q", s)
}

func (a TensorAttr) String() string {
	return fmt.Sprintf("%s#%d%s/%s", a.Name, a.Index, tensor.Shape(a.Dims), a.Layout)
}
