package tensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DynamicDim marks a dimension whose extent is only known per request.
const DynamicDim int64 = -1

// Shape is an ordered list of dimension extents.
type Shape []int64

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// IsDynamic reports whether any dimension is negative.
func (s Shape) IsDynamic() bool {
	for _, d := range s {
		if d < 0 {
			return true
		}
	}
	return false
}

// ElementCount returns the product of all extents. A scalar (empty shape)
// has one element. Dynamic shapes return ErrDynamicShape.
func (s Shape) ElementCount() (int64, error) {
	count := int64(1)
	for _, d := range s {
		if d < 0 {
			return 0, fmt.Errorf("%w: %s", ErrDynamicShape, s)
		}
		if d != 0 && count > math.MaxInt64/d {
			return 0, fmt.Errorf("%w: %s", ErrShapeOverflow, s)
		}
		count *= d
	}
	return count, nil
}

// String renders the shape as "[a,b,c]".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ByteSize returns elementCount(shape) * width(dt).
func ByteSize(dt DataType, shape Shape) (int64, error) {
	width := dt.Width()
	if width == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDataType, dt)
	}
	count, err := shape.ElementCount()
	if err != nil {
		return 0, err
	}
	if count > math.MaxInt64/width {
		return 0, fmt.Errorf("%w: %s x %s", ErrShapeOverflow, shape, dt)
	}
	return count * width, nil
}
