package model

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// ParseConfigJSON decodes a JSON model configuration document.
func ParseConfigJSON(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &s, nil
}

// ConfigFromMap converts a decoded YAML or JSON mapping into a model
// configuration document.
func ConfigFromMap(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}

// Validate checks a model configuration and builds its descriptor. Only
// the first declared input is used. Every output must carry a name, a
// datatype and fixed dims.
func Validate(name string, cfg *structpb.Struct, logger *slog.Logger) (*Descriptor, error) {
	if cfg == nil {
		return nil, configErrorf(name, "", "configuration is empty")
	}
	fields := cfg.GetFields()

	inputs, err := listField(name, fields, "input")
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, configErrorf(name, "input", "at least one input is required")
	}
	outputs, err := listField(name, fields, "output")
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, configErrorf(name, "output", "at least one output is required")
	}

	in, err := parseTensor(name, "input[0]", inputs[0])
	if err != nil {
		return nil, err
	}
	if _, ok := device.NumericTypeFor(in.DataType); !ok {
		return nil, configErrorf(name, "input[0].data_type", "%s has no device representation", in.DataType)
	}

	d := &Descriptor{
		name:          name,
		inputName:     in.Name,
		inputDataType: in.DataType,
		inputShape:    in.Shape,
		dataType:      in.DataType,
		index:         make(map[string]int, len(outputs)),
	}

	for i, v := range outputs {
		field := fmt.Sprintf("output[%d]", i)
		out, err := parseTensor(name, field, v)
		if err != nil {
			return nil, err
		}
		if out.Shape.IsDynamic() {
			return nil, configErrorf(name, field+".dims", "dynamic dims %s are not supported for outputs", out.Shape)
		}
		if _, dup := d.index[out.Name]; dup {
			return nil, configErrorf(name, field+".name", "duplicate output %q", out.Name)
		}
		if _, err := out.ByteSize(); err != nil {
			return nil, configErrorf(name, field+".dims", "%w", err)
		}
		if out.DataType != d.dataType {
			logger.Warn("Output datatype differs from input datatype",
				"model", name, "output", out.Name,
				"input_datatype", d.dataType, "output_datatype", out.DataType)
		}

		d.index[out.Name] = len(d.outputs)
		d.outputs = append(d.outputs, out)
	}

	if v, ok := fields["max_batch_size"]; ok {
		n, err := intValue(v)
		if err != nil || n < 0 {
			return nil, configErrorf(name, "max_batch_size", "expected a non-negative integer")
		}
		d.maxBatchSize = int(n)
	}

	attrs := make([]any, 0, len(d.outputs))
	for _, o := range d.outputs {
		attrs = append(attrs, slog.String(o.Name, o.DataType.String()+o.Shape.String()))
	}
	logger.Info("Model configuration validated",
		"model", name,
		"input", d.inputName,
		"input_shape", d.inputShape.String(),
		"datatype", d.dataType.String(),
		"max_batch_size", d.maxBatchSize,
		slog.Group("outputs", attrs...),
	)

	return d, nil
}

func listField(model string, fields map[string]*structpb.Value, key string) ([]*structpb.Value, error) {
	v, ok := fields[key]
	if !ok {
		return nil, configErrorf(model, key, "missing")
	}
	list := v.GetListValue()
	if list == nil {
		return nil, configErrorf(model, key, "expected an array")
	}
	return list.GetValues(), nil
}

func parseTensor(model, field string, v *structpb.Value) (Output, error) {
	obj := v.GetStructValue()
	if obj == nil {
		return Output{}, configErrorf(model, field, "expected an object")
	}
	f := obj.GetFields()

	name := f["name"].GetStringValue()
	if name == "" {
		return Output{}, configErrorf(model, field+".name", "missing")
	}

	dtName := f["data_type"].GetStringValue()
	if dtName == "" {
		return Output{}, configErrorf(model, field+".data_type", "missing")
	}
	dt, err := tensor.ParseDataType(dtName)
	if err != nil {
		return Output{}, configErrorf(model, field+".data_type", "%w", err)
	}

	dimsValue, ok := f["dims"]
	if !ok || dimsValue.GetListValue() == nil {
		return Output{}, configErrorf(model, field+".dims", "missing")
	}
	dims := dimsValue.GetListValue().GetValues()
	shape := make(tensor.Shape, len(dims))
	for i, dv := range dims {
		n, err := intValue(dv)
		if err != nil || n < tensor.DynamicDim {
			return Output{}, configErrorf(model, field+".dims", "cannot parse dimension %d", i)
		}
		shape[i] = n
	}

	return Output{Name: name, DataType: dt, Shape: shape}, nil
}

// intValue accepts numbers and decimal strings, since int64 fields are
// rendered as strings in JSON model configurations.
func intValue(v *structpb.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	case *structpb.Value_StringValue:
		return strconv.ParseInt(k.StringValue, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}
