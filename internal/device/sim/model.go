// Package sim implements a simulated NPU driver. It loads a YAML model
// description instead of a compiled artifact and produces deterministic
// outputs derived from the bound input, which makes it usable on
// development hosts and in tests.
package sim

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// TensorSpec describes one simulated tensor.
type TensorSpec struct {
	Name      string  `yaml:"name"`
	Dims      []int64 `yaml:"dims"`
	Layout    string  `yaml:"fmt,omitempty"`
	Type      string  `yaml:"type,omitempty"`
	QuantType string  `yaml:"qnt_type,omitempty"`
	ZeroPoint int32   `yaml:"zp,omitempty"`
	Scale     float32 `yaml:"scale,omitempty"`
}

// Model is a simulated compiled model.
type Model struct {
	Inputs  []TensorSpec      `yaml:"inputs"`
	Outputs []TensorSpec      `yaml:"outputs"`
	SDK     device.SDKVersion `yaml:"sdk,omitempty"`
	Mem     device.MemSize    `yaml:"mem,omitempty"`
}

// LoadModel reads a simulated model description from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sim: read model: %w", err)
	}

	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sim: invalid model description: %w", err)
	}
	if len(m.Inputs) == 0 {
		return nil, fmt.Errorf("sim: model %s declares no inputs", path)
	}

	return &m, nil
}

func (s TensorSpec) attr(index int) (device.TensorAttr, error) {
	nt := device.TypeUint8
	if s.Type != "" {
		t, err := device.ParseNumericType(s.Type)
		if err != nil {
			return device.TensorAttr{}, fmt.Errorf("sim: tensor %q: %w", s.Name, err)
		}
		nt = t
	}

	layout := device.LayoutNHWC
	if s.Layout != "" {
		layout = device.ParseLayout(s.Layout)
	}

	quant := device.QuantNone
	switch s.QuantType {
	case "DFP", "dfp":
		quant = device.QuantDFP
	case "AFFINE", "affine":
		quant = device.QuantAffineAsymmetric
	}

	elems, err := tensor.Shape(s.Dims).ElementCount()
	if err != nil {
		return device.TensorAttr{}, fmt.Errorf("sim: tensor %q: %w", s.Name, err)
	}

	return device.TensorAttr{
		Index:        index,
		Name:         s.Name,
		Dims:         append([]int64(nil), s.Dims...),
		ElementCount: elems,
		Size:         elems * nt.Width(),
		Layout:       layout,
		Type:         nt,
		QuantType:    quant,
		ZeroPoint:    s.ZeroPoint,
		Scale:        s.Scale,
	}, nil
}
