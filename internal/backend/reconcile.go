package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/model"
)

var (
	errNoDeviceInputs   = errors.New("device reports no inputs")
	errTooFewOutputs    = errors.New("device reports fewer outputs than declared")
	errOutputTooLarge   = errors.New("device output does not fit its planned region")
	errBadInputGeometry = errors.New("device input is not four-dimensional")
)

// geometry is the per-sample extent of the device input.
type geometry struct {
	Channels int64
	Height   int64
	Width    int64
}

// Elements returns the element count of one sample.
func (g geometry) Elements() int64 {
	return g.Channels * g.Height * g.Width
}

// resolveLayout returns the layout used to bind inputs. Layouts other
// than NCHW and NHWC are bound as NHWC.
func resolveLayout(attr device.TensorAttr, logger *slog.Logger) device.Layout {
	switch attr.Layout {
	case device.LayoutNCHW, device.LayoutNHWC:
		return attr.Layout
	default:
		logger.Warn("Unknown input layout, assuming NHWC", "input", attr.Name, "layout", attr.Layout.String())
		return device.LayoutNHWC
	}
}

// inputGeometry reads channel, height and width from a 4-D input
// attribute in the given layout.
func inputGeometry(attr device.TensorAttr, layout device.Layout) (geometry, error) {
	if len(attr.Dims) != 4 {
		return geometry{}, fmt.Errorf("%w: %s", errBadInputGeometry, attr)
	}
	if layout == device.LayoutNCHW {
		return geometry{Channels: attr.Dims[1], Height: attr.Dims[2], Width: attr.Dims[3]}, nil
	}
	return geometry{Height: attr.Dims[1], Width: attr.Dims[2], Channels: attr.Dims[3]}, nil
}

// reconcile cross-checks live device attributes against the declared
// model and the planned pool. Mismatches that cannot corrupt memory are
// only logged.
func reconcile(d *model.Descriptor, attrs *device.Attributes, pool *Pool, logger *slog.Logger) error {
	if len(attrs.Inputs) == 0 {
		return errNoDeviceInputs
	}

	outputs := d.Outputs()
	if len(attrs.Outputs) < len(outputs) {
		return fmt.Errorf("%w: device %d, declared %d", errTooFewOutputs, len(attrs.Outputs), len(outputs))
	}
	if len(attrs.Outputs) > len(outputs) {
		logger.Warn("Device reports undeclared outputs, ignoring them",
			"model", d.Name(), "device_outputs", len(attrs.Outputs), "declared_outputs", len(outputs))
	}

	for k, o := range outputs {
		a := attrs.Outputs[k]
		region := int64(len(pool.Region(0, k)))
		if a.Size > region {
			return fmt.Errorf("%w: output %d (%q) needs %d bytes, planned %d", errOutputTooLarge, k, o.Name, a.Size, region)
		}
		if a.Size < pool.Size(k) {
			logger.Warn("Device output is smaller than declared",
				"model", d.Name(), "output", o.Name, "device_size", a.Size, "declared_size", pool.Size(k))
		}
		if declared, err := o.Shape.ElementCount(); err == nil && declared != a.ElementCount {
			logger.Warn("Device output element count differs from declared shape",
				"model", d.Name(), "output", o.Name, "device_elements", a.ElementCount, "declared_elements", declared)
		}
		if a.Name != "" && a.Name != o.Name {
			logger.Debug("Device output name differs from declared name",
				"model", d.Name(), "index", k, "device_name", a.Name, "declared_name", o.Name)
		}
	}

	return nil
}
