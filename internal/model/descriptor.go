package model

import (
	"fmt"
	"sync"

	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Output is one declared model output.
type Output struct {
	Name     string          `json:"name"`
	DataType tensor.DataType `json:"datatype"`
	Shape    tensor.Shape    `json:"shape"`
}

// ByteSize returns the byte size of one instance of the output.
func (o Output) ByteSize() (int64, error) {
	return tensor.ByteSize(o.DataType, o.Shape)
}

// BatchingReporter reports whether a fully loaded model batches along its
// first dimension.
type BatchingReporter interface {
	SupportsFirstDimBatching() (bool, error)
}

// Descriptor is the validated view of a model configuration. It is
// immutable once finalized and shared by every instance of the model.
type Descriptor struct {
	name          string
	inputName     string
	inputDataType tensor.DataType
	inputShape    tensor.Shape
	dataType      tensor.DataType
	outputs       []Output
	index         map[string]int
	maxBatchSize  int

	mu        sync.RWMutex
	finalized bool
	shape     tensor.Shape
}

// Name returns the model name.
func (d *Descriptor) Name() string { return d.name }

// InputName returns the name of the model input.
func (d *Descriptor) InputName() string { return d.inputName }

// InputShape returns the declared input dims without a batch dimension.
func (d *Descriptor) InputShape() tensor.Shape { return d.inputShape.Clone() }

// DataType returns the datatype used to marshal inputs to the device.
func (d *Descriptor) DataType() tensor.DataType { return d.dataType }

// MaxBatchSize returns the configured max_batch_size.
func (d *Descriptor) MaxBatchSize() int { return d.maxBatchSize }

// Outputs returns the declared outputs in declaration order.
func (d *Descriptor) Outputs() []Output {
	out := make([]Output, len(d.outputs))
	for i, o := range d.outputs {
		out[i] = Output{Name: o.Name, DataType: o.DataType, Shape: o.Shape.Clone()}
	}
	return out
}

// OutputNames returns the declared output names in declaration order.
func (d *Descriptor) OutputNames() []string {
	names := make([]string, len(d.outputs))
	for i, o := range d.outputs {
		names[i] = o.Name
	}
	return names
}

// Output returns a declared output and its declaration index.
func (d *Descriptor) Output(name string) (Output, int, error) {
	i, ok := d.index[name]
	if !ok {
		return Output{}, -1, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	o := d.outputs[i]
	return Output{Name: o.Name, DataType: o.DataType, Shape: o.Shape.Clone()}, i, nil
}

// OutputDataType returns the declared datatype of an output.
func (d *Descriptor) OutputDataType(name string) (tensor.DataType, error) {
	o, _, err := d.Output(name)
	if err != nil {
		return tensor.DataTypeInvalid, err
	}
	return o.DataType, nil
}

// OutputShape returns the declared shape of an output.
func (d *Descriptor) OutputShape(name string) (tensor.Shape, error) {
	o, _, err := d.Output(name)
	if err != nil {
		return nil, err
	}
	return o.Shape, nil
}

// Finalize computes the batch-aware input shape once the model is fully
// loaded. Later calls are no-ops.
func (d *Descriptor) Finalize(r BatchingReporter) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finalized {
		return nil
	}

	batching, err := r.SupportsFirstDimBatching()
	if err != nil {
		return fmt.Errorf("finalize %s: %w", d.name, err)
	}

	shape := make(tensor.Shape, 0, len(d.inputShape)+1)
	if batching {
		shape = append(shape, tensor.DynamicDim)
	}
	d.shape = append(shape, d.inputShape...)
	d.finalized = true

	return nil
}

// TensorShape returns the input shape with a leading dynamic batch
// dimension when the model batches along its first dimension. It fails
// with ErrNotReady until Finalize succeeds.
func (d *Descriptor) TensorShape() (tensor.Shape, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.finalized {
		return nil, fmt.Errorf("%w: %s has not been finalized", ErrNotReady, d.name)
	}
	return d.shape.Clone(), nil
}
