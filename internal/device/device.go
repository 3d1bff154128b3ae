// Package device defines the narrow NPU driver contract consumed by the
// backend and the Session that owns one driver context.
package device

// Driver opens NPU contexts for compiled model artifacts.
type Driver interface {
	// Name returns the driver identifier used in configuration.
	Name() string

	// Init loads the model at modelPath and returns a live context.
	Init(modelPath string) (Context, error)
}

// Context is one initialized NPU context. Every call is synchronous and
// blocks the calling goroutine until the driver returns.
type Context interface {
	QueryIOCount() (IOCount, error)
	QueryInputAttr(index int) (TensorAttr, error)
	QueryOutputAttr(index int) (TensorAttr, error)
	QuerySDKVersion() (SDKVersion, error)
	QueryMemSize() (MemSize, error)

	// SetInputs binds input descriptors for the next Run.
	SetInputs(inputs []Input) error

	// Run executes the model on the bound inputs.
	Run() error

	// GetOutputs retrieves results. Pre-allocated descriptors are written
	// in place.
	GetOutputs(outputs []Output) error

	// Destroy releases the context.
	Destroy() error
}

// IOCount holds the number of model inputs and outputs.
type IOCount struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// SDKVersion holds runtime library and kernel driver versions.
type SDKVersion struct {
	API    string `json:"api_version" yaml:"api_version"`
	Driver string `json:"driver_version" yaml:"driver_version"`
}

// MemSize reports NPU memory usage for a loaded model.
type MemSize struct {
	TotalWeight       uint64 `json:"total_weight_size" yaml:"total_weight_size"`
	TotalInternal     uint64 `json:"total_internal_size" yaml:"total_internal_size"`
	TotalDMAAllocated uint64 `json:"total_dma_allocated_size" yaml:"total_dma_allocated_size"`
}

// Input describes one input buffer handed to the driver.
type Input struct {
	Index       int
	Buf         []byte
	Type        NumericType
	Layout      Layout
	PassThrough bool
}

// Output describes one output buffer the driver fills.
type Output struct {
	Index     int
	Buf       []byte
	WantFloat bool
	Prealloc  bool
}
