package sim

import (
	"sync"

	"github.com/ekisa-team/rkbackend/internal/device"
)

// DriverName is the configuration name of the simulated driver.
const DriverName = "sim"

// Status codes returned by the simulated driver, mirroring the vendor
// runtime's negative error codes.
const (
	StatusFail         = -1
	StatusTimeout      = -2
	StatusParamInvalid = -5
	StatusCtxInvalid   = -7
)

// Ops that can be made to fail.
const (
	OpQueryIOCount    = "query_in_out_num"
	OpQueryInputAttr  = "query_input_attr"
	OpQueryOutputAttr = "query_output_attr"
	OpQuerySDKVersion = "query_sdk_version"
	OpQueryMemSize    = "query_mem_size"
	OpSetInputs       = "inputs_set"
	OpRun             = "run"
	OpGetOutputs      = "outputs_get"
	OpDestroy         = "destroy"
)

// Driver opens simulated contexts.
type Driver struct {
	model  *Model
	faults map[string]int
	mu     sync.Mutex
	opened []*Context
}

// Option configures a Driver.
type Option func(*Driver)

// WithModel makes Init ignore the model path and use m.
func WithModel(m *Model) Option {
	return func(d *Driver) {
		d.model = m
	}
}

// WithFault makes op return status on every context the driver opens.
func WithFault(op string, status int) Option {
	return func(d *Driver) {
		d.faults[op] = status
	}
}

// NewDriver creates a simulated driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{faults: make(map[string]int)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements device.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Init implements device.Driver.
func (d *Driver) Init(modelPath string) (device.Context, error) {
	m := d.model
	if m == nil {
		loaded, err := LoadModel(modelPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	}

	if status, ok := d.faults["init"]; ok {
		return nil, device.CheckStatus("init", status)
	}

	ctx, err := newContext(m, d.faults)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.opened = append(d.opened, ctx)
	d.mu.Unlock()

	return ctx, nil
}

// Contexts returns every context opened so far.
func (d *Driver) Contexts() []*Context {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Context(nil), d.opened...)
}

func init() {
	device.Register(NewDriver())
}
