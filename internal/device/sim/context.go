package sim

import (
	"fmt"
	"maps"
	"sync"

	"github.com/ekisa-team/rkbackend/internal/device"
)

// Context is a simulated NPU context. Outputs are a pure function of the
// first bound input, so identical inputs always produce identical outputs.
type Context struct {
	inputs  []device.TensorAttr
	outputs []device.TensorAttr
	sdk     device.SDKVersion
	mem     device.MemSize

	mu        sync.Mutex
	faults    map[string]int
	calls     map[string]int
	bound     []byte
	results   [][]byte
	destroyed bool
}

func newContext(m *Model, faults map[string]int) (*Context, error) {
	c := &Context{
		sdk:    m.SDK,
		mem:    m.Mem,
		faults: maps.Clone(faults),
		calls:  make(map[string]int),
	}
	if c.sdk.API == "" {
		c.sdk = device.SDKVersion{API: "sim-1.0.0", Driver: "sim-1.0.0"}
	}

	for i, spec := range m.Inputs {
		a, err := spec.attr(i)
		if err != nil {
			return nil, err
		}
		c.inputs = append(c.inputs, a)
	}
	for i, spec := range m.Outputs {
		a, err := spec.attr(i)
		if err != nil {
			return nil, err
		}
		c.outputs = append(c.outputs, a)
	}

	return c, nil
}

// SetFault makes op fail with status from now on. A zero status clears it.
func (c *Context) SetFault(op string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status == 0 {
		delete(c.faults, op)
		return
	}
	c.faults[op] = status
}

// Calls returns how many times op was invoked.
func (c *Context) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[op]
}

// Destroyed reports whether Destroy was called.
func (c *Context) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.destroyed
}

// enter records a call and returns the injected failure, if any.
// Callers hold c.mu.
func (c *Context) enter(op string) error {
	c.calls[op]++
	if c.destroyed {
		return device.CheckStatus(op, StatusCtxInvalid)
	}
	if status, ok := c.faults[op]; ok {
		return device.CheckStatus(op, status)
	}
	return nil
}

// QueryIOCount implements device.Context.
func (c *Context) QueryIOCount() (device.IOCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpQueryIOCount); err != nil {
		return device.IOCount{}, err
	}
	return device.IOCount{Inputs: len(c.inputs), Outputs: len(c.outputs)}, nil
}

// QueryInputAttr implements device.Context.
func (c *Context) QueryInputAttr(index int) (device.TensorAttr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpQueryInputAttr); err != nil {
		return device.TensorAttr{}, err
	}
	if index < 0 || index >= len(c.inputs) {
		return device.TensorAttr{}, device.CheckStatus(OpQueryInputAttr, StatusParamInvalid)
	}
	return cloneAttr(c.inputs[index]), nil
}

// QueryOutputAttr implements device.Context.
func (c *Context) QueryOutputAttr(index int) (device.TensorAttr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpQueryOutputAttr); err != nil {
		return device.TensorAttr{}, err
	}
	if index < 0 || index >= len(c.outputs) {
		return device.TensorAttr{}, device.CheckStatus(OpQueryOutputAttr, StatusParamInvalid)
	}
	return cloneAttr(c.outputs[index]), nil
}

// QuerySDKVersion implements device.Context.
func (c *Context) QuerySDKVersion() (device.SDKVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpQuerySDKVersion); err != nil {
		return device.SDKVersion{}, err
	}
	return c.sdk, nil
}

// QueryMemSize implements device.Context.
func (c *Context) QueryMemSize() (device.MemSize, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpQueryMemSize); err != nil {
		return device.MemSize{}, err
	}
	return c.mem, nil
}

// SetInputs implements device.Context. The first input's bytes are copied
// so the caller's buffer is not retained.
func (c *Context) SetInputs(inputs []device.Input) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpSetInputs); err != nil {
		return err
	}
	if len(inputs) == 0 {
		return device.CheckStatus(OpSetInputs, StatusParamInvalid)
	}

	c.bound = append(c.bound[:0], inputs[0].Buf...)
	c.results = nil
	return nil
}

// Run implements device.Context.
func (c *Context) Run() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpRun); err != nil {
		return err
	}
	if len(c.bound) == 0 {
		return device.CheckStatus(OpRun, StatusFail)
	}

	c.results = make([][]byte, len(c.outputs))
	for k, attr := range c.outputs {
		out := make([]byte, attr.Size)
		for j := range out {
			out[j] = c.bound[j%len(c.bound)] ^ byte(j) + byte(k+1)
		}
		c.results[k] = out
	}
	return nil
}

// GetOutputs implements device.Context.
func (c *Context) GetOutputs(outputs []device.Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpGetOutputs); err != nil {
		return err
	}
	if c.results == nil {
		return device.CheckStatus(OpGetOutputs, StatusFail)
	}

	for i := range outputs {
		o := &outputs[i]
		if o.Index < 0 || o.Index >= len(c.results) {
			return device.CheckStatus(OpGetOutputs, StatusParamInvalid)
		}
		res := c.results[o.Index]
		if !o.Prealloc {
			o.Buf = append([]byte(nil), res...)
			continue
		}
		if len(o.Buf) < len(res) {
			return fmt.Errorf("%w: output %d buffer holds %d bytes, need %d",
				device.CheckStatus(OpGetOutputs, StatusParamInvalid), o.Index, len(o.Buf), len(res))
		}
		copy(o.Buf, res)
	}

	c.bound = c.bound[:0]
	return nil
}

// Destroy implements device.Context.
func (c *Context) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(OpDestroy); err != nil {
		return err
	}
	c.destroyed = true
	return nil
}

func cloneAttr(a device.TensorAttr) device.TensorAttr {
	a.Dims = append([]int64(nil), a.Dims...)
	return a
}
