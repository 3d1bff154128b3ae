//go:build rknn && cgo

package rknn

/*
#cgo LDFLAGS: -lrknnrt
#include <stdlib.h>
#include <string.h>
#include <rknn_api.h>

static int rk_init(rknn_context *ctx, const char *path) {
	return rknn_init(ctx, (void *)path, 0, 0, NULL);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ekisa-team/rkbackend/internal/device"
)

// Driver opens RKNN contexts from compiled .rknn files.
type Driver struct{}

// Name implements device.Driver.
func (Driver) Name() string {
	return DriverName
}

// Init implements device.Driver.
func (Driver) Init(modelPath string) (device.Context, error) {
	cpath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cpath))

	var ctx C.rknn_context
	if ret := C.rk_init(&ctx, cpath); ret < 0 {
		return nil, fmt.Errorf("rknn: init %s: %w", modelPath, device.CheckStatus("rknn_init", int(ret)))
	}
	return &Context{ctx: ctx}, nil
}

// Context wraps one rknn_context.
type Context struct {
	ctx C.rknn_context
}

func (c *Context) query(cmd C.rknn_query_cmd, out unsafe.Pointer, size uintptr, op string) error {
	ret := C.rknn_query(c.ctx, cmd, out, C.uint32_t(size))
	return device.CheckStatus(op, int(ret))
}

// QueryIOCount implements device.Context.
func (c *Context) QueryIOCount() (device.IOCount, error) {
	var n C.rknn_input_output_num
	if err := c.query(C.RKNN_QUERY_IN_OUT_NUM, unsafe.Pointer(&n), unsafe.Sizeof(n), "rknn_query(IN_OUT_NUM)"); err != nil {
		return device.IOCount{}, err
	}
	return device.IOCount{Inputs: int(n.n_input), Outputs: int(n.n_output)}, nil
}

// QueryInputAttr implements device.Context.
func (c *Context) QueryInputAttr(index int) (device.TensorAttr, error) {
	return c.queryAttr(C.RKNN_QUERY_INPUT_ATTR, index, "rknn_query(INPUT_ATTR)")
}

// QueryOutputAttr implements device.Context.
func (c *Context) QueryOutputAttr(index int) (device.TensorAttr, error) {
	return c.queryAttr(C.RKNN_QUERY_OUTPUT_ATTR, index, "rknn_query(OUTPUT_ATTR)")
}

func (c *Context) queryAttr(cmd C.rknn_query_cmd, index int, op string) (device.TensorAttr, error) {
	var a C.rknn_tensor_attr
	C.memset(unsafe.Pointer(&a), 0, C.size_t(unsafe.Sizeof(a)))
	a.index = C.uint32_t(index)

	if err := c.query(cmd, unsafe.Pointer(&a), unsafe.Sizeof(a), op); err != nil {
		return device.TensorAttr{}, err
	}

	dims := make([]int64, int(a.n_dims))
	for i := range dims {
		dims[i] = int64(a.dims[i])
	}

	return device.TensorAttr{
		Index:        int(a.index),
		Name:         C.GoString(&a.name[0]),
		Dims:         dims,
		ElementCount: int64(a.n_elems),
		Size:         int64(a.size),
		Layout:       device.Layout(a.fmt),
		Type:         device.NumericType(a._type),
		QuantType:    device.QuantType(a.qnt_type),
		ZeroPoint:    int32(a.zp),
		Scale:        float32(a.scale),
	}, nil
}

// QuerySDKVersion implements device.Context.
func (c *Context) QuerySDKVersion() (device.SDKVersion, error) {
	var v C.rknn_sdk_version
	if err := c.query(C.RKNN_QUERY_SDK_VERSION, unsafe.Pointer(&v), unsafe.Sizeof(v), "rknn_query(SDK_VERSION)"); err != nil {
		return device.SDKVersion{}, err
	}
	return device.SDKVersion{
		API:    C.GoString(&v.api_version[0]),
		Driver: C.GoString(&v.drv_version[0]),
	}, nil
}

// QueryMemSize implements device.Context.
func (c *Context) QueryMemSize() (device.MemSize, error) {
	var m C.rknn_mem_size
	if err := c.query(C.RKNN_QUERY_MEM_SIZE, unsafe.Pointer(&m), unsafe.Sizeof(m), "rknn_query(MEM_SIZE)"); err != nil {
		return device.MemSize{}, err
	}
	return device.MemSize{
		TotalWeight:       uint64(m.total_weight_size),
		TotalInternal:     uint64(m.total_internal_size),
		TotalDMAAllocated: uint64(m.total_dma_allocated_size),
	}, nil
}

// SetInputs implements device.Context. The runtime copies input data
// before returning, so the Go buffers are pinned only for the call.
func (c *Context) SetInputs(inputs []device.Input) error {
	if len(inputs) == 0 {
		return nil
	}

	var pinner runtime.Pinner
	defer pinner.Unpin()

	descs := make([]C.rknn_input, len(inputs))
	for i, in := range inputs {
		descs[i].index = C.uint32_t(in.Index)
		descs[i].size = C.uint32_t(len(in.Buf))
		descs[i]._type = C.rknn_tensor_type(in.Type)
		descs[i].fmt = C.rknn_tensor_format(in.Layout)
		if in.PassThrough {
			descs[i].pass_through = 1
		}
		if len(in.Buf) > 0 {
			pinner.Pin(&in.Buf[0])
			descs[i].buf = unsafe.Pointer(&in.Buf[0])
		}
	}
	pinner.Pin(&descs[0])

	ret := C.rknn_inputs_set(c.ctx, C.uint32_t(len(descs)), &descs[0])
	return device.CheckStatus("rknn_inputs_set", int(ret))
}

// Run implements device.Context.
func (c *Context) Run() error {
	return device.CheckStatus("rknn_run", int(C.rknn_run(c.ctx, nil)))
}

// GetOutputs implements device.Context. Descriptors that are not
// pre-allocated receive a Go copy of the runtime buffer, which is then
// released.
func (c *Context) GetOutputs(outputs []device.Output) error {
	if len(outputs) == 0 {
		return nil
	}

	var pinner runtime.Pinner
	defer pinner.Unpin()

	descs := make([]C.rknn_output, len(outputs))
	owned := false
	for i, out := range outputs {
		descs[i].index = C.uint32_t(out.Index)
		if out.WantFloat {
			descs[i].want_float = 1
		}
		if out.Prealloc {
			if len(out.Buf) == 0 {
				return device.CheckStatus("rknn_outputs_get", -5)
			}
			descs[i].is_prealloc = 1
			descs[i].size = C.uint32_t(len(out.Buf))
			pinner.Pin(&out.Buf[0])
			descs[i].buf = unsafe.Pointer(&out.Buf[0])
		} else {
			owned = true
		}
	}
	pinner.Pin(&descs[0])

	ret := C.rknn_outputs_get(c.ctx, C.uint32_t(len(descs)), &descs[0], nil)
	if err := device.CheckStatus("rknn_outputs_get", int(ret)); err != nil {
		return err
	}

	if owned {
		for i := range outputs {
			if outputs[i].Prealloc {
				continue
			}
			outputs[i].Buf = C.GoBytes(descs[i].buf, C.int(descs[i].size))
		}
		ret = C.rknn_outputs_release(c.ctx, C.uint32_t(len(descs)), &descs[0])
		return device.CheckStatus("rknn_outputs_release", int(ret))
	}
	return nil
}

// Destroy implements device.Context.
func (c *Context) Destroy() error {
	return device.CheckStatus("rknn_destroy", int(C.rknn_destroy(c.ctx)))
}

func init() {
	device.Register(Driver{})
}
