package backend

import (
	"fmt"
	"slices"
	"time"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// Execute implements Executor. Request i is bound to input range i and
// pool slot i. A failure before scattering errors every request; a
// failure while scattering errors only the affected request.
func (i *Instance) Execute(input Input, requests []*Request) (*BatchReport, error) {
	report := newBatchReport(i.desc.Name(), requests)
	if len(requests) == 0 {
		report.ExecEnd = time.Now()
		return report, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.execute(report, input, requests)
	if err != nil {
		i.failAll(report, requests, err)
	} else {
		i.scatter(report, requests)
	}

	report.ExecEnd = time.Now()
	i.stats.record(report, err)

	i.logger.Debug("Batch executed",
		"requests", len(requests),
		"succeeded", report.Succeeded(),
		"compute", report.ComputeDuration(),
		"total", report.ExecEnd.Sub(report.ExecStart))

	return report, err
}

// execute binds, runs and retrieves outputs for every slot.
func (i *Instance) execute(report *BatchReport, input Input, requests []*Request) error {
	if i.closed {
		return ErrInstanceClosed
	}
	if err := i.checkBatch(input, requests); err != nil {
		return err
	}

	attrs, err := i.session.QueryAttributes()
	if err != nil {
		return &DeviceError{Model: i.desc.Name(), Stage: "query attributes", Err: err}
	}
	if err := reconcile(i.desc, attrs, i.pool, i.logger); err != nil {
		return &DeviceError{Model: i.desc.Name(), Stage: "reconcile", Err: err}
	}

	in := attrs.Inputs[0]
	layout := resolveLayout(in, i.logger)
	numeric, _ := device.NumericTypeFor(i.desc.DataType())

	sampleBytes := requests[0].Input.Length
	if g, err := inputGeometry(in, layout); err != nil {
		i.logger.Debug("Skipping input geometry check", "error", err)
	} else {
		i.logger.Debug("Model input geometry",
			"layout", layout.String(), "height", g.Height, "width", g.Width, "channel", g.Channels)
		if want := g.Elements() * numeric.Width(); want != sampleBytes {
			i.logger.Warn("Request input size differs from device input",
				"request_bytes", sampleBytes, "device_bytes", want)
		}
	}

	outputs := min(len(attrs.Outputs), i.pool.Outputs())
	for s := range requests {
		report.Results[s].State = StateBound
	}

	report.ComputeStart = time.Now()
	defer func() { report.ComputeEnd = time.Now() }()

	// The model takes one sample per run, so every slot is bound, run and
	// read back on its own.
	for s, req := range requests {
		i.pool.Zero(s)

		binding := []device.Input{{
			Index:  0,
			Buf:    input.Buffer[req.Input.Offset:req.Input.End()],
			Type:   numeric,
			Layout: layout,
		}}
		if err := i.session.SetInputs(binding); err != nil {
			return &DeviceError{Model: i.desc.Name(), Stage: "set inputs", Err: err}
		}
		if err := i.session.Run(); err != nil {
			return &DeviceError{Model: i.desc.Name(), Stage: "run", Err: err}
		}

		descs := make([]device.Output, outputs)
		for k := range descs {
			descs[k] = device.Output{Index: k, Buf: i.pool.Region(s, k), Prealloc: true}
		}
		if err := i.session.GetOutputs(descs); err != nil {
			return &DeviceError{Model: i.desc.Name(), Stage: "get outputs", Err: err}
		}
	}

	for s := range requests {
		report.Results[s].State = StateExecuted
	}
	return nil
}

// checkBatch enforces the caller contract: the batch fits the pool, the
// input is host memory, and every request owns an equally sized, in
// bounds, non-overlapping input range.
func (i *Instance) checkBatch(input Input, requests []*Request) error {
	if len(requests) > i.pool.Width() {
		return fmt.Errorf("%w: %d requests, width %d", ErrBatchTooWide, len(requests), i.pool.Width())
	}
	if input.Kind != tensor.MemoryCPU && input.Kind != tensor.MemoryCPUPinned {
		return fmt.Errorf("%w: %s", ErrUnsupportedMemory, input.Kind)
	}

	size := int64(len(input.Buffer))
	ranges := make([]Range, len(requests))
	for n, req := range requests {
		if req == nil || req.Response == nil {
			return fmt.Errorf("%w: request %d", ErrMissingResponse, n)
		}
		r := req.Input
		if r.Offset < 0 || r.Length <= 0 || r.Offset > size || r.Length > size-r.Offset {
			return fmt.Errorf("%w: request %q range [%d,%d) of %d bytes", ErrInputOutOfRange, req.ID, r.Offset, r.End(), size)
		}
		if r.Length != requests[0].Input.Length {
			return fmt.Errorf("%w: request %q has %d bytes, request %q has %d",
				ErrRaggedBatch, req.ID, r.Length, requests[0].ID, requests[0].Input.Length)
		}
		ranges[n] = r
	}

	slices.SortFunc(ranges, func(a, b Range) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
	for n := 1; n < len(ranges); n++ {
		if ranges[n].Offset < ranges[n-1].End() {
			return fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlappingInputs,
				ranges[n-1].Offset, ranges[n-1].End(), ranges[n].Offset, ranges[n].End())
		}
	}

	return nil
}

// failAll sends err to every request exactly once.
func (i *Instance) failAll(report *BatchReport, requests []*Request, err error) {
	i.logger.Error("Batch failed", "requests", len(requests), "error", err)

	for s, req := range requests {
		res := &report.Results[s]
		res.State = StateExecutionFailed
		res.Err = err
		if req == nil || req.Response == nil {
			continue
		}
		if sendErr := req.Response.SendError(err); sendErr != nil {
			i.logger.Error("Failed to send error response", "request", req.ID, "error", sendErr)
		}
		res.State = StateSent
	}
}
