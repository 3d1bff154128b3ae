package backend

import (
	"sync/atomic"
	"time"

	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// State is the progress of one request through a batch.
type State int

const (
	StateCreated State = iota
	StateBound
	StateExecuted
	StateExecutionFailed
	StateScattered
	StateScatterFailed
	StateSent
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateExecuted:
		return "executed"
	case StateExecutionFailed:
		return "execution_failed"
	case StateScattered:
		return "scattered"
	case StateScatterFailed:
		return "scatter_failed"
	case StateSent:
		return "sent"
	default:
		return "unknown"
	}
}

// OutputTensor locates one scattered output inside the pool.
type OutputTensor struct {
	Name     string
	DataType tensor.DataType
	Shape    tensor.Shape
	Offset   int64
	Size     int64
}

// RequestResult is the outcome of one request. Err is nil for requests
// that were sent successfully.
type RequestResult struct {
	ID      string
	State   State
	Err     error
	Outputs []OutputTensor
}

// BatchReport records the outcome and timing of one Execute call.
type BatchReport struct {
	Model        string
	ExecStart    time.Time
	ComputeStart time.Time
	ComputeEnd   time.Time
	ExecEnd      time.Time
	Results      []RequestResult
}

func newBatchReport(model string, requests []*Request) *BatchReport {
	r := &BatchReport{
		Model:     model,
		ExecStart: time.Now(),
		Results:   make([]RequestResult, len(requests)),
	}
	for i, req := range requests {
		if req != nil {
			r.Results[i].ID = req.ID
		}
	}
	return r
}

// Succeeded returns the number of requests sent without error.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.State == StateSent {
			n++
		}
	}
	return n
}

// Failed returns the number of requests that received an error.
func (r *BatchReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// ComputeDuration returns the time spent in device calls.
func (r *BatchReport) ComputeDuration() time.Duration {
	if r.ComputeStart.IsZero() || r.ComputeEnd.IsZero() {
		return 0
	}
	return r.ComputeEnd.Sub(r.ComputeStart)
}

// Stats are cumulative per-instance counters.
type Stats struct {
	batches       atomic.Uint64
	failedBatches atomic.Uint64
	requests      atomic.Uint64
	succeeded     atomic.Uint64
	failed        atomic.Uint64
	computeNanos  atomic.Int64
	execNanos     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Batches       uint64        `json:"batches"`
	FailedBatches uint64        `json:"failed_batches"`
	Requests      uint64        `json:"requests"`
	Succeeded     uint64        `json:"succeeded"`
	Failed        uint64        `json:"failed"`
	ComputeTime   time.Duration `json:"compute_ns"`
	ExecutionTime time.Duration `json:"execution_ns"`
}

func (s *Stats) record(r *BatchReport, batchErr error) {
	s.batches.Add(1)
	if batchErr != nil {
		s.failedBatches.Add(1)
	}
	s.requests.Add(uint64(len(r.Results)))
	s.succeeded.Add(uint64(r.Succeeded()))
	s.failed.Add(uint64(r.Failed()))
	s.computeNanos.Add(int64(r.ComputeDuration()))
	s.execNanos.Add(int64(r.ExecEnd.Sub(r.ExecStart)))
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Batches:       s.batches.Load(),
		FailedBatches: s.failedBatches.Load(),
		Requests:      s.requests.Load(),
		Succeeded:     s.succeeded.Load(),
		Failed:        s.failed.Load(),
		ComputeTime:   time.Duration(s.computeNanos.Load()),
		ExecutionTime: time.Duration(s.execNanos.Load()),
	}
}
