package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ekisa-team/rkbackend/internal/backend"
	"github.com/ekisa-team/rkbackend/internal/host"
	"github.com/ekisa-team/rkbackend/internal/model"
)

// Sample is one request for Infer.
type Sample struct {
	ID   string
	Data []byte
	// Outputs names the requested outputs. Empty means all.
	Outputs []string
}

// Inference routes samples to the instances of loaded models.
type Inference struct {
	manager *Manager
	next    atomic.Uint64
	logger  *slog.Logger
}

// NewInference creates a new Inference service.
func NewInference(manager *Manager, logger *slog.Logger) *Inference {
	return &Inference{manager: manager, logger: logger}
}

// Infer runs samples on modelID. Samples are grouped into batches no wider
// than an instance accepts, and batches are spread over the model's
// instances round-robin. The returned responses are in sample order and
// are all sent; a non-nil error reports the batch-level failures, which
// every affected response also carries.
func (s *Inference) Infer(ctx context.Context, modelID string, samples []Sample) ([]*host.Response, error) {
	m, err := s.manager.Models().Get(modelID)
	if err != nil {
		return nil, err
	}
	if st := m.Status(); st != model.StatusLoaded {
		return nil, fmt.Errorf("%w: %s is %s", model.ErrNotReady, modelID, st)
	}

	instances := s.manager.Instances(modelID)
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s has no instances", model.ErrNotReady, modelID)
	}

	responses := make([]*host.Response, 0, len(samples))
	var errs []error
	for start := 0; start < len(samples); {
		if err := ctx.Err(); err != nil {
			return responses, errors.Join(append(errs, err)...)
		}

		inst := instances[s.next.Add(1)%uint64(len(instances))]
		end := min(start+inst.Width(), len(samples))

		batch := host.NewBatch()
		for _, sample := range samples[start:end] {
			batch.Add(sample.ID, sample.Data, sample.Outputs...)
		}

		report, err := batch.Run(inst)
		if err != nil {
			errs = append(errs, err)
		}
		if report != nil {
			s.logger.Debug("Batch executed",
				"model_id", modelID,
				"instance", inst.Name(),
				"requests", batch.Len(),
				"failed", report.Failed(),
				"compute", report.ComputeDuration())
		}

		responses = append(responses, batch.Responses()...)
		start = end
	}

	return responses, errors.Join(errs...)
}

// InstanceStats is the counters of one instance.
type InstanceStats struct {
	Name  string                `json:"name"`
	Width int                   `json:"width"`
	Stats backend.StatsSnapshot `json:"stats"`
}

// Stats returns the counters of every instance of modelID.
func (s *Inference) Stats(modelID string) ([]InstanceStats, error) {
	if _, err := s.manager.Models().Get(modelID); err != nil {
		return nil, err
	}

	instances := s.manager.Instances(modelID)
	out := make([]InstanceStats, 0, len(instances))
	for _, inst := range instances {
		out = append(out, InstanceStats{Name: inst.Name(), Width: inst.Width(), Stats: inst.Stats()})
	}
	return out, nil
}
