package backend

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/model"
)

// Instance is one loaded copy of a model on the NPU. It owns a device
// session and the output buffer pool. Batches on one instance are
// serialized.
type Instance struct {
	name    string
	desc    *model.Descriptor
	session *device.Session
	pool    *Pool
	logger  *slog.Logger
	stats   Stats

	mu     sync.Mutex
	closed bool
}

// InstanceOption configures NewInstance.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	width       int
	planOpts    []PlanOption
	sessionOpts []device.SessionOption
}

// WithMaxBatchWidth overrides the number of pool slots. By default it is
// the model's max_batch_size, or 1 for models that do not batch.
func WithMaxBatchWidth(n int) InstanceOption {
	return func(c *instanceConfig) {
		c.width = n
	}
}

// WithPlanOptions passes options to the pool planner.
func WithPlanOptions(opts ...PlanOption) InstanceOption {
	return func(c *instanceConfig) {
		c.planOpts = append(c.planOpts, opts...)
	}
}

// WithSessionOptions passes options to the device session.
func WithSessionOptions(opts ...device.SessionOption) InstanceOption {
	return func(c *instanceConfig) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// NewInstance plans the output pool for desc and opens a device session
// on modelPath.
func NewInstance(name string, desc *model.Descriptor, driver device.Driver, modelPath string, logger *slog.Logger, opts ...InstanceOption) (*Instance, error) {
	cfg := instanceConfig{width: max(desc.MaxBatchSize(), 1)}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger = logger.With("instance", name)

	pool, err := Plan(desc, cfg.width, cfg.planOpts...)
	if err != nil {
		return nil, err
	}
	logger.Info("Output buffers allocated",
		"slots", pool.Width(), "slot_size", pool.SlotSize(), "outputs", pool.Outputs())

	session, err := device.Open(driver, modelPath, logger, cfg.sessionOpts...)
	if err != nil {
		return nil, &DeviceError{Model: desc.Name(), Stage: "open", Err: err}
	}

	return &Instance{
		name:    name,
		desc:    desc,
		session: session,
		pool:    pool,
		logger:  logger,
	}, nil
}

// Name implements Executor.
func (i *Instance) Name() string { return i.name }

// Descriptor returns the model descriptor the instance serves.
func (i *Instance) Descriptor() *model.Descriptor { return i.desc }

// Session returns the device session.
func (i *Instance) Session() *device.Session { return i.session }

// Width returns the maximum number of requests per batch.
func (i *Instance) Width() int { return i.pool.Width() }

// Stats returns a snapshot of the cumulative counters.
func (i *Instance) Stats() StatsSnapshot { return i.stats.Snapshot() }

// Close implements Executor. It waits for an in-flight batch.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	if err := i.session.Close(); err != nil && !errors.Is(err, device.ErrSessionClosed) {
		return &DeviceError{Model: i.desc.Name(), Stage: "close", Err: err}
	}
	i.logger.Info("Instance closed")
	return nil
}
