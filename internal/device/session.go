package device

import (
	"fmt"
	"log/slog"
	"sync"
)

// Session owns one driver context for the lifetime of a model instance.
// A Session is not safe for concurrent use; callers serialize access.
type Session struct {
	ctx       Context
	driver    string
	modelPath string
	arch      Arch
	version   SDKVersion
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
}

// SessionOption configures Open.
type SessionOption func(*Session)

// WithArch overrides the detected architecture.
func WithArch(arch Arch) SessionOption {
	return func(s *Session) {
		s.arch = arch
	}
}

// Open initializes a context for modelPath and logs the runtime versions.
// On 64-bit tiers the model's NPU memory footprint is logged as well.
func Open(driver Driver, modelPath string, logger *slog.Logger, opts ...SessionOption) (*Session, error) {
	s := &Session{
		driver:    driver.Name(),
		modelPath: modelPath,
		arch:      DetectArch(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("Loading model into NPU", "driver", s.driver, "path", modelPath, "arch", s.arch)

	ctx, err := driver.Init(modelPath)
	if err != nil {
		return nil, fmt.Errorf("device: init %s: %w", modelPath, err)
	}
	s.ctx = ctx

	if v, err := ctx.QuerySDKVersion(); err != nil {
		s.logger.Warn("Failed to query SDK version", "error", err)
	} else {
		s.version = v
		s.logger.Info("NPU runtime", "api_version", v.API, "driver_version", v.Driver)
	}

	if s.arch.SupportsMemQuery() {
		if mem, err := ctx.QueryMemSize(); err != nil {
			s.logger.Warn("Failed to query NPU memory size", "error", err)
		} else {
			s.logger.Info("NPU memory",
				"total_weight_size", mem.TotalWeight,
				"total_internal_size", mem.TotalInternal)
		}
	}

	return s, nil
}

// Arch returns the tier the session was opened on.
func (s *Session) Arch() Arch {
	return s.arch
}

// SDKVersion returns the versions reported at open time.
func (s *Session) SDKVersion() SDKVersion {
	return s.version
}

// ModelPath returns the model artifact the session was opened with.
func (s *Session) ModelPath() string {
	return s.modelPath
}

// MemSize queries the NPU memory footprint. Tiers without the query
// return ErrUnsupportedQuery.
func (s *Session) MemSize() (MemSize, error) {
	if err := s.check(); err != nil {
		return MemSize{}, err
	}
	if !s.arch.SupportsMemQuery() {
		return MemSize{}, fmt.Errorf("%w: mem size on %s", ErrUnsupportedQuery, s.arch)
	}
	return s.ctx.QueryMemSize()
}

// QueryAttributes reads the input/output counts and every tensor attribute.
// Any failed query fails the whole snapshot.
func (s *Session) QueryAttributes() (*Attributes, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	count, err := s.ctx.QueryIOCount()
	if err != nil {
		return nil, fmt.Errorf("query io count: %w", err)
	}

	attrs := &Attributes{
		IOCount: count,
		Inputs:  make([]TensorAttr, 0, count.Inputs),
		Outputs: make([]TensorAttr, 0, count.Outputs),
	}

	for i := 0; i < count.Inputs; i++ {
		a, err := s.ctx.QueryInputAttr(i)
		if err != nil {
			return nil, fmt.Errorf("query input attr %d: %w", i, err)
		}
		s.logger.Debug("Input tensor attribute", "attr", a)
		attrs.Inputs = append(attrs.Inputs, a)
	}

	for i := 0; i < count.Outputs; i++ {
		a, err := s.ctx.QueryOutputAttr(i)
		if err != nil {
			return nil, fmt.Errorf("query output attr %d: %w", i, err)
		}
		s.logger.Debug("Output tensor attribute", "attr", a)
		attrs.Outputs = append(attrs.Outputs, a)
	}

	return attrs, nil
}

// SetInputs binds inputs for the next Run.
func (s *Session) SetInputs(inputs []Input) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ctx.SetInputs(inputs)
}

// Run executes the model synchronously.
func (s *Session) Run() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ctx.Run()
}

// GetOutputs retrieves outputs into the given descriptors.
func (s *Session) GetOutputs(outputs []Output) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ctx.GetOutputs(outputs)
}

// Close destroys the driver context. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.ctx.Destroy(); err != nil {
		return fmt.Errorf("device: destroy: %w", err)
	}

	s.logger.Info("NPU context released", "path", s.modelPath)
	return nil
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
