package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ekisa-team/rkbackend/internal/backend"
	"github.com/ekisa-team/rkbackend/internal/config"
	"github.com/ekisa-team/rkbackend/internal/config/source"
	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/envvar"
	"github.com/ekisa-team/rkbackend/internal/model"
	"github.com/ekisa-team/rkbackend/internal/xfs"
)

// StatusHook observes model status changes.
type StatusHook func(id string, status model.Status)

// Manager orchestrates the model lifecycle: it validates configurations,
// opens instances on the NPU and tears them down when models leave the
// configuration.
type Manager struct {
	models    *model.Registry
	executors *backend.Registry
	instances map[string][]*backend.Instance
	applied   map[string]config.ModelConfig
	lookup    func(name string) (device.Driver, error)
	opts      []backend.InstanceOption
	hooks     []StatusHook
	logger    *slog.Logger
	mu        sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDriverLookup replaces the process-wide driver registry.
func WithDriverLookup(fn func(name string) (device.Driver, error)) ManagerOption {
	return func(m *Manager) {
		m.lookup = fn
	}
}

// WithInstanceOptions adds options to every instance the manager opens.
func WithInstanceOptions(opts ...backend.InstanceOption) ManagerOption {
	return func(m *Manager) {
		m.opts = append(m.opts, opts...)
	}
}

// WithStatusHook registers a callback for model status changes.
func WithStatusHook(h StatusHook) ManagerOption {
	return func(m *Manager) {
		m.hooks = append(m.hooks, h)
	}
}

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		models:    model.NewRegistry(),
		executors: backend.NewRegistry(),
		instances: make(map[string][]*backend.Instance),
		applied:   make(map[string]config.ModelConfig),
		lookup:    device.Lookup,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Models returns the model registry.
func (m *Manager) Models() *model.Registry {
	return m.models
}

// Instances returns the live instances of a model.
func (m *Manager) Instances(id string) []*backend.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.instances[id])
}

// LoadModelsFromConfig brings the loaded models in line with cfg. Models
// whose configuration did not change are left running; models that are
// no longer configured are unloaded. A model that fails to load is marked
// failed and does not prevent the others from loading.
func (m *Manager) LoadModelsFromConfig(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo := source.NewRepository(resolveModelsPath(cfg))
	if err := repo.Ensure(); err != nil {
		return fmt.Errorf("failed to prepare models directory %s: %w", repo.Root(), err)
	}

	ids := make([]string, 0, len(cfg.Models))
	for id := range cfg.Models {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		mc := cfg.Models[id]
		if prev, ok := m.applied[id]; ok && reflect.DeepEqual(prev, mc) && m.statusOf(id) == model.StatusLoaded {
			m.logger.Debug("Model configuration unchanged", "model_id", id)
			continue
		}

		m.unload(id)
		if err := m.load(id, mc, cfg, repo); err != nil {
			m.logger.Error("Failed to load model", "model_id", id, "error", err)
			errs = append(errs, err)
		}
	}

	// Unload models that left the configuration.
	for _, existing := range m.models.List() {
		if _, ok := cfg.Models[existing.ID]; !ok {
			m.unload(existing.ID)
			m.models.Delete(existing.ID)
			m.logger.Info("Model unloaded successfully", "model_id", existing.ID)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) load(id string, mc config.ModelConfig, cfg *config.Config, repo *source.Repository) error {
	version := mc.ModelVersion()
	driverName := cfg.DriverName(mc)
	entry := model.NewModel(id, version, repo.ArtifactPath(id, version), driverName, nil)
	m.models.Set(entry)
	m.setStatus(entry, model.StatusLoading)

	fail := func(err error) error {
		entry.SetError(err)
		m.notify(id, model.StatusFailed)
		return err
	}

	doc, err := m.document(id, mc, repo)
	if err != nil {
		return fail(err)
	}

	desc, err := model.Validate(id, doc, m.logger)
	if err != nil {
		return fail(err)
	}
	entry.Descriptor = desc

	path, err := repo.Locate(id, version)
	if err != nil {
		return fail(err)
	}

	driver, err := m.lookup(driverName)
	if err != nil {
		return fail(err)
	}

	opts := slices.Clone(m.opts)
	if cfg.Backend.MaxPoolBytes > 0 {
		opts = append(opts, backend.WithPlanOptions(backend.WithMaxBytes(cfg.Backend.MaxPoolBytes)))
	}

	instances := make([]*backend.Instance, 0, mc.InstanceCount())
	for n, count := 0, mc.InstanceCount(); n < count; n++ {
		inst, err := backend.NewInstance(fmt.Sprintf("%s#%d", id, n), desc, driver, path, m.logger, opts...)
		if err == nil {
			err = m.executors.Register(inst)
			if err != nil {
				_ = inst.Close()
			}
		}
		if err != nil {
			for _, opened := range instances {
				_ = m.executors.Remove(opened.Name())
			}
			return fail(err)
		}
		instances = append(instances, inst)
	}

	m.instances[id] = instances
	m.applied[id] = mc
	m.setStatus(entry, model.StatusLoaded)

	if err := desc.Finalize(entry); err != nil {
		return fail(err)
	}
	shape, _ := desc.TensorShape()

	m.logger.Info("Model loaded",
		"model_id", id,
		"version", version,
		"driver", driverName,
		"instances", len(instances),
		"input_shape", shape.String())

	return nil
}

// document returns the model configuration document for id.
func (m *Manager) document(id string, mc config.ModelConfig, repo *source.Repository) (*structpb.Struct, error) {
	if len(mc.Config) > 0 {
		return model.ConfigFromMap(mc.Config)
	}
	if mc.ConfigFile == "" {
		return nil, &model.ConfigError{Model: id, Err: errors.New("no model configuration")}
	}
	data, err := repo.ReadConfigFile(id, mc.ConfigFile)
	if err != nil {
		return nil, &model.ConfigError{Model: id, Field: "config_file", Err: err}
	}
	return model.ParseConfigJSON(data)
}

// Unload closes every instance of a model and removes it.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.models.Get(id); err != nil {
		return err
	}
	m.unload(id)
	m.models.Delete(id)
	return nil
}

// unload closes the instances of id. Callers hold m.mu.
func (m *Manager) unload(id string) {
	entry, err := m.models.Get(id)
	if err != nil {
		return
	}
	if len(m.instances[id]) > 0 {
		m.setStatus(entry, model.StatusUnloading)
	}

	for _, inst := range m.instances[id] {
		if err := m.executors.Remove(inst.Name()); err != nil {
			m.logger.Warn("Failed to close instance", "instance", inst.Name(), "error", err)
		}
	}
	delete(m.instances, id)
	delete(m.applied, id)
	m.setStatus(entry, model.StatusUnloaded)
}

// Close unloads every model.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.models.List() {
		if len(m.instances[entry.ID]) > 0 {
			m.setStatus(entry, model.StatusUnloading)
		}
	}
	err := m.executors.Close()
	for _, entry := range m.models.List() {
		delete(m.instances, entry.ID)
		delete(m.applied, entry.ID)
		m.setStatus(entry, model.StatusUnloaded)
	}
	return err
}

func (m *Manager) statusOf(id string) model.Status {
	entry, err := m.models.Get(id)
	if err != nil {
		return model.StatusUnloaded
	}
	return entry.Status()
}

func (m *Manager) setStatus(entry *model.Model, status model.Status) {
	entry.SetStatus(status)
	m.notify(entry.ID, status)
}

func (m *Manager) notify(id string, status model.Status) {
	for _, h := range m.hooks {
		h(id, status)
	}
}

// resolveModelsPath returns the path to the models directory.
// Precedence:
// 1. RKBACKEND_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func resolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.RKBackendModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
