package config

// Config holds the main configuration for the application.
type Config struct {
	Version string                 `json:"version"           yaml:"version"`
	Storage StorageConfig          `json:"storage,omitempty" yaml:"storage,omitempty"`
	Server  ServerConfig           `json:"server,omitempty"  yaml:"server,omitempty"`
	Backend BackendConfig          `json:"backend,omitempty" yaml:"backend,omitempty"`
	Models  map[string]ModelConfig `json:"models"            yaml:"models"`
}

// StorageConfig holds the location of the model repository.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// ServerConfig holds the listen ports of the HTTP and gRPC surfaces.
type ServerConfig struct {
	HTTPPort int `json:"http_port,omitempty" yaml:"http_port,omitempty"`
	GRPCPort int `json:"grpc_port,omitempty" yaml:"grpc_port,omitempty"`
}

// BackendConfig holds defaults shared by every model.
type BackendConfig struct {
	Driver       string `json:"driver,omitempty"         yaml:"driver,omitempty"`
	MaxPoolBytes int64  `json:"max_pool_bytes,omitempty" yaml:"max_pool_bytes,omitempty"`
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	// Config is the inline model configuration document (input, output,
	// max_batch_size).
	Config map[string]any `json:"config,omitempty"      yaml:"config,omitempty"`

	// ConfigFile points at a JSON model configuration document, relative
	// to the model directory. It is used when Config is empty.
	ConfigFile string   `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Driver     string   `json:"driver,omitempty"      yaml:"driver,omitempty"`
	Tags       []string `json:"tags,omitempty"        yaml:"tags,omitempty"`
	Version    int      `json:"version,omitempty"     yaml:"version,omitempty"`
	Instances  int      `json:"instances,omitempty"   yaml:"instances,omitempty"`
}

// DriverName returns the driver for m, falling back to the backend default.
func (c *Config) DriverName(m ModelConfig) string {
	if m.Driver != "" {
		return m.Driver
	}
	if c.Backend.Driver != "" {
		return c.Backend.Driver
	}
	return DefaultDriver
}

// ModelVersion returns the configured version, or 1.
func (m ModelConfig) ModelVersion() int {
	return max(m.Version, 1)
}

// InstanceCount returns the configured instance count, or 1.
func (m ModelConfig) InstanceCount() int {
	return max(m.Instances, 1)
}
