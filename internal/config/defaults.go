package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// DefaultDriver is the NPU driver used when none is configured.
	DefaultDriver = "rknn"

	// DefaultModelFilename is the compiled model file inside a version
	// directory.
	DefaultModelFilename = "model.rknn"

	defaultHTTPPort = 8000
	defaultGRPCPort = 8001
)

// DefaultHTTPPort returns the default HTTP port.
func DefaultHTTPPort() int {
	return defaultHTTPPort
}

// DefaultGRPCPort returns the default gRPC port.
func DefaultGRPCPort() int {
	return defaultGRPCPort
}

// DefaultConfigPath returns the default path for the rkbackend config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "rkbackend", "config")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "rkbackend")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "rkbackend")
		}
		return filepath.Join(home, ".config", "rkbackend")
	}
}

// DefaultModelsPath returns the default path for the model repository.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "rkbackend", "models")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "rkbackend", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "rkbackend", "models")
		}
		return filepath.Join(home, ".local", "share", "rkbackend", "models")
	}
}
