package model

import (
	"errors"
	"fmt"
)

// Error definitions for the model package.
var (
	ErrNotFound       = errors.New("model not found in registry")
	ErrNotReady       = errors.New("model is not ready")
	ErrOutputNotFound = errors.New("output not declared by model")
	ErrInvalidConfig  = errors.New("invalid model configuration")
)

// ConfigError reports a malformed or unsupported model configuration.
// It is fatal at load time.
type ConfigError struct {
	Model string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("model %q: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("model %q: %s: %v", e.Model, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErrorf(model, field, format string, args ...any) *ConfigError {
	return &ConfigError{Model: model, Field: field, Err: fmt.Errorf(format, args...)}
}
