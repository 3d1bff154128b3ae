package device

import (
	"errors"
	"fmt"
)

// Error definitions for the device package.
var (
	ErrDeviceCall        = errors.New("device call failed")
	ErrSessionClosed     = errors.New("device session is closed")
	ErrUnsupportedQuery  = errors.New("query not supported on this device tier")
	ErrDriverNotFound    = errors.New("driver not found in registry")
	ErrAlreadyRegistered = errors.New("driver is already registered in the registry")
)

// StatusError is a negative status returned by a driver call.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device: %s failed (status %d)", e.Op, e.Status)
}

// Unwrap makes every StatusError match ErrDeviceCall.
func (e *StatusError) Unwrap() error {
	return ErrDeviceCall
}

// CheckStatus converts a raw driver status into an error. Negative values
// are failures.
func CheckStatus(op string, status int) error {
	if status < 0 {
		return &StatusError{Op: op, Status: status}
	}
	return nil
}
