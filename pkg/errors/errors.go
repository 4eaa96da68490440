// Package errors provides custom error types for the change detection
// system. These errors enable programmatic error checking and keep the
// distinction between recoverable record-level failures and fatal run-level
// failures explicit.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's chain matches target.
// It's an alias for the standard library errors.Is for convenience.
var Is = errors.Is

// Common sentinel errors for the change detection system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedGeometry indicates an input geometry unusable for matching
	ErrMalformedGeometry = errors.New("malformed geometry")

	// ErrSourceUnavailable indicates the external authority fetch failed
	ErrSourceUnavailable = errors.New("source unavailable")
)

// MalformedGeometryError reports an input record whose geometry is absent,
// empty, or not reducible to the expected dimensionality. The record is
// excluded from matching and reported as skipped; the run continues.
type MalformedGeometryError struct {
	RecordID string
	Reason   string
}

// Error implements the error interface
func (e *MalformedGeometryError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("malformed geometry for record %s: %s", e.RecordID, e.Reason)
	}
	return fmt.Sprintf("malformed geometry: %s", e.Reason)
}

// Is implements errors.Is support
func (e *MalformedGeometryError) Is(target error) bool {
	return target == ErrMalformedGeometry
}

// NewMalformedGeometryError creates a new MalformedGeometryError
func NewMalformedGeometryError(recordID, reason string) *MalformedGeometryError {
	return &MalformedGeometryError{RecordID: recordID, Reason: reason}
}

// SourceUnavailableError reports a failed fetch from an external authority.
// It is fatal to the run: a partial source set would misclassify every
// missing record as removed.
type SourceUnavailableError struct {
	Authority  string
	Endpoint   string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *SourceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s unavailable (status %d): %v", e.Authority, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s unavailable: %v", e.Authority, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// NewSourceUnavailableError creates a new SourceUnavailableError
func NewSourceUnavailableError(authority, endpoint string, statusCode int, err error) *SourceUnavailableError {
	return &SourceUnavailableError{
		Authority:  authority,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Err:        err,
	}
}

// ConfigError represents a configuration error detected before any matching
// begins (unknown comparison field, non-positive threshold or tolerance).
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformedGeometry checks if an error is a malformed geometry error
func IsMalformedGeometry(err error) bool {
	return errors.Is(err, ErrMalformedGeometry)
}

// IsSourceUnavailable checks if an error is a source unavailable error
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}
