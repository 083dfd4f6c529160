package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind classifies failures across the aggregation pipeline.
// Source-level unavailability kinds are recovered locally by the
// aggregator (graceful degradation); validation and persistence kinds
// are surfaced to the caller.
type ErrorKind string

const (
	// KindRuntimeUnavailable means the container runtime could not be
	// reached. The aggregator proceeds with system-only data and marks
	// the response degraded.
	KindRuntimeUnavailable ErrorKind = "runtime-unavailable"

	// KindScanUnavailable means the host socket enumeration facility is
	// absent or denied. The aggregator proceeds with container-only
	// data, marked degraded.
	KindScanUnavailable ErrorKind = "scan-unavailable"

	// KindInvalidPort means a hide/unhide request referenced a port
	// outside 1-65535 or a non-integer value. The store is left
	// unchanged.
	KindInvalidPort ErrorKind = "invalid-port"

	// KindPersistence means the hidden-port state could not be durably
	// written. The in-memory mutation is rolled back.
	KindPersistence ErrorKind = "persistence"

	// KindConfig means the service configuration could not be loaded
	// or saved.
	KindConfig ErrorKind = "config"
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	return string(k)
}

// AppError is the error type used across package boundaries. It carries
// a machine-readable kind for dispatch (degrade vs. reject vs. fail)
// and, for batch validation failures, the list of offending ports.
type AppError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message is the human-readable error description.
	Message string

	// InvalidPorts lists the rejected port values for KindInvalidPort
	// batch failures, so the caller can identify the offending input.
	InvalidPorts []int

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if len(e.InvalidPorts) > 0 {
		parts := make([]string, 0, len(e.InvalidPorts))
		for _, p := range e.InvalidPorts {
			parts = append(parts, strconv.Itoa(p))
		}
		msg = fmt.Sprintf("%s (invalid: %s)", msg, strings.Join(parts, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError with the given kind and message.
func NewError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// WrapError creates an AppError that wraps an existing error.
func WrapError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is (or wraps) an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// ExitCode defines the process exit codes for the dockports CLI.
// These codes let scripts and service managers distinguish failure
// modes without parsing error text.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration could not be loaded.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not
	// accessible and the command cannot degrade (e.g. client creation
	// failed outright).
	ExitDockerNotRunning ExitCode = 3

	// ExitServerError indicates the HTTP server failed to start or
	// terminated abnormally.
	ExitServerError ExitCode = 4
)

// ExitCodeFor maps an error to the process exit code the CLI should
// return. AppError kinds map to their dedicated codes; anything else
// is a general error.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindConfig:
			return ExitConfigError
		case KindRuntimeUnavailable:
			return ExitDockerNotRunning
		}
	}
	return ExitGeneralError
}
