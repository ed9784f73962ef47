// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout is returned by ReadLine when no complete line arrived
	// within the configured timeout. It is an expected outcome, not a fault.
	ErrReadTimeout = errors.New("read timeout")

	// ErrSessionClosed is returned by any I/O on a session that was closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrLineTooLong is wrapped in a ReadError when the device sends more
	// than maxLineLength bytes without a terminator.
	ErrLineTooLong = errors.New("line too long")

	ErrShortWrite = errors.New("short write")
	ErrNoDialer   = errors.New("no dialer configured")
	ErrNilPort    = errors.New("dialer returned no port")

	ErrDeviceNotFound   = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceInUse      = errors.New("device in use")
)

// ConnectError reports that the link could not be established
type ConnectError struct {
	Port string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a failed or partial line write
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write line: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a transport fault while waiting for a line
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read line: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ConfigErrorKind classifies a rejected session configuration
type ConfigErrorKind int

const (
	MissingField ConfigErrorKind = iota + 1
	InvalidValue
)

func (k ConfigErrorKind) String() string {
	switch k {
	case MissingField:
		return "MissingField"
	case InvalidValue:
		return "InvalidValue"
	default:
		return fmt.Sprintf("ConfigErrorKind(%d)", int(k))
	}
}

// ConfigError reports a missing or invalid configuration value
type ConfigError struct {
	Kind  ConfigErrorKind
	Field string
	Value any
}

func (e *ConfigError) Error() string {
	if e.Kind == MissingField {
		return fmt.Sprintf("missing required config field %s", e.Field)
	}
	return fmt.Sprintf("invalid value for config field %s: %v", e.Field, e.Value)
}
