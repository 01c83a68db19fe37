// Package syncerr defines the error taxonomy of a mirror run.
//
// A ConfigError is fatal and stops the process before the first cycle.
// An IOError belongs to a single file and is recovered: it is reported and the
// cycle moves on to the next item. A CycleError prevents a whole phase from
// running (e.g. a root vanished); it aborts the current cycle but never the loop.
package syncerr

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid or unusable configuration value.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("invalid %s", e.Field)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IOError reports a filesystem failure for a single relative path.
type IOError struct {
	Op   string // fingerprint, copy, delete, walk
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CycleError reports a failure that prevented a phase from running.
type CycleError struct {
	Phase string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s phase aborted: %v", e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// IsConfigError reports whether any error in err's chain is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsIOError reports whether any error in err's chain is an IOError.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCycleError reports whether any error in err's chain is a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
