package cmd

import (
	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

// LoggedError marks an error that has already been reported through plog.
type LoggedError struct {
	Err error
}

func (e *LoggedError) Error() string { return e.Err.Error() }
func (e *LoggedError) Unwrap() error { return e.Err }

// ReportError logs err. A ConfigError is printed as its own message so the
// user sees e.g. "Source folder 'x' does not exist." verbatim.
func ReportError(err error) {
	if syncerr.IsConfigError(err) {
		plog.Error(err.Error())
		return
	}
	plog.Error(buildinfo.Name+" exited with error", "error", err)
}
