// Package preflight validates the mirror roots before the first cycle.
// Every failure is a *syncerr.ConfigError: the process reports it and exits
// without entering the loop. None of the checks create or modify the roots.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Run performs the checks enabled in p. logPath may be empty.
func Run(p *Plan, source, replica, logPath string) error {
	if p.SourceAccessible {
		if err := CheckSourceAccessible(source); err != nil {
			return err
		}
	}
	if p.ReplicaAccessible {
		if err := CheckReplicaAccessible(replica); err != nil {
			return err
		}
	}
	if p.PathNesting {
		if err := CheckPathNesting(source, replica, logPath); err != nil {
			return err
		}
	}
	if p.ReplicaWritable {
		if err := CheckReplicaWritable(replica); err != nil {
			return err
		}
	}
	return nil
}

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(source string) error {
	return checkRoot("source", "Source", source)
}

// CheckReplicaAccessible validates that the replica path exists and is a directory.
// The replica is never created on the user's behalf.
func CheckReplicaAccessible(replica string) error {
	return checkRoot("replica", "Replica", replica)
}

func checkRoot(field, label, path string) error {
	if path == "" {
		return syncerr.NewConfigError(field, "%s folder is not set.", label)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return syncerr.NewConfigError(field, "%s folder '%s' does not exist.", label, path)
		}
		return &syncerr.ConfigError{Field: field, Msg: fmt.Sprintf("%s folder '%s' is not accessible", label, path), Err: err}
	}
	if !info.IsDir() {
		return syncerr.NewConfigError(field, "%s folder '%s' is not a directory.", label, path)
	}
	return nil
}

// CheckPathNesting rejects identical or nested roots, and a log file placed inside either root.
// A replica inside the source would be mirrored into itself; a source inside the replica would be deleted.
func CheckPathNesting(source, replica, logPath string) error {
	absSource, err := filepath.Abs(source)
	if err != nil {
		return &syncerr.ConfigError{Field: "source", Err: err}
	}
	absReplica, err := filepath.Abs(replica)
	if err != nil {
		return &syncerr.ConfigError{Field: "replica", Err: err}
	}

	if util.IsWithin(absSource, absReplica) || util.IsWithin(absReplica, absSource) {
		return syncerr.NewConfigError("replica", "Source '%s' and replica '%s' must not be the same folder or nested inside each other.", source, replica)
	}

	if logPath == "" {
		return nil
	}
	absLog, err := filepath.Abs(logPath)
	if err != nil {
		return &syncerr.ConfigError{Field: "log.path", Err: err}
	}
	if util.IsWithin(absSource, absLog) {
		return syncerr.NewConfigError("log.path", "Log file '%s' must not be inside the source folder.", logPath)
	}
	if util.IsWithin(absReplica, absLog) {
		return syncerr.NewConfigError("log.path", "Log file '%s' must not be inside the replica folder.", logPath)
	}
	return nil
}

// CheckReplicaWritable verifies the current user may create files in the replica.
func CheckReplicaWritable(replica string) error {
	if err := checkWritable(replica); err != nil {
		return &syncerr.ConfigError{Field: "replica", Msg: fmt.Sprintf("Replica folder '%s' is not writable", replica), Err: err}
	}
	return nil
}
