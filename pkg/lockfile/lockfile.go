// Package lockfile keeps two mirror processes from writing into the same replica.
//
// The lock is an advisory OS file lock (flock on unix, LockFileEx on windows)
// held on a file in the lock directory, named after a hash of the absolute
// replica path. The lock never lives inside the replica: every file there that
// has no source counterpart is deleted by the mirror.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// lockDir is a var to allow modification during testing.
var lockDir = os.TempDir

// LockContent is written next to the lock so a contender can say who holds it.
type LockContent struct {
	PID      int64     `json:"pid"`
	Hostname string    `json:"hostname"`
	AppID    string    `json:"appID"`
	Replica  string    `json:"replica"`
	Acquired time.Time `json:"acquired"`
}

// ErrLockActive is returned when another process already mirrors into the replica.
type ErrLockActive struct {
	Path    string
	Holder  *LockContent // nil when the holder's info file is unreadable
	Replica string
}

func (e *ErrLockActive) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("replica '%s' is already locked by another process (lock: %s)", e.Replica, e.Path)
	}
	return fmt.Sprintf("replica '%s' is already locked by PID %d on host '%s' (App: %s) since %s",
		e.Replica, e.Holder.PID, e.Holder.Hostname, e.Holder.AppID, e.Holder.Acquired.Format(time.RFC3339))
}

// Lock is a held replica lock.
type Lock struct {
	flock    *flock.Flock
	infoPath string
}

// PathFor returns the lock file used for replicaRoot.
func PathFor(replicaRoot string) (string, error) {
	abs, err := filepath.Abs(replicaRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve replica path: %w", err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	name := fmt.Sprintf("%s-%s.lock", buildinfo.BinaryName, hex.EncodeToString(sum[:8]))
	return filepath.Join(lockDir(), name), nil
}

// Acquire takes the lock for replicaRoot without waiting.
// It returns (nil, *ErrLockActive) if the lock is already held.
func Acquire(replicaRoot, appID string) (*Lock, error) {
	path, err := PathFor(replicaRoot)
	if err != nil {
		return nil, err
	}

	fl := flock.New(path, flock.SetPermissions(util.UserWritableFilePerms))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to access lock file %s: %w", path, err)
	}
	infoPath := path + ".json"
	if !locked {
		holder, readErr := readLockContent(infoPath)
		if readErr != nil {
			plog.Debug("Could not read lock holder info", "path", infoPath, "error", readErr)
			holder = nil
		}
		return nil, &ErrLockActive{Path: path, Holder: holder, Replica: replicaRoot}
	}

	hostname, _ := os.Hostname()
	abs, _ := filepath.Abs(replicaRoot)
	content := LockContent{
		PID:      int64(os.Getpid()),
		Hostname: hostname,
		AppID:    appID,
		Replica:  abs,
		Acquired: time.Now().UTC(),
	}
	if err := writeLockContent(infoPath, content); err != nil {
		// The lock itself is held; the info file is only diagnostic.
		plog.Warn("Failed to write lock info file", "path", infoPath, "error", err)
	}

	plog.Debug("Lock acquired", "path", path)
	return &Lock{flock: fl, infoPath: infoPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.flock.Path() }

// Release drops the lock. Calling it more than once is a no-op.
// The lock file itself is left in place so a waiting process never locks an unlinked inode.
func (l *Lock) Release() {
	if !l.flock.Locked() {
		return
	}
	if err := os.Remove(l.infoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		plog.Warn("Failed to remove lock info file", "path", l.infoPath, "error", err)
	}
	if err := l.flock.Unlock(); err != nil {
		plog.Warn("Failed to release lock", "path", l.flock.Path(), "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.flock.Path())
}

func writeLockContent(path string, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	return os.WriteFile(path, data, util.UserWritableFilePerms)
}

func readLockContent(path string) (*LockContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("lock info file is corrupt: %w", err)
	}
	return &content, nil
}
