// Package logfile provides the durable, append-only log destination with
// size-based rotation. Rotated logs are compressed with gzip or zstd.
package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Compression selects how rotated logs are stored.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

// rotationTimeFormat is part of every rotated file name and sorts chronologically.
const rotationTimeFormat = "20060102-150405"

var ErrClosed = errors.New("log file is closed")

// ParseCompression validates a compression name. An empty name selects Gzip.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return Gzip, nil
	case None, Gzip, Zstd:
		return c, nil
	default:
		return "", fmt.Errorf("unknown log compression %q (supported: none, gzip, zstd)", s)
	}
}

func (c Compression) extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// Policy controls rotation.
type Policy struct {
	// MaxSizeMB is the size at which the log is rotated. 0 disables rotation.
	MaxSizeMB int
	// Keep is the number of rotated logs retained. 0 keeps all of them.
	Keep        int
	Compression Compression
}

// File is an io.Writer appending to a log file. It is safe for concurrent use.
type File struct {
	mu     sync.Mutex
	path   string
	policy Policy
	f      *os.File
	size   int64
	now    func() time.Time
}

// Open opens (creating if needed) the log file at path for appending.
// The parent directory is created when missing.
func Open(path string, policy Policy) (*File, error) {
	if policy.Compression == "" {
		policy.Compression = Gzip
	}
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	l := &File{path: path, policy: policy, now: time.Now}
	if err := l.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *File) open(mode int) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|mode, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", l.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file %s: %w", l.path, err)
	}
	l.f = f
	l.size = info.Size()
	return nil
}

// Path returns the path of the active log file.
func (l *File) Path() string { return l.path }

func (l *File) maxBytes() int64 {
	return int64(l.policy.MaxSizeMB) * 1024 * 1024
}

// Write appends p, rotating first when p would push the file past the limit.
func (l *File) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return 0, ErrClosed
	}
	var rotateErr error
	if max := l.maxBytes(); max > 0 && l.size > 0 && l.size+int64(len(p)) > max {
		rotateErr = l.rotate()
		if l.f == nil {
			return 0, rotateErr
		}
	}
	n, err := l.f.Write(p)
	l.size += int64(n)
	return n, errors.Join(rotateErr, err)
}

// Rotate archives the current log regardless of its size.
func (l *File) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	return l.rotate()
}

func (l *File) rotate() error {
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("failed to close log file for rotation: %w", err)
	}
	l.f = nil

	archive := l.archiveName()
	var rotateErr error
	if l.policy.Compression == None {
		rotateErr = os.Rename(l.path, archive)
	} else {
		rotateErr = compressFile(l.path, archive, l.policy.Compression)
	}

	// Always reopen, even after a failed rotation, so logging continues.
	// The active log is only emptied once its content is safely archived.
	mode := os.O_TRUNC
	if rotateErr != nil {
		mode = os.O_APPEND
	}
	if err := l.open(mode); err != nil {
		return errors.Join(rotateErr, err)
	}
	if rotateErr != nil {
		return fmt.Errorf("failed to rotate log file: %w", rotateErr)
	}
	return l.prune()
}

func (l *File) archiveName() string {
	base := fmt.Sprintf("%s.%s", l.path, l.now().Format(rotationTimeFormat))
	ext := l.policy.Compression.extension()
	name := base + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// Archives returns the rotated logs belonging to this file, oldest first.
func (l *File) Archives() ([]string, error) {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(l.path) + "."
	var archives []string
	for _, m := range matches {
		stamp := strings.TrimPrefix(filepath.Base(m), prefix)
		if len(stamp) < len(rotationTimeFormat) {
			continue
		}
		if _, err := time.Parse(rotationTimeFormat, stamp[:len(rotationTimeFormat)]); err != nil {
			continue
		}
		archives = append(archives, m)
	}
	sort.Strings(archives)
	return archives, nil
}

func (l *File) prune() error {
	if l.policy.Keep <= 0 {
		return nil
	}
	archives, err := l.Archives()
	if err != nil {
		return err
	}
	var errs []error
	for len(archives) > l.policy.Keep {
		if err := os.Remove(archives[0]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		archives = archives[1:]
	}
	return errors.Join(errs...)
}

// Close closes the active log file.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func compressFile(src, dst string, c Compression) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	var w io.WriteCloser
	switch c {
	case Gzip:
		w = pgzip.NewWriter(out)
	case Zstd:
		zw, zerr := zstd.NewWriter(out)
		if zerr != nil {
			return zerr
		}
		w = zw
	default:
		return fmt.Errorf("unsupported compression %q", c)
	}

	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
