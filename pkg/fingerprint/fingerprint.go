// Package fingerprint computes content digests of files.
//
// Files are streamed through the hash in fixed-size chunks so memory use does
// not depend on file size. Two files are considered identical iff their
// digests match; size and modification time are never consulted, except as the
// key of the optional digest cache.
package fingerprint

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512"
	BLAKE2b Algorithm = "blake2b" // BLAKE2b-256
)

// DefaultAlgorithm is the 128-bit content hash used when none is configured.
const DefaultAlgorithm = MD5

// ErrUnknownAlgorithm is returned for an algorithm name that is not supported.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

var constructors = map[Algorithm]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
	BLAKE2b: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Algorithms returns the names of all supported algorithms, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for a := range constructors {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// ParseAlgorithm resolves a case-insensitive algorithm name. An empty name
// selects DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(name)
	if _, ok := constructors[a]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnknownAlgorithm, name, strings.Join(Algorithms(), ", "))
	}
	return a, nil
}

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// Fingerprinter computes digests of files on a filesystem.
// It is safe for concurrent use.
type Fingerprinter struct {
	fs      afero.Fs
	algo    Algorithm
	newHash func() hash.Hash
	chunks  *pool.ChunkPool
	cache   *expirable.LRU[cacheKey, []byte]
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithCache memoises digests keyed by path, size and modification time.
// A size <= 0 disables the cache. Entries expire after ttl (0 means never).
func WithCache(size int, ttl time.Duration) Option {
	return func(f *Fingerprinter) {
		if size <= 0 {
			f.cache = nil
			return
		}
		f.cache = expirable.NewLRU[cacheKey, []byte](size, nil, ttl)
	}
}

// WithChunkPool overrides the buffer pool, and thereby the read chunk size.
func WithChunkPool(p *pool.ChunkPool) Option {
	return func(f *Fingerprinter) { f.chunks = p }
}

// New creates a Fingerprinter for algo on fs.
func New(fs afero.Fs, algo Algorithm, opts ...Option) (*Fingerprinter, error) {
	newHash, ok := constructors[algo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	f := &Fingerprinter{
		fs:      fs,
		algo:    algo,
		newHash: newHash,
		chunks:  pool.Default,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Algorithm returns the configured algorithm.
func (f *Fingerprinter) Algorithm() Algorithm { return f.algo }

// Digest returns the digest of the file at path.
// Failures to open or read the file are reported as *syncerr.IOError.
func (f *Fingerprinter) Digest(path string) ([]byte, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, &syncerr.IOError{Op: "fingerprint", Path: path, Err: err}
	}
	defer file.Close()

	var key cacheKey
	if f.cache != nil {
		info, err := file.Stat()
		if err != nil {
			return nil, &syncerr.IOError{Op: "fingerprint", Path: path, Err: err}
		}
		key = cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
		if sum, ok := f.cache.Get(key); ok {
			return bytes.Clone(sum), nil
		}
	}

	sum, err := f.Sum(file)
	if err != nil {
		return nil, &syncerr.IOError{Op: "fingerprint", Path: path, Err: err}
	}
	if f.cache != nil {
		f.cache.Add(key, bytes.Clone(sum))
	}
	return sum, nil
}

// Sum digests everything read from r, one chunk at a time.
func (f *Fingerprinter) Sum(r io.Reader) ([]byte, error) {
	h := f.newHash()
	bufPtr := f.chunks.Get()
	defer f.chunks.Put(bufPtr)
	buf := *bufPtr

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n]) // hash.Hash.Write never returns an error
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}

// Equal reports whether the files at a and b have the same digest.
func (f *Fingerprinter) Equal(a, b string) (bool, error) {
	da, err := f.Digest(a)
	if err != nil {
		return false, err
	}
	db, err := f.Digest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

// cacheLen returns the number of cached digests, 0 when caching is disabled.
func (f *Fingerprinter) cacheLen() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}
