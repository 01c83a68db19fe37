package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

func writeFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, content, 0644))
}

func TestDigest_KnownValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/hello.txt", []byte("hello"))

	testCases := []struct {
		algo Algorithm
		want string
	}{
		{MD5, "5d41402abc4b2a76b9719d911017c592"},
		{SHA1, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.algo), func(t *testing.T) {
			fp, err := New(fs, tc.algo)
			require.NoError(t, err)
			sum, err := fp.Digest("/data/hello.txt")
			require.NoError(t, err)
			assert.Equal(t, tc.want, hex.EncodeToString(sum))
		})
	}
}

func TestDigest_DigestLengths(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/f", []byte("content"))

	lengths := map[Algorithm]int{MD5: 16, SHA1: 20, SHA256: 32, SHA512: 64, BLAKE2b: 32}
	for algo, want := range lengths {
		fp, err := New(fs, algo)
		require.NoError(t, err)
		sum, err := fp.Digest("/f")
		require.NoError(t, err)
		assert.Len(t, sum, want, "algorithm %s", algo)
	}
}

func TestDigest_MultiChunkFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Three and a half chunks, so the last read is a short one.
	content := bytes.Repeat([]byte("0123456789abcdef"), (pool.ChunkSize*7/2)/16)
	writeFile(t, fs, "/big.bin", content)

	fp, err := New(fs, MD5)
	require.NoError(t, err)
	sum, err := fp.Digest("/big.bin")
	require.NoError(t, err)

	want := md5.Sum(content)
	assert.Equal(t, want[:], sum)
}

func TestDigest_SmallChunkPool(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte(strings.Repeat("x", 1000))
	writeFile(t, fs, "/f", content)

	fp, err := New(fs, MD5, WithChunkPool(pool.NewChunkPool(7)))
	require.NoError(t, err)
	sum, err := fp.Digest("/f")
	require.NoError(t, err)

	want := md5.Sum(content)
	assert.Equal(t, want[:], sum)
}

func TestDigest_MissingFileIsIOError(t *testing.T) {
	fp, err := New(afero.NewMemMapFs(), MD5)
	require.NoError(t, err)

	_, err = fp.Digest("/missing")
	require.Error(t, err)

	var ioErr *syncerr.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "fingerprint", ioErr.Op)
	assert.Equal(t, "/missing", ioErr.Path)
}

func TestEqual(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/a", []byte("same"))
	writeFile(t, fs, "/b", []byte("same"))
	writeFile(t, fs, "/c", []byte("diff"))

	fp, err := New(fs, SHA256)
	require.NoError(t, err)

	eq, err := fp.Equal("/a", "/b")
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = fp.Equal("/a", "/c")
	require.NoError(t, err)
	assert.False(t, eq)

	_, err = fp.Equal("/a", "/nope")
	assert.True(t, syncerr.IsIOError(err))
}

func TestDigest_Cache(t *testing.T) {
	fs := afero.NewMemMapFs()
	modTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, fs, "/f", []byte("aaaa"))
	require.NoError(t, fs.Chtimes("/f", modTime, modTime))

	cached, err := New(fs, MD5, WithCache(16, time.Hour))
	require.NoError(t, err)
	uncached, err := New(fs, MD5)
	require.NoError(t, err)

	first, err := cached.Digest("/f")
	require.NoError(t, err)
	assert.Equal(t, 1, cached.cacheLen())
	assert.Equal(t, 0, uncached.cacheLen())

	// Same size and mtime: the cache cannot tell the difference.
	writeFile(t, fs, "/f", []byte("bbbb"))
	require.NoError(t, fs.Chtimes("/f", modTime, modTime))

	second, err := cached.Digest("/f")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	fresh, err := uncached.Digest("/f")
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)

	// A new mtime invalidates the entry.
	later := modTime.Add(time.Minute)
	require.NoError(t, fs.Chtimes("/f", later, later))
	third, err := cached.Digest("/f")
	require.NoError(t, err)
	assert.Equal(t, fresh, third)
}

func TestParseAlgorithm(t *testing.T) {
	testCases := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"", MD5, false},
		{"md5", MD5, false},
		{"  SHA256 ", SHA256, false},
		{"Blake2b", BLAKE2b, false},
		{"crc32", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseAlgorithm(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNew_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), Algorithm("rot13"))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestAlgorithms_Sorted(t *testing.T) {
	assert.Equal(t, []string{"blake2b", "md5", "sha1", "sha256", "sha512"}, Algorithms())
}
