package syncerr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		isCfg   bool
		isIO    bool
		isCycle bool
	}{
		{
			name:  "config error",
			err:   NewConfigError("source", "Source folder '%s' does not exist.", "/nope"),
			isCfg: true,
		},
		{
			name: "wrapped io error",
			err:  fmt.Errorf("phase: %w", &IOError{Op: "copy", Path: "a.txt", Err: os.ErrPermission}),
			isIO: true,
		},
		{
			name:    "cycle error wrapping io error",
			err:     &CycleError{Phase: "copy", Err: &IOError{Op: "walk", Path: ".", Err: os.ErrNotExist}},
			isIO:    true,
			isCycle: true,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.isCfg, IsConfigError(tc.err))
			assert.Equal(t, tc.isIO, IsIOError(tc.err))
			assert.Equal(t, tc.isCycle, IsCycleError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Run("config error uses message verbatim", func(t *testing.T) {
		err := NewConfigError("source", "Source folder '%s' does not exist.", "src")
		assert.Equal(t, "Source folder 'src' does not exist.", err.Error())
	})

	t.Run("config error without message names field", func(t *testing.T) {
		err := &ConfigError{Field: "interval", Err: errors.New("must be positive")}
		assert.Equal(t, "invalid interval: must be positive", err.Error())
	})

	t.Run("io error unwraps", func(t *testing.T) {
		err := &IOError{Op: "delete", Path: "old.txt", Err: os.ErrNotExist}
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Equal(t, "delete old.txt: file does not exist", err.Error())
	})

	t.Run("cycle error unwraps", func(t *testing.T) {
		err := &CycleError{Phase: "delete", Err: os.ErrNotExist}
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Contains(t, err.Error(), "delete phase aborted")
	})
}
