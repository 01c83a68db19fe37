package preflight

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

func TestCheckRootsAccessible(t *testing.T) {
	t.Run("Happy Path - Both Exist", func(t *testing.T) {
		if err := CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing source, got: %v", err)
		}
		if err := CheckReplicaAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing replica, got: %v", err)
		}
	})

	t.Run("Error - Source Missing", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope")
		err := CheckSourceAccessible(missing)
		if !syncerr.IsConfigError(err) {
			t.Fatalf("expected a ConfigError, got %v", err)
		}
		want := "Source folder '" + missing + "' does not exist."
		if err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})

	t.Run("Error - Replica Missing", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope")
		err := CheckReplicaAccessible(missing)
		want := "Replica folder '" + missing + "' does not exist."
		if err == nil || err.Error() != want {
			t.Errorf("expected %q, got %v", want, err)
		}
		if _, statErr := os.Stat(missing); !os.IsNotExist(statErr) {
			t.Error("replica must not be created by the check")
		}
	})

	t.Run("Error - Root Is a File", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file.txt")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckSourceAccessible(file)
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected 'not a directory' error, got: %v", err)
		}
	})

	t.Run("Error - Empty Path", func(t *testing.T) {
		if err := CheckReplicaAccessible(""); !syncerr.IsConfigError(err) {
			t.Errorf("expected a ConfigError for an empty path, got %v", err)
		}
	})
}

func TestCheckPathNesting(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")

	testCases := []struct {
		name    string
		source  string
		replica string
		logPath string
		wantErr string
	}{
		{name: "siblings are fine", source: src, replica: dst, logPath: filepath.Join(base, "sync.log")},
		{name: "no log path", source: src, replica: dst},
		{name: "identical roots", source: src, replica: src, wantErr: "nested"},
		{name: "replica inside source", source: src, replica: filepath.Join(src, "mirror"), wantErr: "nested"},
		{name: "source inside replica", source: filepath.Join(dst, "data"), replica: dst, wantErr: "nested"},
		{name: "log inside source", source: src, replica: dst, logPath: filepath.Join(src, "sync.log"), wantErr: "inside the source"},
		{name: "log inside replica", source: src, replica: dst, logPath: filepath.Join(dst, "logs", "sync.log"), wantErr: "inside the replica"},
		{name: "prefix is not nesting", source: src, replica: src + "-copy"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPathNesting(tc.source, tc.replica, tc.logPath)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}
			if !syncerr.IsConfigError(err) {
				t.Fatalf("expected a ConfigError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestCheckReplicaWritable(t *testing.T) {
	t.Run("Happy Path", func(t *testing.T) {
		dir := t.TempDir()
		if err := CheckReplicaWritable(dir); err != nil {
			t.Errorf("expected writable temp dir, got: %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("check must not leave files behind, found %d", len(entries))
		}
	})

	t.Run("Error - Read Only", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced here")
		}
		dir := t.TempDir()
		if err := os.Chmod(dir, 0555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(dir, 0755) })

		err := CheckReplicaWritable(dir)
		if !syncerr.IsConfigError(err) {
			t.Errorf("expected a ConfigError for a read-only replica, got %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := Run(DefaultPlan(), src, dst, ""); err != nil {
		t.Errorf("expected valid roots to pass, got: %v", err)
	}

	missing := filepath.Join(dst, "missing")
	if err := Run(DefaultPlan(), src, missing, ""); err == nil {
		t.Error("expected missing replica to fail")
	}

	if err := Run(&Plan{}, src, missing, ""); err != nil {
		t.Errorf("expected an empty plan to skip every check, got: %v", err)
	}
}
