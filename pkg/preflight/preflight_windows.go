//go:build windows

package preflight

import (
	"os"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

// checkWritable creates and removes a probe file. Windows ACLs cannot be
// evaluated from the mode bits.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, "."+buildinfo.BinaryName+"-writetest-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
