//go:build !windows

package mount

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// crossesDevice reports whether path and its parent live on different
// devices, i.e. the path still looks like an active mount point.
func crossesDevice(path string) (bool, error) {
	var st, parentSt unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	parent := filepath.Dir(path)
	if err := unix.Stat(parent, &parentSt); err != nil {
		return false, err
	}
	return st.Dev != parentSt.Dev || path == parent, nil
}
