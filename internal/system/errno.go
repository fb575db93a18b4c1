package system

import (
	"errors"
	"os/exec"
	"syscall"
)

// Errno extracts the OS error number and its symbolic code from err.
func Errno(err error) (int, string, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno), errnoName(errno), true
	}
	if errors.Is(err, exec.ErrNotFound) {
		return int(syscall.ENOENT), "ENOENT", true
	}
	return 0, "", false
}
