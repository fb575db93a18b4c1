//go:build windows

package system

import (
	"strconv"
	"syscall"
)

func errnoName(errno syscall.Errno) string {
	if errno == syscall.ENOENT {
		return "ENOENT"
	}
	return "ERRNO" + strconv.Itoa(int(errno))
}
