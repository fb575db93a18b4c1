//go:build unix

package system

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func signalNum(name string) syscall.Signal {
	return unix.SignalNum(name)
}

func signalName(sig syscall.Signal) string {
	return unix.SignalName(sig)
}

func signalNames() []string {
	var names []string
	for i := 1; i < 65; i++ {
		if name := unix.SignalName(syscall.Signal(i)); name != "" {
			names = append(names, name)
		}
	}
	return names
}
