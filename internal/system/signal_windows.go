//go:build windows

package system

import "syscall"

var windowsSignals = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGKILL": syscall.SIGKILL,
	"SIGTERM": syscall.SIGTERM,
}

func signalNum(name string) syscall.Signal {
	return windowsSignals[name]
}

func signalName(sig syscall.Signal) string {
	for name, s := range windowsSignals {
		if s == sig {
			return name
		}
	}
	return ""
}

func signalNames() []string {
	names := make([]string, 0, len(windowsSignals))
	for name := range windowsSignals {
		names = append(names, name)
	}
	return names
}
