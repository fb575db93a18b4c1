//go:build unix

package system

import (
	"os/exec"
	"syscall"
)

func setProcAttr(cmd *exec.Cmd, detached bool) {
	if detached {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}
