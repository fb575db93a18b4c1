//go:build windows

package system

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

// KillTree force-kills pid and its descendants with taskkill. Signals are
// not delivered on this platform, so sig is ignored.
func KillTree(ctx context.Context, pid int, _ syscall.Signal) error {
	if pid <= 0 {
		return ErrNoPID
	}
	out, err := exec.CommandContext(ctx, "taskkill", "/pid", strconv.Itoa(pid), "/T", "/F").CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill %d: %w: %s", pid, err, out)
	}
	return nil
}
