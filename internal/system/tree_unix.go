//go:build unix

package system

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// KillTree signals every descendant of pid, then its process group,
// falling back to pid itself when it does not lead a group.
func KillTree(ctx context.Context, pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrNoPID
	}
	children, _ := Descendants(ctx, pid)
	for _, child := range children {
		_ = unix.Kill(child, sig)
	}
	if err := unix.Kill(-pid, sig); err == nil {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
