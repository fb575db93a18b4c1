package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Descendants lists every process below pid, breadth first.
func Descendants(ctx context.Context, pid int) ([]int, error) {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("lookup process %d: %w", pid, err)
	}

	var out []int
	seen := map[int32]bool{root.Pid: true}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			// gopsutil reports a leaf as an error; nothing below it.
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			out = append(out, int(child.Pid))
			queue = append(queue, child)
		}
	}
	return out, nil
}

// Alive reports whether pid still refers to a running process.
func Alive(ctx context.Context, pid int) bool {
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !ok {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
