package system

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcInfo is a sample of one process.
type ProcInfo struct {
	Pid        int
	PPid       int
	Name       string
	Args       []string
	CPU        float64
	MemPercent float32
	RSS        uint64
}

// TreeStats samples a process and everything below it.
type TreeStats struct {
	Procs    []ProcInfo
	Warnings []string
}

// RSS sums the resident memory of the tree.
func (s TreeStats) RSS() uint64 {
	var total uint64
	for _, p := range s.Procs {
		total += p.RSS
	}
	return total
}

// Snapshot samples pid and its descendants, root first. Fields that cannot
// be read stay zero and are reported in Warnings; only a missing root is
// an error.
func Snapshot(ctx context.Context, pid int) (TreeStats, error) {
	if err := ctx.Err(); err != nil {
		return TreeStats{}, err
	}
	children, err := Descendants(ctx, pid)
	if err != nil {
		return TreeStats{}, err
	}

	var stats TreeStats
	for _, id := range append([]int{pid}, children...) {
		p, err := process.NewProcessWithContext(ctx, int32(id))
		if err != nil {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("pid %d: %v", id, err))
			continue
		}
		stats.Procs = append(stats.Procs, sample(ctx, p, &stats))
	}
	return stats, nil
}

func sample(ctx context.Context, p *process.Process, stats *TreeStats) ProcInfo {
	info := ProcInfo{Pid: int(p.Pid)}
	warn := func(what string, err error) {
		stats.Warnings = append(stats.Warnings, fmt.Sprintf("pid %d %s: %v", p.Pid, what, err))
	}

	if ppid, err := p.PpidWithContext(ctx); err != nil {
		warn("ppid", err)
	} else {
		info.PPid = int(ppid)
	}
	if name, err := p.NameWithContext(ctx); err != nil {
		warn("name", err)
	} else {
		info.Name = name
	}
	if args, err := p.CmdlineSliceWithContext(ctx); err == nil {
		info.Args = args
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err != nil {
		warn("cpu", err)
	} else {
		info.CPU = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err != nil {
		warn("memory", err)
	} else if mem != nil {
		info.RSS = mem.RSS
	}
	if pct, err := p.MemoryPercentWithContext(ctx); err == nil {
		info.MemPercent = pct
	}
	return info
}

// FormatTree renders the samples as a ps-like table.
func FormatTree(stats TreeStats) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%-7s %-7s %5s %5s %8s  %s\n", "PID", "PPID", "%CPU", "%MEM", "RSS", "COMMAND")
	for _, p := range stats.Procs {
		cmd := p.Name
		if len(p.Args) > 0 {
			cmd = strings.Join(p.Args, " ")
		}
		fmt.Fprintf(&buf, "%-7d %-7d %5.1f %5.1f %8s  %s\n", p.Pid, p.PPid, p.CPU, p.MemPercent, human(p.RSS), cmd)
	}
	if len(stats.Warnings) > 0 {
		buf.WriteString("\nwarnings:\n")
		for _, w := range stats.Warnings {
			fmt.Fprintf(&buf, "  %s\n", w)
		}
	}
	return buf.String()
}

func human(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
		if exp >= len("KMGTPE")-1 {
			break
		}
	}
	return fmt.Sprintf("%.1f%cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
