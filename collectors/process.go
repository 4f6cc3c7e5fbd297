package collectors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

const (
	processCollectorName        = "process"
	processCollectorDescription = "Per-process counters (CPU, memory, faults, I/O)"
)

// ProcessCollector fills the process table of a sample. Processes that
// exit mid-scan simply drop out of this tick's sample; fields a
// process refuses to expose (permissions, kernel threads) are left
// absent on that row.
type ProcessCollector struct {
	logger *slog.Logger

	// Overridable for testing.
	readCgroupFile func(pid int32) ([]byte, error)
}

// NewProcessCollector creates a ProcessCollector.
// If logger is nil, a no-op logger is used.
func NewProcessCollector(logger *slog.Logger) *ProcessCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessCollector{
		logger: logger,
		readCgroupFile: func(pid int32) ([]byte, error) {
			return os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
		},
	}
}

// Name returns the collector's unique identifier.
func (c *ProcessCollector) Name() string {
	return processCollectorName
}

// Description returns a human-readable description of what this collector gathers.
func (c *ProcessCollector) Description() string {
	return processCollectorDescription
}

// Collect fills s.Processes with one row per visible process.
func (c *ProcessCollector) Collect(ctx context.Context, s *sample.Sample) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("collectors: list processes: %w", err)
	}

	s.Processes = make(map[int32]*sample.ProcSample, len(procs))
	for _, p := range procs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		row := c.collectOne(ctx, p)
		if row != nil {
			s.Processes[row.Pid] = row
		}
	}
	return nil
}

// collectOne reads one process row. A row is dropped entirely only
// when even its existence can no longer be confirmed; otherwise each
// unreadable source leaves its fields absent.
func (c *ProcessCollector) collectOne(ctx context.Context, p *process.Process) *sample.ProcSample {
	row := &sample.ProcSample{Pid: p.Pid}

	if name, err := p.NameWithContext(ctx); err == nil {
		row.Comm = name
	} else if !pidStillExists(ctx, p) {
		return nil
	}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		row.Ppid = sample.Int32(ppid)
	}
	if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
		row.State = statuses[0]
	}
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		row.Cmdline = cmdline
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
		row.StartTime = sample.Uint64(uint64(created))
	}

	if times, err := p.TimesWithContext(ctx); err == nil {
		row.UserUsec = sample.Uint64(uint64(times.User * 1e6))
		row.SystemUsec = sample.Uint64(uint64(times.System * 1e6))
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		row.NumThreads = sample.Uint64(uint64(threads))
	}
	if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		row.RSSBytes = sample.Uint64(memInfo.RSS)
		row.VMSizeBytes = sample.Uint64(memInfo.VMS)
	}
	if faults, err := p.PageFaultsWithContext(ctx); err == nil && faults != nil {
		row.MinorFaults = sample.Uint64(faults.MinorFaults)
		row.MajorFaults = sample.Uint64(faults.MajorFaults)
	}
	if ioc, err := p.IOCountersWithContext(ctx); err == nil && ioc != nil {
		row.IoReadBytes = sample.Uint64(ioc.ReadBytes)
		row.IoWriteBytes = sample.Uint64(ioc.WriteBytes)
	}
	row.Cgroup = c.cgroupPath(p.Pid)
	return row
}

func pidStillExists(ctx context.Context, p *process.Process) bool {
	exists, err := p.IsRunningWithContext(ctx)
	return err == nil && exists
}

// cgroupPath extracts the v2 cgroup path from /proc/<pid>/cgroup. The
// unified hierarchy is the line with an empty controller list
// ("0::/path").
func (c *ProcessCollector) cgroupPath(pid int32) string {
	data, err := c.readCgroupFile(pid)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "0::"); ok {
			return rest
		}
	}
	return ""
}
