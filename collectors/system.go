package collectors

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

const (
	systemCollectorName        = "system"
	systemCollectorDescription = "Host-wide counters (CPU, memory, vmstat, disks)"
)

// SystemCollector fills the system section of a sample: host identity,
// per-CPU and aggregate CPU time, memory gauges, virtual memory event
// counters, and per-device disk counters.
type SystemCollector struct {
	logger *slog.Logger

	// Overridable for testing.
	openProcVmstat func() (io.ReadCloser, error)
}

// NewSystemCollector creates a SystemCollector.
// If logger is nil, a no-op logger is used.
func NewSystemCollector(logger *slog.Logger) *SystemCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SystemCollector{
		logger: logger,
		openProcVmstat: func() (io.ReadCloser, error) {
			return os.Open("/proc/vmstat")
		},
	}
}

// Name returns the collector's unique identifier.
func (c *SystemCollector) Name() string {
	return systemCollectorName
}

// Description returns a human-readable description of what this collector gathers.
func (c *SystemCollector) Description() string {
	return systemCollectorDescription
}

// Collect fills s.System. Each source that fails is logged and left
// absent; the sample is still usable.
func (c *SystemCollector) Collect(ctx context.Context, s *sample.Sample) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		c.logger.Warn("host info unavailable", "error", err)
	} else {
		s.System.Hostname = info.Hostname
		s.System.KernelVersion = info.KernelVersion
		s.System.OSRelease = info.Platform + " " + info.PlatformVersion
	}

	c.collectCPU(ctx, s)
	c.collectMem(ctx, s)
	c.collectVmstat(s)
	c.collectDisks(ctx, s)
	return nil
}

func (c *SystemCollector) collectCPU(ctx context.Context, s *sample.Sample) {
	if totals, err := cpu.TimesWithContext(ctx, false); err != nil {
		c.logger.Warn("aggregate cpu times unavailable", "error", err)
	} else if len(totals) > 0 {
		s.System.TotalCPU = cpuStatFromTimes(totals[0])
	}

	perCPU, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		c.logger.Warn("per-cpu times unavailable", "error", err)
		return
	}
	s.System.CPUs = make(map[uint32]*sample.CPUStat, len(perCPU))
	for _, t := range perCPU {
		idx, ok := cpuIndex(t.CPU)
		if !ok {
			continue
		}
		s.System.CPUs[idx] = cpuStatFromTimes(t)
	}
}

// cpuIndex parses the numeric suffix of names like "cpu0".
func cpuIndex(name string) (uint32, bool) {
	digits := strings.TrimPrefix(name, "cpu")
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// cpuStatFromTimes converts second-resolution CPU times to the
// microsecond counters the rest of the pipeline expects.
func cpuStatFromTimes(t cpu.TimesStat) *sample.CPUStat {
	usec := func(secs float64) *uint64 {
		return sample.Uint64(uint64(secs * float64(time.Second/time.Microsecond)))
	}
	return &sample.CPUStat{
		UserUsec:    usec(t.User),
		NiceUsec:    usec(t.Nice),
		SystemUsec:  usec(t.System),
		IdleUsec:    usec(t.Idle),
		IowaitUsec:  usec(t.Iowait),
		IrqUsec:     usec(t.Irq),
		SoftirqUsec: usec(t.Softirq),
		StolenUsec:  usec(t.Steal),
	}
}

func (c *SystemCollector) collectMem(ctx context.Context, s *sample.Sample) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("memory info unavailable", "error", err)
		return
	}
	s.System.Mem = &sample.MemInfo{
		Total:     sample.Uint64(vm.Total),
		Free:      sample.Uint64(vm.Free),
		Available: sample.Uint64(vm.Available),
		Buffers:   sample.Uint64(vm.Buffers),
		Cached:    sample.Uint64(vm.Cached),
		Active:    sample.Uint64(vm.Active),
		Inactive:  sample.Uint64(vm.Inactive),
		SwapTotal: sample.Uint64(vm.SwapTotal),
		SwapFree:  sample.Uint64(vm.SwapFree),
		Dirty:     sample.Uint64(vm.Dirty),
		Writeback: sample.Uint64(vm.WriteBack),
		Shmem:     sample.Uint64(vm.Shared),
		Slab:      sample.Uint64(vm.Slab),
	}
}

// collectVmstat reads /proc/vmstat directly; the event counters it
// carries have no portable API.
func (c *SystemCollector) collectVmstat(s *sample.Sample) {
	r, err := c.openProcVmstat()
	if err != nil {
		c.logger.Warn("vmstat unavailable", "error", err)
		return
	}
	defer r.Close()

	vm := &sample.VMStat{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "pgpgin":
			vm.PgpginPages = &v
		case "pgpgout":
			vm.PgpgoutPages = &v
		case "pswpin":
			vm.PswpinPages = &v
		case "pswpout":
			vm.PswpoutPages = &v
		case "oom_kill":
			vm.OomKill = &v
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("vmstat read failed", "error", err)
		return
	}
	s.System.VM = vm
}

func (c *SystemCollector) collectDisks(ctx context.Context, s *sample.Sample) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		c.logger.Warn("disk counters unavailable", "error", err)
		return
	}
	if len(counters) == 0 {
		return
	}

	// Filesystem usage is keyed back to devices through the partition
	// table; failures here only cost the capacity gauges.
	usageByDevice := map[string]*disk.UsageStat{}
	fstypeByDevice := map[string]string{}
	if parts, err := disk.PartitionsWithContext(ctx, false); err != nil {
		c.logger.Warn("partition table unavailable", "error", err)
	} else {
		for _, p := range parts {
			dev := strings.TrimPrefix(p.Device, "/dev/")
			fstypeByDevice[dev] = p.Fstype
			if usage, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
				usageByDevice[dev] = usage
			}
		}
	}

	s.System.Disks = make(map[string]*sample.DiskStat, len(counters))
	for name, ioc := range counters {
		st := &sample.DiskStat{
			Name:           name,
			ReadCompleted:  sample.Uint64(ioc.ReadCount),
			ReadMerged:     sample.Uint64(ioc.MergedReadCount),
			ReadSectors:    sample.Uint64(ioc.ReadBytes / 512),
			TimeReadMs:     sample.Uint64(ioc.ReadTime),
			WriteCompleted: sample.Uint64(ioc.WriteCount),
			WriteMerged:    sample.Uint64(ioc.MergedWriteCount),
			WriteSectors:   sample.Uint64(ioc.WriteBytes / 512),
			TimeWriteMs:    sample.Uint64(ioc.WriteTime),
			FilesystemType: fstypeByDevice[name],
		}
		if usage := usageByDevice[name]; usage != nil {
			st.DiskUsagePct = sample.Float64(usage.UsedPercent)
			st.PartitionSize = sample.Uint64(usage.Total)
		}
		s.System.Disks[name] = st
	}
}
