// Package sample defines the raw counter snapshot captured on each
// collection tick. A Sample is immutable once built and deliberately
// sparse: every counter a kernel interface may fail to expose is a
// pointer, and nil means "not captured", never zero. Rate derivation
// over pairs of Samples lives in the model package.
package sample

// Sample is one point-in-time capture of system, process, and cgroup
// counters. Most numeric fields are cumulative counters; a few are
// gauges, noted on their type.
type Sample struct {
	System    SystemSample          `json:"system"`
	Processes map[int32]*ProcSample `json:"processes,omitempty"`
	Cgroup    *CgroupSample         `json:"cgroup,omitempty"`
}

// SystemSample holds host-wide counters and identity strings.
type SystemSample struct {
	Hostname      string `json:"hostname"`
	KernelVersion string `json:"kernel_version,omitempty"`
	OSRelease     string `json:"os_release,omitempty"`

	// TotalCPU aggregates all CPUs; CPUs is keyed by CPU index.
	TotalCPU *CPUStat            `json:"total_cpu,omitempty"`
	CPUs     map[uint32]*CPUStat `json:"cpus,omitempty"`

	Mem   *MemInfo             `json:"mem,omitempty"`
	VM    *VMStat              `json:"vm,omitempty"`
	Disks map[string]*DiskStat `json:"disks,omitempty"`
}

// CPUStat is cumulative time spent in each state, in microseconds.
type CPUStat struct {
	UserUsec    *uint64 `json:"user_usec,omitempty"`
	NiceUsec    *uint64 `json:"nice_usec,omitempty"`
	SystemUsec  *uint64 `json:"system_usec,omitempty"`
	IdleUsec    *uint64 `json:"idle_usec,omitempty"`
	IowaitUsec  *uint64 `json:"iowait_usec,omitempty"`
	IrqUsec     *uint64 `json:"irq_usec,omitempty"`
	SoftirqUsec *uint64 `json:"softirq_usec,omitempty"`
	StolenUsec  *uint64 `json:"stolen_usec,omitempty"`
}

// MemInfo holds memory gauges in bytes.
type MemInfo struct {
	Total     *uint64 `json:"total,omitempty"`
	Free      *uint64 `json:"free,omitempty"`
	Available *uint64 `json:"available,omitempty"`
	Buffers   *uint64 `json:"buffers,omitempty"`
	Cached    *uint64 `json:"cached,omitempty"`
	Active    *uint64 `json:"active,omitempty"`
	Inactive  *uint64 `json:"inactive,omitempty"`
	SwapTotal *uint64 `json:"swap_total,omitempty"`
	SwapFree  *uint64 `json:"swap_free,omitempty"`
	Dirty     *uint64 `json:"dirty,omitempty"`
	Writeback *uint64 `json:"writeback,omitempty"`
	Shmem     *uint64 `json:"shmem,omitempty"`
	Slab      *uint64 `json:"slab,omitempty"`
}

// VMStat holds cumulative virtual memory event counters.
type VMStat struct {
	PgpginPages  *uint64 `json:"pgpgin_pages,omitempty"`
	PgpgoutPages *uint64 `json:"pgpgout_pages,omitempty"`
	PswpinPages  *uint64 `json:"pswpin_pages,omitempty"`
	PswpoutPages *uint64 `json:"pswpout_pages,omitempty"`
	OomKill      *uint64 `json:"oom_kill,omitempty"`
}

// DiskStat holds cumulative per-device I/O counters plus capacity
// gauges. Sector counts use the kernel's fixed 512-byte sectors.
type DiskStat struct {
	Name           string   `json:"name"`
	Major          *uint64  `json:"major,omitempty"`
	Minor          *uint64  `json:"minor,omitempty"`
	ReadCompleted  *uint64  `json:"read_completed,omitempty"`
	ReadMerged     *uint64  `json:"read_merged,omitempty"`
	ReadSectors    *uint64  `json:"read_sectors,omitempty"`
	TimeReadMs     *uint64  `json:"time_read_ms,omitempty"`
	WriteCompleted *uint64  `json:"write_completed,omitempty"`
	WriteMerged    *uint64  `json:"write_merged,omitempty"`
	WriteSectors   *uint64  `json:"write_sectors,omitempty"`
	TimeWriteMs    *uint64  `json:"time_write_ms,omitempty"`
	DiscardSectors *uint64  `json:"discard_sectors,omitempty"`
	DiskUsagePct   *float64 `json:"disk_usage_pct,omitempty"`
	PartitionSize  *uint64  `json:"partition_size,omitempty"`
	FilesystemType string   `json:"filesystem_type,omitempty"`
}

// ProcSample holds per-process counters. Pid and StartTime together
// identify a process across samples: a recycled pid shows a different
// start time, so both are always captured.
type ProcSample struct {
	Pid     int32  `json:"pid"`
	Ppid    *int32 `json:"ppid,omitempty"`
	Comm    string `json:"comm,omitempty"`
	State   string `json:"state,omitempty"`
	Cgroup  string `json:"cgroup,omitempty"`
	Cmdline string `json:"cmdline,omitempty"`
	// StartTime is the process start time as unix milliseconds.
	StartTime *uint64 `json:"start_time,omitempty"`

	UserUsec   *uint64 `json:"user_usec,omitempty"`
	SystemUsec *uint64 `json:"system_usec,omitempty"`
	NumThreads *uint64 `json:"num_threads,omitempty"`

	// RSSBytes and VMSizeBytes are gauges.
	RSSBytes    *uint64 `json:"rss_bytes,omitempty"`
	VMSizeBytes *uint64 `json:"vm_size_bytes,omitempty"`

	MinorFaults *uint64 `json:"minor_faults,omitempty"`
	MajorFaults *uint64 `json:"major_faults,omitempty"`

	IoReadBytes  *uint64 `json:"io_read_bytes,omitempty"`
	IoWriteBytes *uint64 `json:"io_write_bytes,omitempty"`
}

// CgroupSample is one node of the cgroup-v2 hierarchy. Children are
// keyed by directory name; InodeNumber identifies the cgroup across
// samples — a recreated cgroup at the same path gets a new inode.
type CgroupSample struct {
	InodeNumber *uint64 `json:"inode_number,omitempty"`

	CPU      *CgroupCPUStat           `json:"cpu,omitempty"`
	IO       map[string]*CgroupIOStat `json:"io,omitempty"`
	Memory   *CgroupMemStat           `json:"memory,omitempty"`
	Pressure *CgroupPressure          `json:"pressure,omitempty"`

	Children map[string]*CgroupSample `json:"children,omitempty"`
}

// CgroupCPUStat mirrors cpu.stat (cumulative).
type CgroupCPUStat struct {
	UsageUsec     *uint64 `json:"usage_usec,omitempty"`
	UserUsec      *uint64 `json:"user_usec,omitempty"`
	SystemUsec    *uint64 `json:"system_usec,omitempty"`
	NrPeriods     *uint64 `json:"nr_periods,omitempty"`
	NrThrottled   *uint64 `json:"nr_throttled,omitempty"`
	ThrottledUsec *uint64 `json:"throttled_usec,omitempty"`
}

// CgroupIOStat mirrors one io.stat device line (cumulative).
type CgroupIOStat struct {
	Rbytes *uint64 `json:"rbytes,omitempty"`
	Wbytes *uint64 `json:"wbytes,omitempty"`
	Rios   *uint64 `json:"rios,omitempty"`
	Wios   *uint64 `json:"wios,omitempty"`
	Dbytes *uint64 `json:"dbytes,omitempty"`
	Dios   *uint64 `json:"dios,omitempty"`
}

// CgroupMemStat holds memory.current plus selected memory.stat rows.
// Current, Swap, and the byte-sized breakdowns are gauges; the fault
// and workingset rows are cumulative.
type CgroupMemStat struct {
	Current *uint64 `json:"current,omitempty"`
	Swap    *uint64 `json:"swap,omitempty"`

	Anon        *uint64 `json:"anon,omitempty"`
	File        *uint64 `json:"file,omitempty"`
	KernelStack *uint64 `json:"kernel_stack,omitempty"`
	Slab        *uint64 `json:"slab,omitempty"`
	Sock        *uint64 `json:"sock,omitempty"`
	Shmem       *uint64 `json:"shmem,omitempty"`

	Pgfault           *uint64 `json:"pgfault,omitempty"`
	Pgmajfault        *uint64 `json:"pgmajfault,omitempty"`
	WorkingsetRefault *uint64 `json:"workingset_refault,omitempty"`
	Pgscan            *uint64 `json:"pgscan,omitempty"`
	Pgsteal           *uint64 `json:"pgsteal,omitempty"`

	EventsOom     *uint64 `json:"events_oom,omitempty"`
	EventsOomKill *uint64 `json:"events_oom_kill,omitempty"`
}

// CgroupPressure holds PSI avg10 gauges, already percentages.
type CgroupPressure struct {
	CPUSomePct    *float64 `json:"cpu_some_pct,omitempty"`
	IOSomePct     *float64 `json:"io_some_pct,omitempty"`
	IOFullPct     *float64 `json:"io_full_pct,omitempty"`
	MemorySomePct *float64 `json:"memory_some_pct,omitempty"`
	MemoryFullPct *float64 `json:"memory_full_pct,omitempty"`
}

// Uint64 returns a pointer to v. Collectors and tests use it to fill
// optional counter fields.
func Uint64(v uint64) *uint64 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
