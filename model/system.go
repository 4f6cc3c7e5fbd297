package model

import (
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

const sectorSize = 512

// SystemModel holds host-wide derived metrics. CPUs and Disks follow
// the keyed-matching rule: an entry is diffed against the previous
// sample only when the same key (CPU index, device name) existed
// there, otherwise it appears with gauges only.
type SystemModel struct {
	Hostname      string `json:"hostname"`
	KernelVersion string `json:"kernel_version,omitempty"`
	OSRelease     string `json:"os_release,omitempty"`

	TotalCPU *CPUModel            `json:"total_cpu,omitempty"`
	CPUs     map[uint32]*CPUModel `json:"cpus,omitempty"`

	Mem   *MemoryModel          `json:"mem,omitempty"`
	VM    *VMModel              `json:"vm,omitempty"`
	Disks map[string]*DiskModel `json:"disks,omitempty"`
}

// CPUModel holds per-state CPU shares as percentages of the total time
// the CPU accounted for between the two samples.
type CPUModel struct {
	UsagePct   *float64 `json:"usage_pct,omitempty"`
	UserPct    *float64 `json:"user_pct,omitempty"`
	NicePct    *float64 `json:"nice_pct,omitempty"`
	SystemPct  *float64 `json:"system_pct,omitempty"`
	IdlePct    *float64 `json:"idle_pct,omitempty"`
	IowaitPct  *float64 `json:"iowait_pct,omitempty"`
	IrqPct     *float64 `json:"irq_pct,omitempty"`
	SoftirqPct *float64 `json:"softirq_pct,omitempty"`
	StolenPct  *float64 `json:"stolen_pct,omitempty"`
}

// MemoryModel copies memory gauges; they need no history.
type MemoryModel struct {
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

// VMModel holds virtual memory event rates. Page in/out rates are in
// pages per second.
type VMModel struct {
	PgpginPerSec  *float64 `json:"pgpgin_per_sec,omitempty"`
	PgpgoutPerSec *float64 `json:"pgpgout_per_sec,omitempty"`
	PswpinPerSec  *float64 `json:"pswpin_per_sec,omitempty"`
	PswpoutPerSec *float64 `json:"pswpout_per_sec,omitempty"`
	OomKillPerSec *float64 `json:"oom_kill_per_sec,omitempty"`
}

// DiskModel holds per-device throughput rates and capacity gauges.
type DiskModel struct {
	Name string `json:"name"`

	ReadBytesPerSec    *float64 `json:"read_bytes_per_sec,omitempty"`
	WriteBytesPerSec   *float64 `json:"write_bytes_per_sec,omitempty"`
	DiscardBytesPerSec *float64 `json:"discard_bytes_per_sec,omitempty"`
	TotalBytesPerSec   *float64 `json:"total_bytes_per_sec,omitempty"`
	ReadsPerSec        *float64 `json:"reads_per_sec,omitempty"`
	WritesPerSec       *float64 `json:"writes_per_sec,omitempty"`

	DiskUsagePct   *float64 `json:"disk_usage_pct,omitempty"`
	PartitionSize  *uint64  `json:"partition_size,omitempty"`
	FilesystemType string   `json:"filesystem_type,omitempty"`
}

func newSystemModel(cur, prev *sample.SystemSample, elapsed time.Duration) SystemModel {
	m := SystemModel{
		Hostname:      cur.Hostname,
		KernelVersion: cur.KernelVersion,
		OSRelease:     cur.OSRelease,
	}

	var prevTotal *sample.CPUStat
	if prev != nil {
		prevTotal = prev.TotalCPU
	}
	if cur.TotalCPU != nil {
		m.TotalCPU = newCPUModel(cur.TotalCPU, prevTotal, elapsed)
	}
	if len(cur.CPUs) > 0 {
		m.CPUs = make(map[uint32]*CPUModel, len(cur.CPUs))
		for idx, stat := range cur.CPUs {
			var prevStat *sample.CPUStat
			if prev != nil {
				prevStat = prev.CPUs[idx]
			}
			m.CPUs[idx] = newCPUModel(stat, prevStat, elapsed)
		}
	}

	if cur.Mem != nil {
		m.Mem = newMemoryModel(cur.Mem)
	}
	if cur.VM != nil {
		var prevVM *sample.VMStat
		if prev != nil {
			prevVM = prev.VM
		}
		m.VM = newVMModel(cur.VM, prevVM, elapsed)
	}
	if len(cur.Disks) > 0 {
		m.Disks = make(map[string]*DiskModel, len(cur.Disks))
		for name, stat := range cur.Disks {
			var prevStat *sample.DiskStat
			if prev != nil {
				prevStat = prev.Disks[name]
			}
			m.Disks[name] = newDiskModel(stat, prevStat, elapsed)
		}
	}
	return m
}

// newCPUModel derives per-state percentages against the total time
// the CPU accounted for across all its states, so the states of one
// CPU always sum to 100 regardless of clock skew against wall time.
// States with missing or reset counters stay absent and are excluded
// from the total.
func newCPUModel(cur, prev *sample.CPUStat, elapsed time.Duration) *CPUModel {
	if prev == nil || elapsed <= 0 {
		return &CPUModel{}
	}

	deltas := []*uint64{
		counterDelta(cur.UserUsec, prev.UserUsec),
		counterDelta(cur.NiceUsec, prev.NiceUsec),
		counterDelta(cur.SystemUsec, prev.SystemUsec),
		counterDelta(cur.IdleUsec, prev.IdleUsec),
		counterDelta(cur.IowaitUsec, prev.IowaitUsec),
		counterDelta(cur.IrqUsec, prev.IrqUsec),
		counterDelta(cur.SoftirqUsec, prev.SoftirqUsec),
		counterDelta(cur.StolenUsec, prev.StolenUsec),
	}
	m := &CPUModel{}
	dsts := []**float64{
		&m.UserPct, &m.NicePct, &m.SystemPct, &m.IdlePct,
		&m.IowaitPct, &m.IrqPct, &m.SoftirqPct, &m.StolenPct,
	}

	var total uint64
	for _, d := range deltas {
		if d != nil {
			total += *d
		}
	}
	if total == 0 {
		return m
	}
	for i, d := range deltas {
		if d == nil {
			continue
		}
		pct := float64(*d) / float64(total) * 100
		*dsts[i] = &pct
	}
	if m.IdlePct != nil {
		usage := 100 - *m.IdlePct
		m.UsagePct = &usage
	}
	return m
}

func newMemoryModel(cur *sample.MemInfo) *MemoryModel {
	return &MemoryModel{
		Total:     gaugeU64(cur.Total),
		Free:      gaugeU64(cur.Free),
		Available: gaugeU64(cur.Available),
		Buffers:   gaugeU64(cur.Buffers),
		Cached:    gaugeU64(cur.Cached),
		Active:    gaugeU64(cur.Active),
		Inactive:  gaugeU64(cur.Inactive),
		SwapTotal: gaugeU64(cur.SwapTotal),
		SwapFree:  gaugeU64(cur.SwapFree),
		Dirty:     gaugeU64(cur.Dirty),
		Writeback: gaugeU64(cur.Writeback),
		Shmem:     gaugeU64(cur.Shmem),
		Slab:      gaugeU64(cur.Slab),
	}
}

func newVMModel(cur, prev *sample.VMStat, elapsed time.Duration) *VMModel {
	if prev == nil {
		prev = &sample.VMStat{}
	}
	return &VMModel{
		PgpginPerSec:  counterRate(cur.PgpginPages, prev.PgpginPages, elapsed),
		PgpgoutPerSec: counterRate(cur.PgpgoutPages, prev.PgpgoutPages, elapsed),
		PswpinPerSec:  counterRate(cur.PswpinPages, prev.PswpinPages, elapsed),
		PswpoutPerSec: counterRate(cur.PswpoutPages, prev.PswpoutPages, elapsed),
		OomKillPerSec: counterRate(cur.OomKill, prev.OomKill, elapsed),
	}
}

func newDiskModel(cur, prev *sample.DiskStat, elapsed time.Duration) *DiskModel {
	if prev == nil {
		prev = &sample.DiskStat{}
	}
	m := &DiskModel{
		Name:           cur.Name,
		DiskUsagePct:   gaugeF64(cur.DiskUsagePct),
		PartitionSize:  gaugeU64(cur.PartitionSize),
		FilesystemType: cur.FilesystemType,
		ReadsPerSec:    counterRate(cur.ReadCompleted, prev.ReadCompleted, elapsed),
		WritesPerSec:   counterRate(cur.WriteCompleted, prev.WriteCompleted, elapsed),
	}
	m.ReadBytesPerSec = sectorRate(cur.ReadSectors, prev.ReadSectors, elapsed)
	m.WriteBytesPerSec = sectorRate(cur.WriteSectors, prev.WriteSectors, elapsed)
	m.DiscardBytesPerSec = sectorRate(cur.DiscardSectors, prev.DiscardSectors, elapsed)
	m.TotalBytesPerSec = optAdd(m.ReadBytesPerSec, m.WriteBytesPerSec)
	return m
}

// sectorRate converts a 512-byte-sector counter pair to bytes/s.
func sectorRate(cur, prev *uint64, elapsed time.Duration) *float64 {
	rate := counterRate(cur, prev, elapsed)
	if rate == nil {
		return nil
	}
	bytes := *rate * sectorSize
	return &bytes
}
