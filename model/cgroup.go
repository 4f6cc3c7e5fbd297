package model

import (
	"path"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// CgroupModel is one node of the derived cgroup tree. The tree is
// always isomorphic to the current sample's tree: children removed
// since the previous sample are dropped, new children appear with
// rates absent. History is gated on the cgroup inode — a path that was
// deleted and recreated carries a new inode, and its counters (and its
// entire subtree's) must not be diffed against the unrelated
// predecessor that happened to share the name.
type CgroupModel struct {
	Name     string `json:"name"`
	FullPath string `json:"full_path"`
	Depth    int    `json:"depth"`
	// Recreated marks a node whose inode differed from the previous
	// sample's node at the same path.
	Recreated bool `json:"recreated,omitempty"`

	CPU      *CgroupCPUModel           `json:"cpu,omitempty"`
	Memory   *CgroupMemModel           `json:"memory,omitempty"`
	IO       map[string]*CgroupIOModel `json:"io,omitempty"`
	IOTotal  *CgroupIOModel            `json:"io_total,omitempty"`
	Pressure *CgroupPressureModel      `json:"pressure,omitempty"`

	Children map[string]*CgroupModel `json:"children,omitempty"`
}

// CgroupCPUModel holds cpu.stat derived metrics.
type CgroupCPUModel struct {
	UsagePct        *float64 `json:"usage_pct,omitempty"`
	UserPct         *float64 `json:"user_pct,omitempty"`
	SystemPct       *float64 `json:"system_pct,omitempty"`
	ThrottledPct    *float64 `json:"throttled_pct,omitempty"`
	PeriodsPerSec   *float64 `json:"periods_per_sec,omitempty"`
	ThrottledPerSec *float64 `json:"throttled_per_sec,omitempty"`
}

// CgroupMemModel mixes memory gauges (populated from the current
// sample alone) with event rates.
type CgroupMemModel struct {
	Current *uint64 `json:"current,omitempty"`
	Swap    *uint64 `json:"swap,omitempty"`

	Anon        *uint64 `json:"anon,omitempty"`
	File        *uint64 `json:"file,omitempty"`
	KernelStack *uint64 `json:"kernel_stack,omitempty"`
	Slab        *uint64 `json:"slab,omitempty"`
	Sock        *uint64 `json:"sock,omitempty"`
	Shmem       *uint64 `json:"shmem,omitempty"`

	PgfaultPerSec           *float64 `json:"pgfault_per_sec,omitempty"`
	PgmajfaultPerSec        *float64 `json:"pgmajfault_per_sec,omitempty"`
	WorkingsetRefaultPerSec *float64 `json:"workingset_refault_per_sec,omitempty"`
	PgscanPerSec            *float64 `json:"pgscan_per_sec,omitempty"`
	PgstealPerSec           *float64 `json:"pgsteal_per_sec,omitempty"`

	OomPerSec     *float64 `json:"oom_per_sec,omitempty"`
	OomKillPerSec *float64 `json:"oom_kill_per_sec,omitempty"`
}

// CgroupIOModel holds io.stat derived rates for one device.
type CgroupIOModel struct {
	ReadBytesPerSec    *float64 `json:"read_bytes_per_sec,omitempty"`
	WriteBytesPerSec   *float64 `json:"write_bytes_per_sec,omitempty"`
	ReadsPerSec        *float64 `json:"reads_per_sec,omitempty"`
	WritesPerSec       *float64 `json:"writes_per_sec,omitempty"`
	DiscardBytesPerSec *float64 `json:"discard_bytes_per_sec,omitempty"`
	DiscardsPerSec     *float64 `json:"discards_per_sec,omitempty"`
	RWBytesPerSec      *float64 `json:"rw_bytes_per_sec,omitempty"`
}

// CgroupPressureModel copies PSI avg10 gauges.
type CgroupPressureModel struct {
	CPUSomePct    *float64 `json:"cpu_some_pct,omitempty"`
	IOSomePct     *float64 `json:"io_some_pct,omitempty"`
	IOFullPct     *float64 `json:"io_full_pct,omitempty"`
	MemorySomePct *float64 `json:"memory_some_pct,omitempty"`
	MemoryFullPct *float64 `json:"memory_full_pct,omitempty"`
}

// newCgroupModel builds the derived node for cur at fullPath and
// recurses over its children. prev is the previous sample's node at
// the same path, nil when there was none; when the inodes disagree the
// whole previous subtree is ignored, not just this node's counters.
func newCgroupModel(name, fullPath string, depth int, cur, prev *sample.CgroupSample, elapsed time.Duration) *CgroupModel {
	recreated := false
	if prev != nil && !sameInode(cur.InodeNumber, prev.InodeNumber) {
		// Only a pair of present, differing inodes proves recreation;
		// a missing inode just makes the history untrustworthy.
		recreated = cur.InodeNumber != nil && prev.InodeNumber != nil
		prev = nil
	}

	m := &CgroupModel{
		Name:      name,
		FullPath:  fullPath,
		Depth:     depth,
		Recreated: recreated,
	}

	if cur.CPU != nil {
		var prevCPU *sample.CgroupCPUStat
		if prev != nil {
			prevCPU = prev.CPU
		}
		m.CPU = newCgroupCPUModel(cur.CPU, prevCPU, elapsed)
	}
	if cur.Memory != nil {
		var prevMem *sample.CgroupMemStat
		if prev != nil {
			prevMem = prev.Memory
		}
		m.Memory = newCgroupMemModel(cur.Memory, prevMem, elapsed)
	}
	if len(cur.IO) > 0 {
		m.IO = make(map[string]*CgroupIOModel, len(cur.IO))
		for dev, st := range cur.IO {
			var prevSt *sample.CgroupIOStat
			if prev != nil {
				prevSt = prev.IO[dev]
			}
			devModel := newCgroupIOModel(st, prevSt, elapsed)
			m.IO[dev] = devModel
			m.IOTotal = addCgroupIO(m.IOTotal, devModel)
		}
	}
	if cur.Pressure != nil {
		m.Pressure = &CgroupPressureModel{
			CPUSomePct:    gaugeF64(cur.Pressure.CPUSomePct),
			IOSomePct:     gaugeF64(cur.Pressure.IOSomePct),
			IOFullPct:     gaugeF64(cur.Pressure.IOFullPct),
			MemorySomePct: gaugeF64(cur.Pressure.MemorySomePct),
			MemoryFullPct: gaugeF64(cur.Pressure.MemoryFullPct),
		}
	}

	if len(cur.Children) > 0 {
		m.Children = make(map[string]*CgroupModel, len(cur.Children))
		for childName, child := range cur.Children {
			var prevChild *sample.CgroupSample
			if prev != nil {
				prevChild = prev.Children[childName]
			}
			m.Children[childName] = newCgroupModel(childName,
				path.Join(fullPath, childName), depth+1, child, prevChild, elapsed)
		}
	}
	return m
}

// sameInode reports whether two optional inode numbers identify the
// same cgroup. History is only trusted when both captures carried an
// inode and they agree; a missing inode on either side discards it,
// since there is no way to rule out recreation.
func sameInode(cur, prev *uint64) bool {
	return cur != nil && prev != nil && *cur == *prev
}

func newCgroupCPUModel(cur, prev *sample.CgroupCPUStat, elapsed time.Duration) *CgroupCPUModel {
	if prev == nil {
		prev = &sample.CgroupCPUStat{}
	}
	return &CgroupCPUModel{
		UsagePct:        usecPct(cur.UsageUsec, prev.UsageUsec, elapsed),
		UserPct:         usecPct(cur.UserUsec, prev.UserUsec, elapsed),
		SystemPct:       usecPct(cur.SystemUsec, prev.SystemUsec, elapsed),
		ThrottledPct:    usecPct(cur.ThrottledUsec, prev.ThrottledUsec, elapsed),
		PeriodsPerSec:   counterRate(cur.NrPeriods, prev.NrPeriods, elapsed),
		ThrottledPerSec: counterRate(cur.NrThrottled, prev.NrThrottled, elapsed),
	}
}

func newCgroupMemModel(cur, prev *sample.CgroupMemStat, elapsed time.Duration) *CgroupMemModel {
	if prev == nil {
		prev = &sample.CgroupMemStat{}
	}
	return &CgroupMemModel{
		Current:     gaugeU64(cur.Current),
		Swap:        gaugeU64(cur.Swap),
		Anon:        gaugeU64(cur.Anon),
		File:        gaugeU64(cur.File),
		KernelStack: gaugeU64(cur.KernelStack),
		Slab:        gaugeU64(cur.Slab),
		Sock:        gaugeU64(cur.Sock),
		Shmem:       gaugeU64(cur.Shmem),

		PgfaultPerSec:           counterRate(cur.Pgfault, prev.Pgfault, elapsed),
		PgmajfaultPerSec:        counterRate(cur.Pgmajfault, prev.Pgmajfault, elapsed),
		WorkingsetRefaultPerSec: counterRate(cur.WorkingsetRefault, prev.WorkingsetRefault, elapsed),
		PgscanPerSec:            counterRate(cur.Pgscan, prev.Pgscan, elapsed),
		PgstealPerSec:           counterRate(cur.Pgsteal, prev.Pgsteal, elapsed),

		OomPerSec:     counterRate(cur.EventsOom, prev.EventsOom, elapsed),
		OomKillPerSec: counterRate(cur.EventsOomKill, prev.EventsOomKill, elapsed),
	}
}

func newCgroupIOModel(cur, prev *sample.CgroupIOStat, elapsed time.Duration) *CgroupIOModel {
	if prev == nil {
		prev = &sample.CgroupIOStat{}
	}
	m := &CgroupIOModel{
		ReadBytesPerSec:    counterRate(cur.Rbytes, prev.Rbytes, elapsed),
		WriteBytesPerSec:   counterRate(cur.Wbytes, prev.Wbytes, elapsed),
		ReadsPerSec:        counterRate(cur.Rios, prev.Rios, elapsed),
		WritesPerSec:       counterRate(cur.Wios, prev.Wios, elapsed),
		DiscardBytesPerSec: counterRate(cur.Dbytes, prev.Dbytes, elapsed),
		DiscardsPerSec:     counterRate(cur.Dios, prev.Dios, elapsed),
	}
	m.RWBytesPerSec = optAdd(m.ReadBytesPerSec, m.WriteBytesPerSec)
	return m
}

// addCgroupIO accumulates one device's rates into a running total used
// for the node-level IOTotal.
func addCgroupIO(total, dev *CgroupIOModel) *CgroupIOModel {
	if total == nil {
		total = &CgroupIOModel{}
	}
	total.ReadBytesPerSec = optAdd(total.ReadBytesPerSec, dev.ReadBytesPerSec)
	total.WriteBytesPerSec = optAdd(total.WriteBytesPerSec, dev.WriteBytesPerSec)
	total.ReadsPerSec = optAdd(total.ReadsPerSec, dev.ReadsPerSec)
	total.WritesPerSec = optAdd(total.WritesPerSec, dev.WritesPerSec)
	total.DiscardBytesPerSec = optAdd(total.DiscardBytesPerSec, dev.DiscardBytesPerSec)
	total.DiscardsPerSec = optAdd(total.DiscardsPerSec, dev.DiscardsPerSec)
	total.RWBytesPerSec = optAdd(total.RWBytesPerSec, dev.RWBytesPerSec)
	return total
}
