package model

import (
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// ProcessModel holds derived per-process metrics. Rows match across
// samples by pid, gated on start time: a pid that reappears with a
// different start time belongs to a new process, so its rates start
// absent instead of inheriting the dead process's counters.
type ProcessModel struct {
	Pid     int32  `json:"pid"`
	Ppid    *int32 `json:"ppid,omitempty"`
	Comm    string `json:"comm,omitempty"`
	State   string `json:"state,omitempty"`
	Cgroup  string `json:"cgroup,omitempty"`
	Cmdline string `json:"cmdline,omitempty"`

	CPUUserPct   *float64 `json:"cpu_user_pct,omitempty"`
	CPUSystemPct *float64 `json:"cpu_system_pct,omitempty"`
	CPUTotalPct  *float64 `json:"cpu_total_pct,omitempty"`

	RSSBytes    *uint64 `json:"rss_bytes,omitempty"`
	VMSizeBytes *uint64 `json:"vm_size_bytes,omitempty"`
	NumThreads  *uint64 `json:"num_threads,omitempty"`

	MinorFaultsPerSec *float64 `json:"minor_faults_per_sec,omitempty"`
	MajorFaultsPerSec *float64 `json:"major_faults_per_sec,omitempty"`

	IoReadBytesPerSec  *float64 `json:"io_read_bytes_per_sec,omitempty"`
	IoWriteBytesPerSec *float64 `json:"io_write_bytes_per_sec,omitempty"`
	IoTotalBytesPerSec *float64 `json:"io_total_bytes_per_sec,omitempty"`

	// UptimeSecs is derived from the start time and the sample
	// timestamp, not from a counter pair.
	UptimeSecs *uint64 `json:"uptime_secs,omitempty"`
}

func newProcessModels(cur, prev map[int32]*sample.ProcSample, elapsed time.Duration) map[int32]*ProcessModel {
	if len(cur) == 0 {
		return nil
	}
	out := make(map[int32]*ProcessModel, len(cur))
	for pid, p := range cur {
		prevP := prev[pid]
		if prevP != nil && !sameProcess(p, prevP) {
			prevP = nil
		}
		out[pid] = newProcessModel(p, prevP, elapsed)
	}
	return out
}

// sameProcess reports whether two rows for one pid describe the same
// process. Start times must agree; two absent start times are taken as
// a match since nothing contradicts it.
func sameProcess(cur, prev *sample.ProcSample) bool {
	if cur.StartTime == nil && prev.StartTime == nil {
		return true
	}
	if cur.StartTime == nil || prev.StartTime == nil {
		return false
	}
	return *cur.StartTime == *prev.StartTime
}

func newProcessModel(cur, prev *sample.ProcSample, elapsed time.Duration) *ProcessModel {
	if prev == nil {
		prev = &sample.ProcSample{}
	}
	m := &ProcessModel{
		Pid:     cur.Pid,
		Comm:    cur.Comm,
		State:   cur.State,
		Cgroup:  cur.Cgroup,
		Cmdline: cur.Cmdline,

		CPUUserPct:   usecPct(cur.UserUsec, prev.UserUsec, elapsed),
		CPUSystemPct: usecPct(cur.SystemUsec, prev.SystemUsec, elapsed),

		RSSBytes:    gaugeU64(cur.RSSBytes),
		VMSizeBytes: gaugeU64(cur.VMSizeBytes),
		NumThreads:  gaugeU64(cur.NumThreads),

		MinorFaultsPerSec: counterRate(cur.MinorFaults, prev.MinorFaults, elapsed),
		MajorFaultsPerSec: counterRate(cur.MajorFaults, prev.MajorFaults, elapsed),

		IoReadBytesPerSec:  counterRate(cur.IoReadBytes, prev.IoReadBytes, elapsed),
		IoWriteBytesPerSec: counterRate(cur.IoWriteBytes, prev.IoWriteBytes, elapsed),
	}
	if cur.Ppid != nil {
		ppid := *cur.Ppid
		m.Ppid = &ppid
	}
	m.CPUTotalPct = optAdd(m.CPUUserPct, m.CPUSystemPct)
	m.IoTotalBytesPerSec = optAdd(m.IoReadBytesPerSec, m.IoWriteBytesPerSec)
	return m
}

// setUptime fills UptimeSecs for every process from the sample
// timestamp. Start times are unix milliseconds.
func setUptime(procs map[int32]*ProcessModel, samples map[int32]*sample.ProcSample, ts time.Time) {
	now := uint64(ts.UnixMilli())
	for pid, m := range procs {
		p := samples[pid]
		if p == nil || p.StartTime == nil || *p.StartTime > now {
			continue
		}
		up := (now - *p.StartTime) / 1000
		m.UptimeSecs = &up
	}
}
