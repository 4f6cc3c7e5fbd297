// Package model derives human-meaningful metrics from pairs of raw
// counter samples. Derivation is pure: given the current sample and
// optionally the previous one plus the elapsed time between them, New
// produces an immutable Model tree mirroring the sample's shape, where
// every cumulative counter has become a rate or percentage and every
// gauge a copy. Missing inputs never fail derivation; the affected
// derived fields are simply absent (nil), which consumers must render
// as "no data", never as zero.
package model

import (
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// Model is the derived view of one sample. Rate and percentage fields
// are nil when no valid history existed for the entity they describe.
type Model struct {
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`

	System    SystemModel             `json:"system"`
	Processes map[int32]*ProcessModel `json:"processes,omitempty"`
	Cgroup    *CgroupModel            `json:"cgroup,omitempty"`
}

// New derives the Model for cur at ts. prev is the immediately
// preceding sample, nil when there is none; elapsed is the wall time
// between the two and is ignored when prev is nil. New never fails:
// any missing or inconsistent counter degrades to an absent field.
func New(ts time.Time, cur, prev *sample.Sample, elapsed time.Duration) *Model {
	if prev == nil {
		elapsed = 0
	}
	m := &Model{
		Timestamp: ts,
		Elapsed:   elapsed,
	}
	var prevSys *sample.SystemSample
	if prev != nil {
		prevSys = &prev.System
	}
	m.System = newSystemModel(&cur.System, prevSys, elapsed)
	m.Processes = newProcessModels(cur.Processes, prevProcesses(prev), elapsed)
	setUptime(m.Processes, cur.Processes, ts)
	if cur.Cgroup != nil {
		m.Cgroup = newCgroupModel("", "/", 0, cur.Cgroup, prevCgroup(prev), elapsed)
	}
	return m
}

func prevProcesses(prev *sample.Sample) map[int32]*sample.ProcSample {
	if prev == nil {
		return nil
	}
	return prev.Processes
}

func prevCgroup(prev *sample.Sample) *sample.CgroupSample {
	if prev == nil {
		return nil
	}
	return prev.Cgroup
}
