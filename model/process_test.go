package model

import (
	"testing"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

func procRow(pid int32, startMs, userUsec uint64) *sample.ProcSample {
	return &sample.ProcSample{
		Pid:       pid,
		StartTime: sample.Uint64(startMs),
		UserUsec:  sample.Uint64(userUsec),
	}
}

func TestProcessRates(t *testing.T) {
	cur := map[int32]*sample.ProcSample{
		100: procRow(100, 1756000000000, 2_000_000),
	}
	prev := map[int32]*sample.ProcSample{
		100: procRow(100, 1756000000000, 1_000_000),
	}
	out := newProcessModels(cur, prev, 10*time.Second)

	p := out[100]
	if p == nil || p.CPUUserPct == nil || !almostEqual(*p.CPUUserPct, 10) {
		t.Fatalf("user pct = %+v, want 10", p)
	}
	if p.CPUTotalPct == nil || !almostEqual(*p.CPUTotalPct, 10) {
		t.Errorf("total pct = %v, want 10 from user alone", p.CPUTotalPct)
	}
}

func TestProcessPidReuse(t *testing.T) {
	// Same pid, different start time: a new process recycled the pid.
	cur := map[int32]*sample.ProcSample{
		100: procRow(100, 1756000500000, 2_000_000),
	}
	prev := map[int32]*sample.ProcSample{
		100: procRow(100, 1756000000000, 1_000_000),
	}
	out := newProcessModels(cur, prev, 10*time.Second)

	if pct := out[100].CPUUserPct; pct != nil {
		t.Errorf("user pct = %v, want absent for recycled pid", *pct)
	}
}

func TestProcessAbsentStartTime(t *testing.T) {
	tests := []struct {
		name     string
		curStart *uint64
		prvStart *uint64
		wantRate bool
	}{
		{"both absent match", nil, nil, true},
		{"current absent", nil, sample.Uint64(1756000000000), false},
		{"previous absent", sample.Uint64(1756000000000), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := map[int32]*sample.ProcSample{
				5: {Pid: 5, StartTime: tt.curStart, UserUsec: sample.Uint64(2_000_000)},
			}
			prev := map[int32]*sample.ProcSample{
				5: {Pid: 5, StartTime: tt.prvStart, UserUsec: sample.Uint64(1_000_000)},
			}
			out := newProcessModels(cur, prev, 10*time.Second)
			if got := out[5].CPUUserPct != nil; got != tt.wantRate {
				t.Errorf("rate present = %v, want %v", got, tt.wantRate)
			}
		})
	}
}

func TestProcessExitedAndFresh(t *testing.T) {
	cur := map[int32]*sample.ProcSample{
		200: procRow(200, 1756000000000, 100),
	}
	prev := map[int32]*sample.ProcSample{
		100: procRow(100, 1756000000000, 999),
	}
	out := newProcessModels(cur, prev, 10*time.Second)

	if len(out) != 1 {
		t.Fatalf("rows = %d, want 1", len(out))
	}
	if _, ok := out[100]; ok {
		t.Error("exited process leaked into model")
	}
	if out[200].CPUUserPct != nil {
		t.Error("fresh process has a rate, want absent")
	}
}

func TestProcessUptime(t *testing.T) {
	ts := time.Unix(1756000100, 0)
	cur := &sample.Sample{
		Processes: map[int32]*sample.ProcSample{
			7: procRow(7, 1756000000000, 0), // started 100s before ts
			8: {Pid: 8},                     // start time unknown
		},
	}
	m := New(ts, cur, nil, 0)

	if up := m.Processes[7].UptimeSecs; up == nil || *up != 100 {
		t.Errorf("uptime = %v, want 100", up)
	}
	if m.Processes[8].UptimeSecs != nil {
		t.Error("uptime present without start time, want absent")
	}
}

func TestProcessGaugesSurviveWithoutHistory(t *testing.T) {
	cur := map[int32]*sample.ProcSample{
		1: {
			Pid:      1,
			Comm:     "init",
			RSSBytes: sample.Uint64(1 << 20),
		},
	}
	out := newProcessModels(cur, nil, 0)
	p := out[1]
	if p.Comm != "init" {
		t.Errorf("comm = %q", p.Comm)
	}
	if p.RSSBytes == nil || *p.RSSBytes != 1<<20 {
		t.Errorf("rss = %v, want gauge copied", p.RSSBytes)
	}
}
