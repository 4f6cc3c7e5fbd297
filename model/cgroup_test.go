package model

import (
	"testing"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// cgNode builds a cgroup sample node with a given inode and cpu usage
// counter.
func cgNode(inode, usageUsec uint64, children map[string]*sample.CgroupSample) *sample.CgroupSample {
	return &sample.CgroupSample{
		InodeNumber: sample.Uint64(inode),
		CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(usageUsec)},
		Children:    children,
	}
}

func TestCgroupModelRates(t *testing.T) {
	cur := cgNode(1, 2_000_000, nil)
	prev := cgNode(1, 1_000_000, nil)

	m := newCgroupModel("", "/", 0, cur, prev, 10*time.Second)
	if m.CPU == nil || m.CPU.UsagePct == nil || !almostEqual(*m.CPU.UsagePct, 10) {
		t.Fatalf("usage pct = %+v, want 10", m.CPU)
	}
	if m.Recreated {
		t.Error("Recreated = true for stable inode")
	}
}

func TestCgroupInodeGate(t *testing.T) {
	// Same path, different inode: deleted and recreated between
	// samples, so no rate despite a plausible counter pair.
	cur := cgNode(9, 2_000_000, nil)
	prev := cgNode(5, 1_000_000, nil)

	m := newCgroupModel("a", "/a", 1, cur, prev, 10*time.Second)
	if m.CPU != nil && m.CPU.UsagePct != nil {
		t.Errorf("usage pct = %v, want absent after recreation", *m.CPU.UsagePct)
	}
	if !m.Recreated {
		t.Error("Recreated = false, want true")
	}
}

func TestCgroupAbsentInodeDiscardsHistory(t *testing.T) {
	// Without an inode on both sides there is no proof the counters
	// belong to the same cgroup, so the pair must not be diffed.
	tests := []struct {
		name    string
		curIno  *uint64
		prevIno *uint64
	}{
		{"both absent", nil, nil},
		{"current absent", nil, sample.Uint64(5)},
		{"previous absent", sample.Uint64(5), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := &sample.CgroupSample{
				InodeNumber: tt.curIno,
				CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(2_000_000)},
			}
			prev := &sample.CgroupSample{
				InodeNumber: tt.prevIno,
				CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(1_000_000)},
			}
			m := newCgroupModel("a", "/a", 1, cur, prev, 10*time.Second)
			if m.CPU != nil && m.CPU.UsagePct != nil {
				t.Errorf("usage pct = %v, want absent without a trusted inode pair", *m.CPU.UsagePct)
			}
			if m.Recreated {
				t.Error("Recreated = true without two inodes to compare")
			}
		})
	}
}

func TestCgroupInodeGateIsTransitive(t *testing.T) {
	// The child kept its inode across samples, but its parent was
	// recreated: the old child node belongs to a dead subtree and must
	// not provide history.
	cur := cgNode(9, 0, map[string]*sample.CgroupSample{
		"child": cgNode(7, 2_000_000, nil),
	})
	prev := cgNode(5, 0, map[string]*sample.CgroupSample{
		"child": cgNode(7, 1_000_000, nil),
	})

	m := newCgroupModel("", "/", 0, cur, prev, 10*time.Second)
	child := m.Children["child"]
	if child == nil {
		t.Fatal("child missing from model")
	}
	if child.CPU != nil && child.CPU.UsagePct != nil {
		t.Errorf("child usage pct = %v, want absent under recreated parent", *child.CPU.UsagePct)
	}
}

func TestCgroupTreeShape(t *testing.T) {
	cur := cgNode(1, 0, map[string]*sample.CgroupSample{
		"kept":  cgNode(2, 2_000_000, nil),
		"fresh": cgNode(4, 500, nil),
	})
	prev := cgNode(1, 0, map[string]*sample.CgroupSample{
		"kept":    cgNode(2, 1_000_000, nil),
		"removed": cgNode(3, 9_000_000, nil),
	})

	m := newCgroupModel("", "/", 0, cur, prev, 10*time.Second)

	// The model's child set equals the current sample's exactly.
	if len(m.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(m.Children))
	}
	if _, ok := m.Children["removed"]; ok {
		t.Error("removed child leaked into model")
	}

	kept := m.Children["kept"]
	if kept.CPU == nil || kept.CPU.UsagePct == nil || !almostEqual(*kept.CPU.UsagePct, 10) {
		t.Errorf("kept child usage = %+v, want 10", kept.CPU)
	}
	fresh := m.Children["fresh"]
	if fresh.CPU != nil && fresh.CPU.UsagePct != nil {
		t.Error("fresh child has a rate, want absent")
	}
}

func TestCgroupPathAndDepth(t *testing.T) {
	cur := cgNode(1, 0, map[string]*sample.CgroupSample{
		"a": cgNode(2, 0, map[string]*sample.CgroupSample{
			"b": cgNode(3, 0, nil),
		}),
	})
	m := newCgroupModel("", "/", 0, cur, nil, 0)

	a := m.Children["a"]
	if a.FullPath != "/a" || a.Depth != 1 || a.Name != "a" {
		t.Errorf("a = %q depth %d name %q", a.FullPath, a.Depth, a.Name)
	}
	b := a.Children["b"]
	if b.FullPath != "/a/b" || b.Depth != 2 {
		t.Errorf("b = %q depth %d", b.FullPath, b.Depth)
	}
}

func TestCgroupIOTotal(t *testing.T) {
	mkIO := func(rbytes, wbytes uint64) *sample.CgroupIOStat {
		return &sample.CgroupIOStat{
			Rbytes: sample.Uint64(rbytes),
			Wbytes: sample.Uint64(wbytes),
		}
	}
	cur := &sample.CgroupSample{
		InodeNumber: sample.Uint64(1),
		IO: map[string]*sample.CgroupIOStat{
			"8:0":  mkIO(1000, 500),
			"8:16": mkIO(3000, 0),
		},
	}
	prev := &sample.CgroupSample{
		InodeNumber: sample.Uint64(1),
		IO: map[string]*sample.CgroupIOStat{
			"8:0":  mkIO(0, 0),
			"8:16": mkIO(1000, 0),
		},
	}
	m := newCgroupModel("", "/", 0, cur, prev, 10*time.Second)

	if m.IOTotal == nil || m.IOTotal.ReadBytesPerSec == nil {
		t.Fatalf("IOTotal = %+v", m.IOTotal)
	}
	// (1000-0 + 3000-1000) bytes over 10s.
	if !almostEqual(*m.IOTotal.ReadBytesPerSec, 300) {
		t.Errorf("total read rate = %v, want 300", *m.IOTotal.ReadBytesPerSec)
	}
	if m.IOTotal.WriteBytesPerSec == nil || !almostEqual(*m.IOTotal.WriteBytesPerSec, 50) {
		t.Errorf("total write rate = %v, want 50", m.IOTotal.WriteBytesPerSec)
	}
}

func TestCgroupPressureGauges(t *testing.T) {
	cur := &sample.CgroupSample{
		InodeNumber: sample.Uint64(1),
		Pressure: &sample.CgroupPressure{
			CPUSomePct:    sample.Float64(12.5),
			MemoryFullPct: sample.Float64(0.8),
		},
	}
	// Pressure is a gauge: populated even with no previous sample.
	m := newCgroupModel("", "/", 0, cur, nil, 0)
	if m.Pressure == nil || m.Pressure.CPUSomePct == nil || *m.Pressure.CPUSomePct != 12.5 {
		t.Fatalf("pressure = %+v", m.Pressure)
	}
	if m.Pressure.IOSomePct != nil {
		t.Error("uncaptured pressure has a value, want absent")
	}
}
