package model

import (
	"slices"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

func queryFixture() *Model {
	cur := &sample.Sample{
		System: sample.SystemSample{
			Hostname: "host1",
			CPUs: map[uint32]*sample.CPUStat{
				0: {UserUsec: sample.Uint64(3_000_000), IdleUsec: sample.Uint64(7_000_000)},
			},
			Mem: &sample.MemInfo{Available: sample.Uint64(1024)},
			VM:  &sample.VMStat{PgpginPages: sample.Uint64(150)},
			Disks: map[string]*sample.DiskStat{
				"sda": {Name: "sda", ReadSectors: sample.Uint64(200)},
			},
		},
		Processes: map[int32]*sample.ProcSample{
			42: {Pid: 42, Comm: "worker", StartTime: sample.Uint64(1756000000000)},
		},
		Cgroup: &sample.CgroupSample{
			InodeNumber: sample.Uint64(1),
			CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(2_000_000)},
			Children: map[string]*sample.CgroupSample{
				"workload": {
					InodeNumber: sample.Uint64(2),
					CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(500_000)},
				},
				// Real cgroup names carry dots.
				"system.slice": {
					InodeNumber: sample.Uint64(3),
					Memory:      &sample.CgroupMemStat{Current: sample.Uint64(4096)},
				},
			},
		},
	}
	prev := &sample.Sample{
		System: sample.SystemSample{
			CPUs: map[uint32]*sample.CPUStat{
				0: {UserUsec: sample.Uint64(1_000_000), IdleUsec: sample.Uint64(4_000_000)},
			},
			VM: &sample.VMStat{PgpginPages: sample.Uint64(100)},
		},
		Cgroup: &sample.CgroupSample{
			InodeNumber: sample.Uint64(1),
			CPU:         &sample.CgroupCPUStat{UsageUsec: sample.Uint64(1_000_000)},
		},
	}
	return New(time.Unix(1756500000, 0).UTC(), cur, prev, 5*time.Second)
}

func TestRender(t *testing.T) {
	m := queryFixture()
	tests := []struct {
		id   string
		want string
	}{
		{"system.hostname", "host1"},
		{"system.mem.available", "1024"},
		{"system.vm.pgpgin_per_sec", "10.00"},
		{"cgroup.cpu.usage_pct", "20.00"},
		{"cgroup.children.workload.full_path", "/workload"},
		{"processes.42.comm", "worker"},
		{"system.cpus.0.user_pct", "40.00"},

		// Dots inside a map key must survive the id round trip.
		{"cgroup.children.system.slice.name", "system.slice"},
		{"cgroup.children.system.slice.memory.current", "4096"},
		{"timestamp", "2025-08-29T20:40:00Z"},

		// Absent values and unknown ids render the placeholder.
		{"system.mem.total", Absent},
		{"system.disks.sda.read_bytes_per_sec", Absent},
		{"system.disks.nvme0n1.read_bytes_per_sec", Absent},
		{"no.such.field", Absent},
		{"cgroup.children.workload.cpu.usage_pct", Absent},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Render(m, tt.id); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestFields(t *testing.T) {
	m := queryFixture()
	fields := Fields(m)

	if !slices.IsSorted(fields) {
		t.Error("fields are not sorted")
	}
	for _, want := range []string{
		"system.hostname",
		"system.mem.available",
		"system.vm.pgpgin_per_sec",
		"system.cpus.0.user_pct",
		"system.disks.sda.name",
		"processes.42.pid",
		"cgroup.children.workload.depth",
		"cgroup.children.system.slice.memory.current",
	} {
		if !slices.Contains(fields, want) {
			t.Errorf("fields missing %q", want)
		}
	}
	// Every enumerated field must be renderable.
	for _, id := range fields {
		if Render(m, id) == "" {
			t.Errorf("Render(%q) returned empty string", id)
		}
	}
}
