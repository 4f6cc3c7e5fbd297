package collectors

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

const (
	cgroupCollectorName        = "cgroup"
	cgroupCollectorDescription = "cgroup-v2 hierarchy counters (cpu, memory, io, pressure)"

	defaultCgroupRoot = "/sys/fs/cgroup"
)

// CgroupCollector walks the cgroup-v2 hierarchy and fills the cgroup
// tree of a sample. Every node records its directory inode so later
// derivation can tell a recreated cgroup from a surviving one. Control
// files a node does not expose (the root, or controllers not enabled)
// leave that section absent.
type CgroupCollector struct {
	logger *slog.Logger
	root   string

	// Overridable for testing.
	statInode func(path string) (uint64, error)
}

// NewCgroupCollector creates a CgroupCollector rooted at root, or at
// the standard unified hierarchy mount when root is empty.
// If logger is nil, a no-op logger is used.
func NewCgroupCollector(root string, logger *slog.Logger) *CgroupCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if root == "" {
		root = defaultCgroupRoot
	}
	return &CgroupCollector{
		logger: logger,
		root:   root,
		statInode: func(path string) (uint64, error) {
			var st unix.Stat_t
			if err := unix.Stat(path, &st); err != nil {
				return 0, err
			}
			return st.Ino, nil
		},
	}
}

// Name returns the collector's unique identifier.
func (c *CgroupCollector) Name() string {
	return cgroupCollectorName
}

// Description returns a human-readable description of what this collector gathers.
func (c *CgroupCollector) Description() string {
	return cgroupCollectorDescription
}

// Collect fills s.Cgroup with the tree rooted at the collector's root
// directory.
func (c *CgroupCollector) Collect(ctx context.Context, s *sample.Sample) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	node, err := c.collectNode(ctx, c.root)
	if err != nil {
		return err
	}
	s.Cgroup = node
	return nil
}

func (c *CgroupCollector) collectNode(ctx context.Context, dir string) (*sample.CgroupSample, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	node := &sample.CgroupSample{}
	if ino, err := c.statInode(dir); err == nil {
		node.InodeNumber = sample.Uint64(ino)
	} else {
		c.logger.Warn("cgroup inode unavailable", "path", dir, "error", err)
	}

	node.CPU = c.readCPUStat(dir)
	node.Memory = c.readMemory(dir)
	node.IO = c.readIOStat(dir)
	node.Pressure = c.readPressure(dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		// The directory can vanish between listing and descent when a
		// cgroup is removed; treat the node as leafless.
		c.logger.Warn("cgroup listing failed", "path", dir, "error", err)
		return node, nil
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		child, err := c.collectNode(ctx, filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		if node.Children == nil {
			node.Children = make(map[string]*sample.CgroupSample)
		}
		node.Children[ent.Name()] = child
	}
	return node, nil
}

// readKeyedFile parses the flat keyed format of cpu.stat, memory.stat
// and memory.events: one "key value" pair per line.
func readKeyedFile(path string) map[string]uint64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	out := make(map[string]uint64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
			out[fields[0]] = v
		}
	}
	return out
}

// readSingleValue parses files like memory.current holding one number.
func readSingleValue(path string) *uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func keyed(m map[string]uint64, key string) *uint64 {
	if v, ok := m[key]; ok {
		return &v
	}
	return nil
}

func (c *CgroupCollector) readCPUStat(dir string) *sample.CgroupCPUStat {
	kv := readKeyedFile(filepath.Join(dir, "cpu.stat"))
	if kv == nil {
		return nil
	}
	return &sample.CgroupCPUStat{
		UsageUsec:     keyed(kv, "usage_usec"),
		UserUsec:      keyed(kv, "user_usec"),
		SystemUsec:    keyed(kv, "system_usec"),
		NrPeriods:     keyed(kv, "nr_periods"),
		NrThrottled:   keyed(kv, "nr_throttled"),
		ThrottledUsec: keyed(kv, "throttled_usec"),
	}
}

func (c *CgroupCollector) readMemory(dir string) *sample.CgroupMemStat {
	current := readSingleValue(filepath.Join(dir, "memory.current"))
	stat := readKeyedFile(filepath.Join(dir, "memory.stat"))
	events := readKeyedFile(filepath.Join(dir, "memory.events"))
	if current == nil && stat == nil && events == nil {
		return nil
	}
	return &sample.CgroupMemStat{
		Current: current,
		Swap:    readSingleValue(filepath.Join(dir, "memory.swap.current")),

		Anon:        keyed(stat, "anon"),
		File:        keyed(stat, "file"),
		KernelStack: keyed(stat, "kernel_stack"),
		Slab:        keyed(stat, "slab"),
		Sock:        keyed(stat, "sock"),
		Shmem:       keyed(stat, "shmem"),

		Pgfault:           keyed(stat, "pgfault"),
		Pgmajfault:        keyed(stat, "pgmajfault"),
		WorkingsetRefault: keyed(stat, "workingset_refault"),
		Pgscan:            keyed(stat, "pgscan"),
		Pgsteal:           keyed(stat, "pgsteal"),

		EventsOom:     keyed(events, "oom"),
		EventsOomKill: keyed(events, "oom_kill"),
	}
}

// readIOStat parses io.stat: one "MAJ:MIN k=v k=v ..." line per device.
func (c *CgroupCollector) readIOStat(dir string) map[string]*sample.CgroupIOStat {
	f, err := os.Open(filepath.Join(dir, "io.stat"))
	if err != nil {
		return nil
	}
	defer f.Close()

	out := map[string]*sample.CgroupIOStat{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		st := &sample.CgroupIOStat{}
		for _, kv := range fields[1:] {
			key, val, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				continue
			}
			switch key {
			case "rbytes":
				st.Rbytes = &n
			case "wbytes":
				st.Wbytes = &n
			case "rios":
				st.Rios = &n
			case "wios":
				st.Wios = &n
			case "dbytes":
				st.Dbytes = &n
			case "dios":
				st.Dios = &n
			}
		}
		out[fields[0]] = st
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *CgroupCollector) readPressure(dir string) *sample.CgroupPressure {
	cpuSome, _ := readPressureFile(filepath.Join(dir, "cpu.pressure"))
	ioSome, ioFull := readPressureFile(filepath.Join(dir, "io.pressure"))
	memSome, memFull := readPressureFile(filepath.Join(dir, "memory.pressure"))
	if cpuSome == nil && ioSome == nil && memSome == nil {
		return nil
	}
	return &sample.CgroupPressure{
		CPUSomePct:    cpuSome,
		IOSomePct:     ioSome,
		IOFullPct:     ioFull,
		MemorySomePct: memSome,
		MemoryFullPct: memFull,
	}
}

// readPressureFile extracts the avg10 value from the "some" and "full"
// lines of a PSI file.
func readPressureFile(path string) (some, full *float64) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		var avg10 *float64
		for _, kv := range fields[1:] {
			if val, ok := strings.CutPrefix(kv, "avg10="); ok {
				if v, err := strconv.ParseFloat(val, 64); err == nil {
					avg10 = &v
				}
			}
		}
		switch fields[0] {
		case "some":
			some = avg10
		case "full":
			full = avg10
		}
	}
	return some, full
}
