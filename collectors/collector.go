// Package collectors reads raw counters from kernel interfaces and
// assembles them into samples. Each collector fills one section of a
// Sample (system, processes, cgroups) and tolerates transiently
// missing sources: a counter that cannot be read this tick is left
// absent, never zeroed or faked, and the tick still produces a frame.
package collectors

import (
	"context"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// Collector fills one section of a Sample from a kernel interface.
type Collector interface {
	// Name returns the collector's unique identifier (e.g. "system",
	// "process", "cgroup"). Names must be unique within a Registry.
	Name() string

	// Description returns a human-readable description of what this
	// collector gathers.
	Description() string

	// Collect reads counters and fills the collector's section of s.
	// Partially unreadable sources leave individual fields absent and
	// do not fail the call; an error means the whole section is
	// missing this tick. The context should be respected for
	// cancellation.
	Collect(ctx context.Context, s *sample.Sample) error
}

// Registry holds registered collectors and provides lookup by name.
type Registry struct {
	collectors []Collector
}

// NewRegistry creates a new empty collector registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make([]Collector, 0),
	}
}

// Register adds a collector to the registry.
// If a collector with the same name already exists, it is replaced.
func (r *Registry) Register(c Collector) {
	for i, existing := range r.collectors {
		if existing.Name() == c.Name() {
			r.collectors[i] = c
			return
		}
	}
	r.collectors = append(r.collectors, c)
}

// Get returns a collector by name. The second return value indicates
// whether the collector was found.
func (r *Registry) Get(name string) (Collector, bool) {
	for _, c := range r.collectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// All returns all registered collectors.
func (r *Registry) All() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}
