package collectors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
	"gitlab.com/tinyland/lab/hostpulse/store"
)

// RunnerOptions tunes the collection loop.
type RunnerOptions struct {
	// Interval is the sampling cadence. Zero means the default of 5s.
	Interval time.Duration
	// RetainAge evicts shards older than this on rotation. Zero keeps
	// everything.
	RetainAge time.Duration
	// RetainBytes evicts oldest shards past this total size on
	// rotation. Zero keeps everything.
	RetainBytes uint64
}

func (o RunnerOptions) interval() time.Duration {
	if o.Interval <= 0 {
		return 5 * time.Second
	}
	return o.Interval
}

// Runner owns the write side of a store: it ticks at a fixed cadence,
// asks every registered collector to fill its section of a fresh
// sample, and appends the result. A collector failing only costs its
// section; the tick still persists whatever was captured. Retention
// runs on shard rotation, never on the per-tick hot path.
type Runner struct {
	logger   *slog.Logger
	registry *Registry
	writer   *store.Writer
	opts     RunnerOptions

	now func() time.Time
}

// NewRunner creates a Runner appending to writer.
// If logger is nil, a no-op logger is used.
func NewRunner(registry *Registry, writer *store.Writer, opts RunnerOptions, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		logger:   logger,
		registry: registry,
		writer:   writer,
		opts:     opts,
		now:      time.Now,
	}
}

// Run collects immediately and then on every tick until ctx is
// cancelled. Persistence errors abort the loop; collection errors do
// not.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.opts.interval()
	r.logger.Info("collection loop starting",
		"interval", interval,
		"collectors", len(r.registry.All()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.RunOnce(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("collection loop stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce performs a single collect-and-append tick.
func (r *Runner) RunOnce(ctx context.Context) error {
	ts := r.now()
	s := &sample.Sample{}
	for _, col := range r.registry.All() {
		if err := col.Collect(ctx, s); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("collector failed, section absent this tick",
				"collector", col.Name(), "error", err)
		}
	}

	rotated, err := r.writer.Put(ts, s)
	if err != nil {
		return fmt.Errorf("collectors: persist sample: %w", err)
	}
	if rotated {
		r.applyRetention(ts)
	}
	return nil
}

func (r *Runner) applyRetention(now time.Time) {
	if r.opts.RetainAge > 0 {
		if err := r.writer.DiscardEarlier(now.Add(-r.opts.RetainAge)); err != nil {
			r.logger.Warn("age retention failed", "error", err)
		}
	}
	if r.opts.RetainBytes > 0 {
		ok, err := r.writer.DiscardUntilSize(r.opts.RetainBytes)
		if err != nil {
			r.logger.Warn("size retention failed", "error", err)
		} else if !ok {
			r.logger.Warn("store exceeds size limit even after eviction",
				"limit_bytes", r.opts.RetainBytes)
		}
	}
}
