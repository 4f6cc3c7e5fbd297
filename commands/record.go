package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/collectors"
	"gitlab.com/tinyland/lab/hostpulse/config"
	"gitlab.com/tinyland/lab/hostpulse/store"
)

// NewRecordCmd creates the record subcommand.
func NewRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Run the collection loop, appending samples to the store",
		Long: `Collect system, process, and cgroup counters at the configured
interval and append each sample to the store. Runs until interrupted.

Retention (max age and max total size) is applied whenever a new shard
file is started.

Example:
  hostpulse record
  hostpulse record --config /etc/hostpulse.yaml`,
		RunE: runRecord,
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	writer, err := store.NewWriter(cfg.Store.Dir, store.Options{
		ShardWindow:   cfg.Store.ShardWindowDuration(),
		MaxShardBytes: uint64(cfg.Store.MaxShardMB) * 1 << 20,
		Compress:      cfg.Store.Compress,
	}, logger)
	if err != nil {
		return err
	}
	defer writer.Close()

	runner := collectors.NewRunner(newRegistry(cfg, logger), writer, collectors.RunnerOptions{
		Interval:    cfg.Record.IntervalDuration(),
		RetainAge:   cfg.Record.RetainAgeDuration(),
		RetainBytes: uint64(cfg.Record.RetainSizeMB) * 1 << 20,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("recording", "store", cfg.Store.Dir, "version", Version)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("collection loop: %w", err)
	}
	return nil
}

// newRegistry builds the collector set enabled by config.
func newRegistry(cfg *config.Config, logger *slog.Logger) *collectors.Registry {
	reg := collectors.NewRegistry()
	if cfg.Record.Collectors.System {
		reg.Register(collectors.NewSystemCollector(logger))
	}
	if cfg.Record.Collectors.Process {
		reg.Register(collectors.NewProcessCollector(logger))
	}
	if cfg.Record.Collectors.Cgroup {
		reg.Register(collectors.NewCgroupCollector(cfg.Record.CgroupRoot, logger))
	}
	return reg
}
