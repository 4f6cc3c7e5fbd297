// Package commands provides CLI command implementations.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configPath string

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hostpulse",
		Short: "Continuous host resource monitor",
		Long: `hostpulse samples cgroup, process and system counters at a fixed
cadence, persists the history, and lets you browse it in replay with
derived rates.

Commands:
  record     Run the collection loop, appending samples to the store
  snapshot   Capture and print a one-off view of the host
  replay     Walk stored history and print derived metrics
  dump       Print derived metrics at one point in time
  fields     List the available metric field identifiers
  status     Report store health`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default: ~/.config/hostpulse/config.yaml)")

	root.AddCommand(
		NewRecordCmd(),
		NewSnapshotCmd(),
		NewReplayCmd(),
		NewDumpCmd(),
		NewFieldsCmd(),
		NewStatusCmd(),
	)

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the config file named by --config,
// falling back to the default location.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".config", "hostpulse", "config.yaml")
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config. The returned
// cleanup closes the log file, if any.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	cleanup := func() {}
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		cleanup = func() { f.Close() }
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), cleanup, nil
}
