package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/internal/format"
	"gitlab.com/tinyland/lab/hostpulse/store"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report store health",
		Long: `Summarize the sample store: shard count, size on disk, and the age
of the oldest and newest samples. A recorder that stopped appending
shows up as a stale newest sample.

Example:
  hostpulse status`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := store.Stat(cfg.Store.Dir, logger)
	if err != nil {
		return fmt.Errorf("inspect store: %w", err)
	}

	fmt.Printf("store:   %s\n", cfg.Store.Dir)
	fmt.Printf("shards:  %d\n", stats.Shards)
	fmt.Printf("size:    %s\n", format.Bytes(stats.SizeBytes))
	fmt.Printf("oldest:  %s\n", format.TimeSince(stats.Oldest))
	fmt.Printf("newest:  %s\n", format.TimeSince(stats.Newest))
	if stats.Shards == 0 {
		fmt.Println("\nno samples recorded yet; run 'hostpulse record' to start")
	}
	return nil
}
