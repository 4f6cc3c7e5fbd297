package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/config"
	"gitlab.com/tinyland/lab/hostpulse/model"
	"gitlab.com/tinyland/lab/hostpulse/sample"
)

var (
	snapshotOutput   string
	snapshotInterval time.Duration
	snapshotRaw      bool
)

// NewSnapshotCmd creates the snapshot subcommand.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"ss"},
		Short:   "Capture and print a one-off view of the host",
		Long: `Collect two samples a short interval apart and print the derived
view (rates and percentages) as JSON. With --raw, collect once and
print the raw counter sample instead. No frame is written to the
store either way.

Example:
  hostpulse snapshot
  hostpulse snapshot --interval 3s -o snap.json
  hostpulse snapshot --raw`,
		RunE: runSnapshot,
	}

	cmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().DurationVar(&snapshotInterval, "interval", time.Second, "Delay between the two collections")
	cmd.Flags().BoolVar(&snapshotRaw, "raw", false, "Print a single raw counter sample instead of derived rates")

	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if snapshotRaw {
		s := collectOnce(cmd.Context(), cfg, logger)
		return writeSnapshot(s)
	}

	prev := collectOnce(cmd.Context(), cfg, logger)
	select {
	case <-time.After(snapshotInterval):
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	cur := collectOnce(cmd.Context(), cfg, logger)

	m := model.New(time.Now(), cur, prev, snapshotInterval)
	return writeSnapshot(m)
}

func collectOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) *sample.Sample {
	s := &sample.Sample{}
	for _, col := range newRegistry(cfg, logger).All() {
		if err := col.Collect(ctx, s); err != nil {
			logger.Warn("collector failed, section absent",
				"collector", col.Name(), "error", err)
		}
	}
	return s
}

func writeSnapshot(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if snapshotOutput == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(snapshotOutput, output, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Written to: %s\n", snapshotOutput)
	return nil
}
