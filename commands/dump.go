package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/model"
	"gitlab.com/tinyland/lab/hostpulse/store"
)

var (
	dumpTime   string
	dumpFields string
)

// NewDumpCmd creates the dump subcommand.
func NewDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print derived metrics at one point in time",
		Long: `Derive and print the metrics for the stored sample nearest the
given timestamp, or for the newest sample when --time is omitted.

Example:
  hostpulse dump
  hostpulse dump --time 2026-08-30T10:00:00Z --fields system.mem.available`,
		RunE: runDump,
	}

	cmd.Flags().StringVar(&dumpTime, "time", "", "Timestamp to inspect (default: newest sample)")
	cmd.Flags().StringVar(&dumpFields, "fields", "", "Comma-separated field identifiers (default: full model)")

	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	adv := store.NewAdvance(store.NewCursor(cfg.Store.Dir, logger), logger)

	var m *model.Model
	if dumpTime == "" {
		m, err = adv.Latest()
	} else {
		var at time.Time
		if at, err = parseTimestamp(dumpTime); err != nil {
			return err
		}
		m, err = adv.JumpTo(at)
	}
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("store %s holds no samples", cfg.Store.Dir)
	}

	if dumpFields == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	for _, f := range strings.Split(dumpFields, ",") {
		fmt.Printf("%s\t%s\n", f, model.Render(m, f))
	}
	return nil
}

// NewFieldsCmd creates the fields subcommand.
func NewFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the available metric field identifiers",
		Long: `Derive the newest stored sample and list every field identifier
reachable in it. The set depends on what the host exposed when the
sample was taken: per-CPU, per-disk, per-process, and per-cgroup
entries appear under their own keys.

Example:
  hostpulse fields
  hostpulse fields | grep cgroup`,
		RunE: runFields,
	}
}

func runFields(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	adv := store.NewAdvance(store.NewCursor(cfg.Store.Dir, logger), logger)
	m, err := adv.Latest()
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("store %s holds no samples", cfg.Store.Dir)
	}
	for _, id := range model.Fields(m) {
		fmt.Println(id)
	}
	return nil
}
