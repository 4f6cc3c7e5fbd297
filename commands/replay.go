package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/hostpulse/model"
	"gitlab.com/tinyland/lab/hostpulse/store"
)

var (
	replayFrom   string
	replayTo     string
	replayFields string
	replayFormat string
)

// NewReplayCmd creates the replay subcommand.
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Walk stored history and print derived metrics",
		Long: `Step through stored samples from --from to --to and print the
derived metrics of each step. Rates are computed against each sample's
immediate predecessor, exactly as the live view would show them.

Timestamps accept RFC 3339 ("2026-08-30T10:00:00Z") or unix seconds.

With --fields, output is CSV restricted to those fields (plus the
timestamp); otherwise each step prints as a JSON document. Fields that
could not be derived print as "` + model.Absent + `".

Example:
  hostpulse replay --from 1756500000 --to 1756503600 \
    --fields system.total_cpu.usage_pct,system.mem.available --format csv`,
		RunE: runReplay,
	}

	cmd.Flags().StringVar(&replayFrom, "from", "", "Start timestamp (default: oldest sample)")
	cmd.Flags().StringVar(&replayTo, "to", "", "End timestamp (default: newest sample)")
	cmd.Flags().StringVar(&replayFields, "fields", "", "Comma-separated field identifiers")
	cmd.Flags().StringVar(&replayFormat, "format", "json", "Output format: json or csv")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var to time.Time
	if replayTo != "" {
		if to, err = parseTimestamp(replayTo); err != nil {
			return err
		}
	}

	adv := store.NewAdvance(store.NewCursor(cfg.Store.Dir, logger), logger)

	var m *model.Model
	if replayFrom != "" {
		from, err := parseTimestamp(replayFrom)
		if err != nil {
			return err
		}
		m, err = adv.JumpTo(from)
		if err != nil {
			return err
		}
	} else {
		m, err = adv.Next(store.Forward)
		if err != nil {
			return err
		}
	}

	out, err := newReplayOutput(replayFormat, replayFields)
	if err != nil {
		return err
	}
	defer out.flush()

	for m != nil {
		if !to.IsZero() && m.Timestamp.After(to) {
			break
		}
		if err := out.emit(m); err != nil {
			return err
		}
		m, err = adv.Next(store.Forward)
		if err != nil {
			return err
		}
	}
	return nil
}

// parseTimestamp accepts RFC 3339 or unix seconds.
func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want RFC 3339 or unix seconds)", s)
	}
	return t, nil
}

// replayOutput formats one derived model per step.
type replayOutput struct {
	fields []string
	writer *csv.Writer
}

func newReplayOutput(format, fields string) (*replayOutput, error) {
	out := &replayOutput{}
	if fields != "" {
		out.fields = strings.Split(fields, ",")
	}
	switch format {
	case "json":
	case "csv":
		if len(out.fields) == 0 {
			return nil, fmt.Errorf("--format csv requires --fields")
		}
		out.writer = csv.NewWriter(os.Stdout)
		header := append([]string{"timestamp"}, out.fields...)
		if err := out.writer.Write(header); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized format %q (want json or csv)", format)
	}
	return out, nil
}

func (o *replayOutput) emit(m *model.Model) error {
	if o.writer != nil {
		row := make([]string, 0, len(o.fields)+1)
		row = append(row, m.Timestamp.Format(time.RFC3339))
		for _, f := range o.fields {
			row = append(row, model.Render(m, f))
		}
		return o.writer.Write(row)
	}
	if len(o.fields) > 0 {
		doc := map[string]string{"timestamp": m.Timestamp.Format(time.RFC3339)}
		for _, f := range o.fields {
			doc[f] = model.Render(m, f)
		}
		return json.NewEncoder(os.Stdout).Encode(doc)
	}
	return json.NewEncoder(os.Stdout).Encode(m)
}

func (o *replayOutput) flush() {
	if o.writer != nil {
		o.writer.Flush()
	}
}
