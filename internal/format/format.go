// Package format provides shared string and quantity formatting
// utilities for human-facing output.
package format

import (
	"fmt"
	"time"
)

// Bytes renders a byte count with a binary-prefix unit, e.g. "2.5 MiB".
func Bytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Duration renders a duration in the largest two useful units,
// e.g. "2h 5m" or "45s".
func Duration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd %dh", days, int(d.Hours())%24)
	}
}

// TimeSince renders how long ago t was, e.g. "5m 12s ago". The zero
// time renders as "never".
func TimeSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return Duration(time.Since(t)) + " ago"
}
