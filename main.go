// hostpulse is a continuous host-resource monitor.
//
// It samples system, process, and cgroup-v2 counters at a fixed
// cadence, persists the history as an append-only sharded store, and
// replays it on demand with derived rates and percentages.
//
// Usage:
//
//	hostpulse record            Run the collection loop
//	hostpulse snapshot          Capture and print a one-off view
//	hostpulse replay            Walk history, printing derived metrics
//	hostpulse dump              Print derived metrics at one timestamp
//	hostpulse fields            List available field identifiers
//	hostpulse status            Report store health
package main

import "gitlab.com/tinyland/lab/hostpulse/commands"

func main() {
	commands.Execute()
}
