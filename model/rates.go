package model

import "time"

// counterRate derives a per-second rate from a cumulative counter
// pair. The result is absent unless both observations exist, time
// passed, and the counter did not go backwards; a backwards counter
// means the underlying entity was reset and its history is worthless.
func counterRate(cur, prev *uint64, elapsed time.Duration) *float64 {
	if cur == nil || prev == nil || elapsed <= 0 || *cur < *prev {
		return nil
	}
	rate := float64(*cur-*prev) / elapsed.Seconds()
	return &rate
}

// usecPct derives the share of elapsed wall time a cumulative
// microsecond counter advanced by, as a percentage. Subject to the
// same absence rules as counterRate.
func usecPct(cur, prev *uint64, elapsed time.Duration) *float64 {
	if cur == nil || prev == nil || elapsed <= 0 || *cur < *prev {
		return nil
	}
	pct := float64(*cur-*prev) / float64(elapsed.Microseconds()) * 100
	return &pct
}

// counterDelta returns the raw increase of a counter pair, absent on
// missing data or reset.
func counterDelta(cur, prev *uint64) *uint64 {
	if cur == nil || prev == nil || *cur < *prev {
		return nil
	}
	d := *cur - *prev
	return &d
}

// gaugeU64 copies an optional gauge from the current sample. Gauges
// need no history so they survive a missing previous sample.
func gaugeU64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func gaugeF64(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// optAdd sums optional values, treating a present side as
// authoritative: the result is absent only when both are absent.
func optAdd(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := *b
		return &c
	case b == nil:
		c := *a
		return &c
	default:
		c := *a + *b
		return &c
	}
}

// optAddU64 is optAdd for unsigned gauges.
func optAddU64(a, b *uint64) *uint64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := *b
		return &c
	case b == nil:
		c := *a
		return &c
	default:
		c := *a + *b
		return &c
	}
}
