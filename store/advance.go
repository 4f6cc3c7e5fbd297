package store

import (
	"log/slog"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/model"
)

// Backend abstracts where frames come from so an Advance can run over
// a local store directory or, eventually, a remote one.
type Backend interface {
	// Get returns the frame nearest to ts in the given direction, or
	// (nil, nil) when none exists on that side.
	Get(ts time.Time, dir Direction) (*Record, error)
}

// farFuture is past any timestamp a frame can carry, so a Reverse
// lookup against it finds the newest frame.
var farFuture = time.Unix(1<<62, 0)

// Advance walks the store one frame at a time and derives a Model for
// each position from the frame and its immediate predecessor. It
// caches the current record and its older neighbor so that a
// steady-state step in either direction costs one store lookup.
type Advance struct {
	logger  *slog.Logger
	backend Backend

	// cur is the record the caller is positioned on, nil before the
	// first step or jump.
	cur *Record
	// older is the record immediately before cur, meaningful only
	// when olderValid is set. olderValid with a nil older records the
	// known absence of an older neighbor.
	older      *Record
	olderValid bool
}

// NewAdvance returns an unpositioned Advance over backend. The first
// Next moves to the oldest (Forward) or newest (Reverse) frame.
func NewAdvance(backend Backend, logger *slog.Logger) *Advance {
	return &Advance{
		logger:  logger,
		backend: backend,
	}
}

// Position returns the timestamp of the current record. ok is false
// before the Advance has been positioned.
func (a *Advance) Position() (ts time.Time, ok bool) {
	if a.cur == nil {
		return time.Time{}, false
	}
	return a.cur.Timestamp, true
}

// Next steps one frame in dir and returns the Model at the new
// position. At the end of the store in that direction it returns
// (nil, nil) and the position does not move, so repeated calls
// enumerate every remaining frame exactly once and then report
// exhaustion. Frames sharing a second collapse into one step.
func (a *Advance) Next(dir Direction) (*model.Model, error) {
	if a.cur == nil {
		return a.jump(farFutureIf(dir == Reverse), dir)
	}
	if dir == Forward {
		return a.stepForward()
	}
	return a.stepReverse()
}

// JumpTo positions the Advance on the frame nearest ts, preferring the
// next frame at or after it and falling back to the latest one before
// it. Returns (nil, nil) only when the store is empty; the previous
// position is then kept.
func (a *Advance) JumpTo(ts time.Time) (*model.Model, error) {
	m, err := a.jump(ts, Forward)
	if m != nil || err != nil {
		return m, err
	}
	return a.jump(ts, Reverse)
}

// Latest positions the Advance on the newest frame in the store.
func (a *Advance) Latest() (*model.Model, error) {
	return a.jump(farFuture, Reverse)
}

func (a *Advance) stepForward() (*model.Model, error) {
	next, err := a.backend.Get(a.cur.Timestamp.Add(time.Second), Forward)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	a.older = a.cur
	a.olderValid = true
	a.cur = next
	return a.model(), nil
}

func (a *Advance) stepReverse() (*model.Model, error) {
	if !a.olderValid {
		older, err := a.backend.Get(a.cur.Timestamp.Add(-time.Second), Reverse)
		if err != nil {
			return nil, err
		}
		a.older = older
		a.olderValid = true
	}
	if a.older == nil {
		return nil, nil
	}
	prev, err := a.backend.Get(a.older.Timestamp.Add(-time.Second), Reverse)
	if err != nil {
		return nil, err
	}
	a.cur = a.older
	a.older = prev
	return a.model(), nil
}

// jump positions on the frame nearest ts in dir and fetches its older
// neighbor for rate derivation. State is left untouched when nothing
// is found.
func (a *Advance) jump(ts time.Time, dir Direction) (*model.Model, error) {
	rec, err := a.backend.Get(ts, dir)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	older, err := a.backend.Get(rec.Timestamp.Add(-time.Second), Reverse)
	if err != nil {
		return nil, err
	}
	a.cur = rec
	a.older = older
	a.olderValid = true
	return a.model(), nil
}

// model derives the Model at the current position. Without an older
// neighbor every rate and percentage in the result is absent.
func (a *Advance) model() *model.Model {
	if a.older == nil {
		return model.New(a.cur.Timestamp, a.cur.Sample, nil, 0)
	}
	return model.New(a.cur.Timestamp, a.cur.Sample, a.older.Sample,
		a.cur.Timestamp.Sub(a.older.Timestamp))
}

func farFutureIf(reverse bool) time.Time {
	if reverse {
		return farFuture
	}
	return time.Unix(0, 0)
}
