package store

import (
	"fmt"
	"time"
)

// RemoteBackend will read frames from a store on another host. The
// transport is not implemented yet; every lookup reports
// ErrUnsupported so callers can fall back or surface a clear message.
//
// TODO: speak the frame protocol over a unix or tcp socket once the
// serving side exists.
type RemoteBackend struct {
	Addr string
}

var _ Backend = (*RemoteBackend)(nil)

// Get always fails with ErrUnsupported.
func (r *RemoteBackend) Get(ts time.Time, dir Direction) (*Record, error) {
	return nil, fmt.Errorf("store: remote lookup %s at %d: %w", dir, ts.Unix(), ErrUnsupported)
}
