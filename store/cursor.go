package store

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// Direction orients a store lookup in time.
type Direction int

const (
	// Forward finds the earliest frame at or after the target.
	Forward Direction = iota
	// Reverse finds the latest frame at or before the target.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Record is one decoded frame together with the timestamp it was
// stored under.
type Record struct {
	Timestamp time.Time
	Sample    *sample.Sample
}

// Cursor reads frames from a store directory by timestamp. It caches
// shard indexes once a shard is closed; the newest shard's index is
// reloaded on every lookup since the writer may still be appending to
// it. A Cursor is safe to use concurrently with one live Writer on the
// same directory but not with other goroutines.
type Cursor struct {
	logger  *slog.Logger
	dir     string
	indexes map[uint64][]indexEntry
}

// NewCursor opens a reader over the store directory. The directory may
// be empty or not yet exist; lookups then find nothing.
func NewCursor(dir string, logger *slog.Logger) *Cursor {
	return &Cursor{
		logger:  logger,
		dir:     dir,
		indexes: make(map[uint64][]indexEntry),
	}
}

// Get returns the frame nearest to ts in the given direction, or
// (nil, nil) when no frame lies on that side of ts. Frames that fail
// their checksum or cannot be decoded are skipped in the direction of
// travel; only an unrecognized frame format stops the lookup.
func (c *Cursor) Get(ts time.Time, dir Direction) (*Record, error) {
	shards, err := c.listShards()
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, nil
	}
	target := uint64(ts.Unix())
	if dir == Forward {
		return c.getForward(shards, target)
	}
	return c.getReverse(shards, target)
}

func (c *Cursor) listShards() ([]uint64, error) {
	shards, err := listShards(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return shards, nil
}

// getForward scans shards left to right starting from the last shard
// that could contain the target. Shard ids are first-frame timestamps
// and timestamps never decrease across shards, so earlier shards hold
// nothing at or after the target once one candidate shard is passed.
func (c *Cursor) getForward(shards []uint64, target uint64) (*Record, error) {
	// First shard whose id exceeds the target could still be preceded
	// by a shard holding the target, so start one earlier.
	start := sort.Search(len(shards), func(i int) bool { return shards[i] > target })
	if start > 0 {
		start--
	}
	tail := shards[len(shards)-1]
	for si := start; si < len(shards); si++ {
		entries, err := c.loadIndex(shards[si], shards[si] == tail)
		if err != nil {
			return nil, err
		}
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp >= target })
		for ; i < len(entries); i++ {
			rec, err := c.readFrame(shards[si], entries[i])
			if err != nil {
				return nil, err
			}
			if rec != nil {
				return rec, nil
			}
		}
	}
	return nil, nil
}

// getReverse scans shards right to left from the last shard whose
// first frame is at or before the target.
func (c *Cursor) getReverse(shards []uint64, target uint64) (*Record, error) {
	start := sort.Search(len(shards), func(i int) bool { return shards[i] > target }) - 1
	if start < 0 {
		return nil, nil
	}
	tail := shards[len(shards)-1]
	for si := start; si >= 0; si-- {
		entries, err := c.loadIndex(shards[si], shards[si] == tail)
		if err != nil {
			return nil, err
		}
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp > target }) - 1
		for ; i >= 0; i-- {
			rec, err := c.readFrame(shards[si], entries[i])
			if err != nil {
				return nil, err
			}
			if rec != nil {
				return rec, nil
			}
		}
	}
	return nil, nil
}

// loadIndex reads a shard's index entries, reusing the cache for
// closed shards. Parsing stops at the first entry that fails its
// checksum: with an append-only writer that can only be a torn tail,
// and everything before it is intact.
func (c *Cursor) loadIndex(shard uint64, isTail bool) ([]indexEntry, error) {
	if !isTail {
		if entries, ok := c.indexes[shard]; ok {
			return entries, nil
		}
	}
	buf, err := os.ReadFile(indexPath(c.dir, shard))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read index shard %d: %w", shard, err)
	}
	entries := make([]indexEntry, 0, len(buf)/indexEntrySize)
	for off := 0; off+indexEntrySize <= len(buf); off += indexEntrySize {
		entry := unmarshalIndexEntry(buf[off : off+indexEntrySize])
		if !entry.valid() {
			c.logger.Warn("truncating shard index at corrupt entry",
				"shard", shard, "entry", off/indexEntrySize)
			break
		}
		entries = append(entries, entry)
	}
	if !isTail {
		c.indexes[shard] = entries
	}
	return entries, nil
}

// readFrame loads and decodes one frame. Checksum and decode failures
// are logged and reported as (nil, nil) so the caller can move on to a
// neighboring frame; an unknown format flag is returned as an error
// since skipping it would silently hide readable data.
func (c *Cursor) readFrame(shard uint64, entry indexEntry) (*Record, error) {
	f, err := os.Open(dataPath(c.dir, shard))
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Warn("data shard missing", "shard", shard)
			return nil, nil
		}
		return nil, fmt.Errorf("store: open data shard %d: %w", shard, err)
	}
	defer f.Close()

	payload := make([]byte, entry.Len)
	if _, err := f.ReadAt(payload, int64(entry.Offset)); err != nil && err != io.EOF {
		c.logger.Warn("short frame read", "shard", shard, "timestamp", entry.Timestamp, "error", err)
		return nil, nil
	}
	if crc32.ChecksumIEEE(payload) != entry.DataCRC {
		c.logger.Warn("frame checksum mismatch", "shard", shard, "timestamp", entry.Timestamp)
		return nil, nil
	}
	s, err := decodeFrame(payload, entry.Flags)
	if err != nil {
		if errors.Is(err, ErrUnknownFormat) {
			return nil, err
		}
		c.logger.Warn("undecodable frame", "shard", shard, "timestamp", entry.Timestamp, "error", err)
		return nil, nil
	}
	return &Record{
		Timestamp: time.Unix(int64(entry.Timestamp), 0).UTC(),
		Sample:    s,
	}, nil
}
