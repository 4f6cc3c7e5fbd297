// Package store persists counter Samples as an append-only, sharded,
// timestamp-ordered log and reads them back by timestamp.
//
// Each Sample is serialized into a frame and appended to a shard's
// data file. A fixed-size index entry is appended to the shard's index
// file: the frame's timestamp, its offset and length in the data file,
// its format flags, a crc32 of the frame bytes, and a crc32 of the
// entry itself. The entry checksums give atomicity: an entry that is
// missing or fails its checksum is treated as if the frame was never
// written, so a crash mid-append only ever leaves the newest frame
// suspect, never earlier ones.
//
// Shards are named by the unix timestamp of their first frame
// (data_<ts> / index_<ts>), are append-only while open, immutable once
// rotated away from, and are only ever deleted wholesale by retention.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

const (
	indexEntrySize = 32

	dataPrefix  = "data_"
	indexPrefix = "index_"
)

// indexEntry is the fixed-size on-disk record describing one frame.
// Serialized little-endian in field order.
type indexEntry struct {
	Timestamp uint64 // unix seconds of the frame
	Offset    uint64 // byte offset into the data file
	Len       uint32 // frame length in bytes
	Flags     uint32 // frame format flags
	DataCRC   uint32 // crc32 (IEEE) of the frame bytes
	IndexCRC  uint32 // crc32 (IEEE) of the 28 bytes above
}

func (e *indexEntry) marshal() []byte {
	buf := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint64(buf[0:], e.Timestamp)
	binary.LittleEndian.PutUint64(buf[8:], e.Offset)
	binary.LittleEndian.PutUint32(buf[16:], e.Len)
	binary.LittleEndian.PutUint32(buf[20:], e.Flags)
	binary.LittleEndian.PutUint32(buf[24:], e.DataCRC)
	binary.LittleEndian.PutUint32(buf[28:], e.IndexCRC)
	return buf
}

func unmarshalIndexEntry(buf []byte) indexEntry {
	return indexEntry{
		Timestamp: binary.LittleEndian.Uint64(buf[0:]),
		Offset:    binary.LittleEndian.Uint64(buf[8:]),
		Len:       binary.LittleEndian.Uint32(buf[16:]),
		Flags:     binary.LittleEndian.Uint32(buf[20:]),
		DataCRC:   binary.LittleEndian.Uint32(buf[24:]),
		IndexCRC:  binary.LittleEndian.Uint32(buf[28:]),
	}
}

// selfCRC computes the checksum covering every field before IndexCRC.
func (e *indexEntry) selfCRC() uint32 {
	buf := e.marshal()
	return crc32.ChecksumIEEE(buf[:indexEntrySize-4])
}

// valid reports whether the entry passes its own checksum and is not
// zero padding.
func (e *indexEntry) valid() bool {
	if e.Timestamp == 0 && e.Offset == 0 && e.Len == 0 && e.Flags == 0 &&
		e.DataCRC == 0 && e.IndexCRC == 0 {
		return false
	}
	return e.IndexCRC == e.selfCRC()
}

func dataPath(dir string, shard uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%011d", dataPrefix, shard))
}

func indexPath(dir string, shard uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%011d", indexPrefix, shard))
}

// listShards returns shard ids found in dir, ascending. Shards with
// unparseable names are skipped.
func listShards(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("store: read directory %s: %w", dir, err)
	}
	var shards []uint64
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, indexPrefix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(name, indexPrefix), 10, 64)
		if err != nil {
			continue
		}
		shards = append(shards, id)
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i] < shards[j] })
	return shards, nil
}

// Options tunes the Writer.
type Options struct {
	// ShardWindow is the maximum time span of one shard. Zero means
	// the default of 24 hours.
	ShardWindow time.Duration
	// MaxShardBytes rotates a shard early once its data file reaches
	// this size. Zero disables size-based rotation.
	MaxShardBytes uint64
	// Compress enables zstd compression of frame payloads.
	Compress bool
}

func (o Options) shardWindow() time.Duration {
	if o.ShardWindow <= 0 {
		return 24 * time.Hour
	}
	return o.ShardWindow
}

// Writer appends frames to the store. Exactly one Writer owns a store
// directory's tail shard; readers never coordinate with it beyond
// listing shards.
type Writer struct {
	logger *slog.Logger
	dir    string
	opts   Options

	data  *os.File
	index *os.File
	// dataLen tracks the data file length for index offsets.
	dataLen uint64
	// shard is the id (first frame timestamp) of the open shard, or 0
	// before the first append.
	shard  uint64
	lastTS uint64
}

// NewWriter creates the store directory if needed and returns a
// Writer. When the directory already holds shards the newest one is
// reopened for appending, so a restart continues the existing log
// instead of clobbering its offsets.
func NewWriter(dir string, opts Options, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
	}
	w := &Writer{
		logger: logger,
		dir:    dir,
		opts:   opts,
	}
	if err := w.resumeTail(); err != nil {
		return nil, err
	}
	return w, nil
}

// resumeTail reopens the newest existing shard. The data length picks
// up from the file size on disk, including any uncommitted bytes left
// by a crash, so new index offsets stay correct; lastTS is restored
// from the last committed index entry so the non-decreasing timestamp
// rule holds across restarts.
func (w *Writer) resumeTail() error {
	shards, err := listShards(w.dir)
	if err != nil {
		return err
	}
	if len(shards) == 0 {
		return nil
	}
	tail := shards[len(shards)-1]
	if err := w.openShard(tail); err != nil {
		return err
	}
	info, err := w.data.Stat()
	if err != nil {
		return fmt.Errorf("store: stat data shard %d: %w", tail, err)
	}
	w.dataLen = uint64(info.Size())

	buf, err := os.ReadFile(indexPath(w.dir, tail))
	if err != nil {
		return fmt.Errorf("store: read index shard %d: %w", tail, err)
	}
	for off := 0; off+indexEntrySize <= len(buf); off += indexEntrySize {
		entry := unmarshalIndexEntry(buf[off : off+indexEntrySize])
		if !entry.valid() {
			break
		}
		w.lastTS = entry.Timestamp
	}
	return nil
}

// Put serializes s into a frame and appends it at ts, rotating to a
// new shard first when the open shard's window or size budget is
// exceeded. Reports whether a new shard was opened. Timestamps must be
// non-decreasing; duplicates are permitted.
func (w *Writer) Put(ts time.Time, s *sample.Sample) (rotated bool, err error) {
	unix := uint64(ts.Unix())
	if w.lastTS != 0 && unix < w.lastTS {
		return false, fmt.Errorf("store: timestamp %d before last appended %d", unix, w.lastTS)
	}

	payload, flags, err := encodeFrame(s, w.opts.Compress)
	if err != nil {
		return false, err
	}

	if w.needsRotation(unix, uint64(len(payload))) {
		if err := w.openShard(unix); err != nil {
			return false, err
		}
		rotated = true
	}

	if err := w.append(unix, payload, flags); err != nil {
		return rotated, err
	}
	w.lastTS = unix
	return rotated, nil
}

func (w *Writer) needsRotation(ts, frameLen uint64) bool {
	if w.data == nil {
		return true
	}
	if time.Duration(ts-w.shard)*time.Second >= w.opts.shardWindow() {
		return true
	}
	if w.opts.MaxShardBytes > 0 && w.dataLen+frameLen > w.opts.MaxShardBytes {
		return true
	}
	return false
}

// openShard closes the current shard and opens the data/index files
// of the shard whose id is ts, creating them if needed. Both files
// exist before any frame in them is considered durable.
func (w *Writer) openShard(ts uint64) error {
	w.closeShard()

	data, err := os.OpenFile(dataPath(w.dir, ts), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open data shard %d: %w", ts, err)
	}
	index, err := os.OpenFile(indexPath(w.dir, ts), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		data.Close()
		return fmt.Errorf("store: open index shard %d: %w", ts, err)
	}

	w.data = data
	w.index = index
	w.dataLen = 0
	w.shard = ts
	w.logger.Info("opened shard", "shard", ts, "dir", w.dir)
	return nil
}

// append writes the frame bytes, then the index entry. The index entry
// commits the frame: until its checksummed entry is on disk, readers
// treat the data bytes as absent.
func (w *Writer) append(ts uint64, payload []byte, flags uint32) error {
	offset := w.dataLen
	if _, err := w.data.Write(payload); err != nil {
		return fmt.Errorf("store: write frame to shard %d: %w", w.shard, err)
	}
	w.dataLen += uint64(len(payload))

	entry := indexEntry{
		Timestamp: ts,
		Offset:    offset,
		Len:       uint32(len(payload)),
		Flags:     flags,
		DataCRC:   crc32.ChecksumIEEE(payload),
	}
	entry.IndexCRC = entry.selfCRC()
	if _, err := w.index.Write(entry.marshal()); err != nil {
		return fmt.Errorf("store: write index entry to shard %d: %w", w.shard, err)
	}
	return nil
}

func (w *Writer) closeShard() {
	if w.data != nil {
		w.data.Close()
		w.data = nil
	}
	if w.index != nil {
		w.index.Close()
		w.index = nil
	}
}

// Close flushes and closes the open shard files.
func (w *Writer) Close() error {
	w.closeShard()
	return nil
}

// DiscardEarlier deletes whole shards all of whose frames are older
// than cutoff, oldest first. The open tail shard is never deleted. A
// shard qualifies when the following shard starts at or before cutoff,
// since timestamps never decrease across shards.
func (w *Writer) DiscardEarlier(cutoff time.Time) error {
	shards, err := listShards(w.dir)
	if err != nil {
		return err
	}
	limit := uint64(cutoff.Unix())
	for i, shard := range shards {
		if shard == w.shard || i+1 >= len(shards) {
			break
		}
		if shards[i+1] > limit {
			break
		}
		if err := w.removeShard(shard); err != nil {
			return err
		}
	}
	return nil
}

// DiscardUntilSize deletes closed shards oldest first until the store
// directory fits in limit bytes. Reports whether the limit was met;
// false means even the remaining shards (including the untouchable
// tail) exceed it.
func (w *Writer) DiscardUntilSize(limit uint64) (bool, error) {
	shards, err := listShards(w.dir)
	if err != nil {
		return false, err
	}
	for _, shard := range shards {
		size, err := dirSize(w.dir)
		if err != nil {
			return false, err
		}
		if size <= limit {
			return true, nil
		}
		if shard == w.shard {
			break
		}
		if err := w.removeShard(shard); err != nil {
			return false, err
		}
	}
	size, err := dirSize(w.dir)
	if err != nil {
		return false, err
	}
	return size <= limit, nil
}

func (w *Writer) removeShard(shard uint64) error {
	// Removal order does not matter; the read side tolerates a
	// missing data or index file.
	for _, path := range []string{indexPath(w.dir, shard), dataPath(w.dir, shard)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", path, err)
		}
	}
	w.logger.Info("discarded shard", "shard", shard)
	return nil
}

func dirSize(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("store: read directory %s: %w", dir, err)
	}
	var total uint64
	for _, ent := range entries {
		info, err := ent.Info()
		if err != nil {
			continue
		}
		total += uint64(info.Size())
	}
	return total, nil
}

// Stats summarizes a store directory for health reporting.
type Stats struct {
	Shards    int
	SizeBytes uint64
	Oldest    time.Time // zero when the store is empty
	Newest    time.Time
}

// Stat inspects a store directory without opening a Writer. A missing
// directory reads as an empty store.
func Stat(dir string, logger *slog.Logger) (Stats, error) {
	shards, err := listShards(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, nil
		}
		return Stats{}, err
	}
	stats := Stats{Shards: len(shards)}
	if len(shards) == 0 {
		return stats, nil
	}
	if stats.SizeBytes, err = dirSize(dir); err != nil {
		return Stats{}, err
	}

	c := NewCursor(dir, logger)
	if rec, err := c.Get(time.Unix(0, 0), Forward); err == nil && rec != nil {
		stats.Oldest = rec.Timestamp
	}
	if rec, err := c.Get(farFuture, Reverse); err == nil && rec != nil {
		stats.Newest = rec.Timestamp
	}
	return stats, nil
}
