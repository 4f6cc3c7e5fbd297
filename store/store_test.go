package store

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWriter(t *testing.T, dir string, opts Options) *Writer {
	t.Helper()
	w, err := NewWriter(dir, opts, testLogger())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// putAt appends a minimal sample whose hostname encodes the timestamp,
// so reads can verify they got the right frame.
func putAt(t *testing.T, w *Writer, ts time.Time) bool {
	t.Helper()
	s := &sample.Sample{}
	s.System.Hostname = ts.UTC().Format(time.RFC3339)
	rotated, err := w.Put(ts, s)
	if err != nil {
		t.Fatalf("Put(%v): %v", ts, err)
	}
	return rotated
}

func TestIndexEntryCodec(t *testing.T) {
	entry := indexEntry{
		Timestamp: 1756500000,
		Offset:    4096,
		Len:       512,
		Flags:     flagCBOR | flagCompressed,
		DataCRC:   0xdeadbeef,
	}
	entry.IndexCRC = entry.selfCRC()

	got := unmarshalIndexEntry(entry.marshal())
	if got != entry {
		t.Errorf("round trip = %+v, want %+v", got, entry)
	}
	if !got.valid() {
		t.Error("valid() = false for intact entry")
	}

	got.Offset++
	if got.valid() {
		t.Error("valid() = true after corruption")
	}

	var zero indexEntry
	if zero.valid() {
		t.Error("valid() = true for zero padding")
	}
}

func TestPutAndGet(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{})

	base := time.Unix(1756500000, 0)
	for i := 0; i < 5; i++ {
		putAt(t, w, base.Add(time.Duration(i)*10*time.Second))
	}

	c := NewCursor(dir, testLogger())
	tests := []struct {
		name   string
		target time.Time
		dir    Direction
		want   time.Time // zero means no result
	}{
		{"forward exact hit", base.Add(20 * time.Second), Forward, base.Add(20 * time.Second)},
		{"forward between frames", base.Add(15 * time.Second), Forward, base.Add(20 * time.Second)},
		{"forward before all", base.Add(-time.Hour), Forward, base},
		{"forward past newest", base.Add(time.Hour), Forward, time.Time{}},
		{"reverse exact hit", base.Add(20 * time.Second), Reverse, base.Add(20 * time.Second)},
		{"reverse between frames", base.Add(15 * time.Second), Reverse, base.Add(10 * time.Second)},
		{"reverse after all", base.Add(time.Hour), Reverse, base.Add(40 * time.Second)},
		{"reverse before oldest", base.Add(-time.Hour), Reverse, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := c.Get(tt.target, tt.dir)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if tt.want.IsZero() {
				if rec != nil {
					t.Fatalf("rec = %v, want nil", rec.Timestamp)
				}
				return
			}
			if rec == nil {
				t.Fatalf("rec = nil, want %v", tt.want)
			}
			if !rec.Timestamp.Equal(tt.want) {
				t.Errorf("timestamp = %v, want %v", rec.Timestamp, tt.want)
			}
			if got := rec.Sample.System.Hostname; got != tt.want.UTC().Format(time.RFC3339) {
				t.Errorf("payload hostname = %q, want %q", got, tt.want.UTC().Format(time.RFC3339))
			}
		})
	}
}

func TestPutRejectsBackwardsTimestamp(t *testing.T) {
	w := newTestWriter(t, t.TempDir(), Options{})
	base := time.Unix(1756500000, 0)
	putAt(t, w, base)
	if _, err := w.Put(base.Add(-time.Second), &sample.Sample{}); err == nil {
		t.Fatal("Put with earlier timestamp succeeded, want error")
	}
}

func TestWriterResumesTailShard(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1756500000, 0)

	w := newTestWriter(t, dir, Options{})
	putAt(t, w, base)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen within the same second as the shard id: the new writer
	// must append to the existing files, with offsets continuing past
	// the frames already on disk.
	w2 := newTestWriter(t, dir, Options{})
	if putAt(t, w2, base) {
		t.Error("appending to the resumed shard rotated")
	}
	later := base.Add(10 * time.Second)
	putAt(t, w2, later)

	shards, err := listShards(dir)
	if err != nil || len(shards) != 1 {
		t.Fatalf("shards = %v, %v; want just the original shard", shards, err)
	}

	c := NewCursor(dir, testLogger())
	rec, err := c.Get(later, Forward)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if !rec.Timestamp.Equal(later) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, later)
	}
	if got, want := rec.Sample.System.Hostname, later.UTC().Format(time.RFC3339); got != want {
		t.Errorf("payload = %q, want %q from the frame written after reopen", got, want)
	}

	// The non-decreasing rule survives the restart too.
	if _, err := w2.Put(base.Add(-time.Second), &sample.Sample{}); err == nil {
		t.Error("Put before resumed tail succeeded, want error")
	}
}

func TestPutDuplicateTimestamp(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{})
	base := time.Unix(1756500000, 0)
	putAt(t, w, base)
	putAt(t, w, base)

	c := NewCursor(dir, testLogger())
	rec, err := c.Get(base, Forward)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if !rec.Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, base)
	}
}

func TestShardRotationByWindow(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{ShardWindow: time.Minute})

	base := time.Unix(1756500000, 0)
	if !putAt(t, w, base) {
		t.Error("first Put did not open a shard")
	}
	if putAt(t, w, base.Add(30*time.Second)) {
		t.Error("Put inside window rotated")
	}
	if !putAt(t, w, base.Add(time.Minute)) {
		t.Error("Put past window did not rotate")
	}

	shards, err := listShards(dir)
	if err != nil {
		t.Fatalf("listShards: %v", err)
	}
	want := []uint64{1756500000, 1756500060}
	if len(shards) != len(want) || shards[0] != want[0] || shards[1] != want[1] {
		t.Errorf("shards = %v, want %v", shards, want)
	}
}

func TestShardRotationBySize(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{MaxShardBytes: 64})

	base := time.Unix(1756500000, 0)
	putAt(t, w, base)
	// Frames are larger than 64 bytes, so every append rotates.
	if !putAt(t, w, base.Add(time.Second)) {
		t.Error("Put past size limit did not rotate")
	}
}

func TestReadsSpanShards(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{ShardWindow: time.Minute})

	base := time.Unix(1756500000, 0)
	stamps := []time.Duration{0, 30 * time.Second, 90 * time.Second, 150 * time.Second}
	for _, d := range stamps {
		putAt(t, w, base.Add(d))
	}

	c := NewCursor(dir, testLogger())
	// A reverse lookup between shards must walk into the older shard.
	rec, err := c.Get(base.Add(60*time.Second), Reverse)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if want := base.Add(30 * time.Second); !rec.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, want)
	}

	rec, err = c.Get(base.Add(40*time.Second), Forward)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if want := base.Add(90 * time.Second); !rec.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, want)
	}
}

func TestDiscardEarlier(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{ShardWindow: time.Minute})

	base := time.Unix(1756500000, 0)
	for i := 0; i < 4; i++ {
		putAt(t, w, base.Add(time.Duration(i)*time.Minute))
	}

	// Cutoff after the second shard's start: only the first shard is
	// provably all-older.
	if err := w.DiscardEarlier(base.Add(90 * time.Second)); err != nil {
		t.Fatalf("DiscardEarlier: %v", err)
	}
	shards, err := listShards(dir)
	if err != nil {
		t.Fatalf("listShards: %v", err)
	}
	if len(shards) != 3 || shards[0] != uint64(base.Add(time.Minute).Unix()) {
		t.Errorf("shards after discard = %v", shards)
	}

	// The tail shard survives any cutoff.
	if err := w.DiscardEarlier(base.Add(time.Hour)); err != nil {
		t.Fatalf("DiscardEarlier: %v", err)
	}
	shards, _ = listShards(dir)
	if len(shards) != 1 || shards[0] != uint64(base.Add(3*time.Minute).Unix()) {
		t.Errorf("shards after aggressive discard = %v, want tail only", shards)
	}

	// Frames in surviving shards are still readable.
	c := NewCursor(dir, testLogger())
	rec, err := c.Get(base, Forward)
	if err != nil || rec == nil {
		t.Fatalf("Get after discard = %v, %v", rec, err)
	}
	if want := base.Add(3 * time.Minute); !rec.Timestamp.Equal(want) {
		t.Errorf("oldest surviving frame = %v, want %v", rec.Timestamp, want)
	}
}

func TestDiscardUntilSize(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{ShardWindow: time.Minute})

	base := time.Unix(1756500000, 0)
	for i := 0; i < 4; i++ {
		putAt(t, w, base.Add(time.Duration(i)*time.Minute))
	}

	// A tiny limit evicts every closed shard but keeps the tail.
	ok, err := w.DiscardUntilSize(1)
	if err != nil {
		t.Fatalf("DiscardUntilSize: %v", err)
	}
	if ok {
		t.Error("ok = true, the tail alone exceeds 1 byte")
	}
	shards, _ := listShards(dir)
	if len(shards) != 1 || shards[0] != uint64(base.Add(3*time.Minute).Unix()) {
		t.Errorf("shards = %v, want tail only", shards)
	}
}

func TestCursorSkipsCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, Options{})

	base := time.Unix(1756500000, 0)
	for i := 0; i < 3; i++ {
		putAt(t, w, base.Add(time.Duration(i)*10*time.Second))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Flip bytes in the middle of the data file to corrupt the second
	// frame without touching its index entry.
	shards, err := listShards(dir)
	if err != nil || len(shards) != 1 {
		t.Fatalf("listShards = %v, %v", shards, err)
	}
	path := dataPath(dir, shards[0])
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	mid := len(data) / 2
	data[mid] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := NewCursor(dir, testLogger())
	rec, err := c.Get(base.Add(10*time.Second), Forward)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("Get = nil, want the frame after the corrupt one")
	}
	if !rec.Timestamp.Equal(base.Add(20 * time.Second)) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, base.Add(20*time.Second))
	}
}

func TestCursorEmptyStore(t *testing.T) {
	c := NewCursor(t.TempDir(), testLogger())
	for _, dir := range []Direction{Forward, Reverse} {
		rec, err := c.Get(time.Unix(1756500000, 0), dir)
		if err != nil {
			t.Fatalf("Get(%v): %v", dir, err)
		}
		if rec != nil {
			t.Errorf("Get(%v) = %v, want nil", dir, rec.Timestamp)
		}
	}
}

func TestCursorMissingDirectory(t *testing.T) {
	c := NewCursor("/nonexistent/hostpulse-test-store", testLogger())
	rec, err := c.Get(time.Unix(1756500000, 0), Forward)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %v, want nil", rec.Timestamp)
	}
}
