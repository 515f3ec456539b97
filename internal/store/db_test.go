package store

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchBytes += bytes
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func journalKey(id uint64, kind byte) []byte {
	k := make([]byte, keySize)
	binary.LittleEndian.PutUint64(k[:8], id)
	k[8] = kind
	return k
}

// Set/Get/Delete are the point-op primitives everything else in this
// package (and internal/queue, on top of it) is built from.
func TestSetGetDeleteRoundTrip(t *testing.T) {
	db, metrics := newTestDB(t)

	key := journalKey(1, 1)
	val := []byte("hello")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}
	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); err == nil {
		t.Fatalf("expected not found after delete")
	}
}

// DeleteBatch is what Queue.EraseChunks uses to reclaim a header's whole
// chunk range in a single commit; it must remove every key and record
// exactly one batch commit, not one per key.
func TestDeleteBatchRemovesAllKeysInOneCommit(t *testing.T) {
	db, metrics := newTestDB(t)

	keys := [][]byte{journalKey(10, 2), journalKey(11, 2), journalKey(12, 2)}
	for _, k := range keys {
		if err := db.Set(k, []byte("chunk")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	metrics.batchCommits = 0

	if err := db.DeleteBatch(keys); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if metrics.batchCommits != 1 {
		t.Fatalf("want 1 batch commit for the whole delete, got %d", metrics.batchCommits)
	}
	for _, k := range keys {
		if _, err := db.Get(k); err == nil {
			t.Fatalf("key %v still present after DeleteBatch", k)
		}
	}
}

// DeleteBatch on an empty slice is a valid no-op, so a caller need not
// check for an empty key set first.
func TestDeleteBatchNoopOnEmptyKeys(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.DeleteBatch(nil); err != nil {
		t.Fatalf("delete batch on nil: %v", err)
	}
}

// SnapshotIter must see the keyspace as of when it was taken, not as of
// when it's read: Queue.restoreCursors relies on this for its one
// full-keyspace scan on open.
func TestSnapshotIterSeesConsistentView(t *testing.T) {
	db, _ := newTestDB(t)

	key1 := journalKey(1, 1)
	if err := db.Set(key1, []byte("old")); err != nil {
		t.Fatalf("set: %v", err)
	}

	iter, closeIter, err := db.SnapshotIter(nil)
	if err != nil {
		t.Fatalf("snapshot iter: %v", err)
	}
	defer func() {
		if err := closeIter(); err != nil {
			t.Fatalf("close snapshot iter: %v", err)
		}
	}()

	// Mutate after the snapshot was taken.
	key2 := journalKey(2, 1)
	if err := db.Set(key2, []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var seen [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		seen = append(seen, append([]byte(nil), iter.Key()...))
	}
	if len(seen) != 1 {
		t.Fatalf("snapshot iter saw %d keys, want 1 (the key written before the snapshot)", len(seen))
	}

	// The live database, unlike the snapshot, must see both keys.
	liveIter, err := db.NewIter(nil)
	if err != nil {
		t.Fatalf("new iter: %v", err)
	}
	defer liveIter.Close()
	var liveCount int
	for liveIter.First(); liveIter.Valid(); liveIter.Next() {
		liveCount++
	}
	if liveCount != 2 {
		t.Fatalf("live iter saw %d keys, want 2", liveCount)
	}
}

// CompactRange is what Queue.EraseChunks calls once it has reclaimed
// enough chunks; it must not error when handed explicit bounds spanning
// everything written so far.
func TestCompactRangeAfterBulkDeleteSucceeds(t *testing.T) {
	db, _ := newTestDB(t)

	var keys [][]byte
	for id := uint64(0); id < 64; id++ {
		k := journalKey(id, 2)
		keys = append(keys, k)
		if err := db.Set(k, []byte("chunk payload")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.DeleteBatch(keys); err != nil {
		t.Fatalf("delete batch: %v", err)
	}

	lo := make([]byte, keySize)
	hi := make([]byte, keySize)
	for i := range hi {
		hi[i] = 0xFF
	}
	if err := db.CompactRange(lo, hi); err != nil {
		t.Fatalf("compact range: %v", err)
	}

	for _, k := range keys {
		if _, err := db.Get(k); err == nil {
			t.Fatalf("key %v resurfaced after compaction", k)
		}
	}
}

func TestOrderingIsNumericNotLexical(t *testing.T) {
	db, _ := newTestDB(t)

	// id=256 sorts before id=1 lexically under big-endian byte comparison on
	// little-endian-encoded keys, but must sort after it numerically.
	ids := []uint64{256, 1, 2, 255}
	for _, id := range ids {
		if err := db.Set(journalKey(id, 1), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	iter, err := db.NewIter(nil)
	if err != nil {
		t.Fatalf("new iter: %v", err)
	}
	defer iter.Close()

	var seen []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		seen = append(seen, binary.LittleEndian.Uint64(iter.Key()[:8]))
	}
	want := []uint64{1, 2, 255, 256}
	if len(seen) != len(want) {
		t.Fatalf("got %v want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got %v want %v", seen, want)
		}
	}
}

func TestComparatorMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()

	foreign := *Comparer
	foreign.Name = "store.other.v1"
	raw, err := pebble.Open(dir, &pebble.Options{Comparer: &foreign})
	if err != nil {
		t.Fatalf("open with foreign comparer: %v", err)
	}
	if err := raw.Set([]byte("k"), []byte("v"), pebble.Sync); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening through the wrapper, whose Comparer.Name differs, must fail
	// fast rather than silently reinterpret the existing key ordering.
	if _, err := Open(Options{DataDir: dir}); !errors.Is(err, ErrComparatorMismatch) {
		t.Fatalf("got err %v, want ErrComparatorMismatch", err)
	}
}
