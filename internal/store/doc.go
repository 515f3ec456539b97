// Package store provides a thin wrapper around Pebble with fsync policy,
// snapshots, batches, minimal metrics hooks, and the fixed-order comparator
// the queue journal requires (see Comparer).
//
// DeleteBatch, SnapshotIter, and CompactRange exist for internal/queue's
// own reclaim path: EraseChunks bulk-deletes a header's chunk range in one
// batch and periodically compacts, and restoreCursors scans a snapshot
// rather than the live keyspace.
//
// Usage:
//
//	db, err := store.Open(store.Options{
//	    DataDir: "./data",
//	    Fsync:   store.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
//	// Point ops
//	_ = db.Set([]byte("k2"), []byte("v2"))
//	v, _ := db.Get([]byte("k2"))
package store
