package queue

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/coalmine/sluice/internal/store"
	"github.com/coalmine/sluice/pkg/id"
)

// Queue is the FIFO work queue facade. It exclusively owns the journal
// handle, the cursors, and the waiter list; no other component mutates
// them. A Queue assumes a single caller driving it cooperatively (see the
// package doc's Concurrency section) — the exception is waiter deadline
// timers, which fire on their own goroutine but only ever invoke a
// caller-supplied callback, never touch cursor state themselves.
type Queue struct {
	db        *store.DB
	path      string
	c         cursors
	waiters   *waitList
	waiterIDs *id.Generator
	closed    bool
	opts      Options
}

// Options configures Open.
type Options struct {
	Fsync store.FsyncMode
	// FsyncInterval controls group-commit when Fsync=store.FsyncModeInterval.
	FsyncInterval time.Duration
	// MaxInlineBytes bounds OutputStream.Close's single-chunk inline
	// optimization (see stream_out.go). Zero means defaultInlineThreshold.
	MaxInlineBytes uint64
}

// Open opens or creates the journal at path and restores the four logical
// cursors by scanning it once. Fails if the store cannot be opened or its
// comparator does not match store.Comparer (ErrComparatorMismatch).
func Open(path string, opts Options) (*Queue, error) {
	db, err := store.Open(store.Options{DataDir: path, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval})
	if err != nil {
		if errors.Is(err, store.ErrComparatorMismatch) {
			return nil, ErrComparatorMismatch
		}
		return nil, fmt.Errorf("queue: open journal: %w", err)
	}

	q := &Queue{
		db:        db,
		path:      path,
		waiters:   newWaitList(),
		waiterIDs: id.NewGenerator(),
		opts:      opts,
	}
	if err := q.restoreCursors(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// restoreCursors walks the whole keyspace once, classifying every key by
// its trailing kind byte, and rebuilds head/tail/chunksHead/chunksLive from
// what it finds. returned and openCount always restart empty: a crash
// between PopOpen and PopClose loses the in-memory open set, and tail
// having been set to the minimum QUEUE id already means the unclosed item
// is simply redelivered from the start — this is at-least-once delivery by
// design, not a bug to fix.
//
// The scan runs over a snapshot rather than the live keyspace: Open is the
// one place this package reads the whole journal in a single pass, so it's
// the one place a consistent point-in-time view actually matters.
func (q *Queue) restoreCursors() error {
	iter, closeIter, err := q.db.SnapshotIter(nil)
	if err != nil {
		return fmt.Errorf("queue: restore cursors: %w", err)
	}
	defer closeIter()

	var haveQueue, haveChunk bool
	var minQueue, maxQueue, maxChunk uint64
	var chunksLive uint64

	for iter.First(); iter.Valid(); iter.Next() {
		kind, id := decodeKey(iter.Key())
		switch kind {
		case KindQueue:
			if !haveQueue || id < minQueue {
				minQueue = id
			}
			if !haveQueue || id > maxQueue {
				maxQueue = id
			}
			haveQueue = true
		case KindChunk:
			if !haveChunk || id > maxChunk {
				maxChunk = id
			}
			haveChunk = true
			chunksLive++
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("queue: restore cursors: %w", err)
	}

	if haveQueue {
		q.c.tail = minQueue
		q.c.head = maxQueue + 1
	} else {
		q.c.tail = 0
		q.c.head = 0
	}
	if haveChunk {
		q.c.chunksHead = maxChunk + 1
	} else {
		q.c.chunksHead = 0
	}
	q.c.chunksLive = chunksLive
	return nil
}

// Close closes the underlying journal and resolves every pending waiter
// with ErrClosed.
func (q *Queue) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	q.waiters.closeAll(ErrClosed)
	return q.db.Close()
}

// Count returns (head - tail) + |returned|: items available for delivery,
// excluding anything a consumer currently holds open.
func (q *Queue) Count() uint64 {
	return q.c.count()
}

// maxInlineBytes returns the configured inline-push threshold, falling
// back to defaultInlineThreshold when Options.MaxInlineBytes is unset.
func (q *Queue) maxInlineBytes() uint64 {
	if q.opts.MaxInlineBytes == 0 {
		return defaultInlineThreshold
	}
	return q.opts.MaxInlineBytes
}

// Wait registers interest in an item becoming available within deadline.
// cb is invoked exactly once, either with a nil error once an item is (at
// least momentarily) available, or with ErrTimeout once the deadline
// elapses. A successful wakeup is only a signal of opportunity: the caller
// must still call PopOpen, and may still lose a race to another consumer.
// Wait registers cb to run once an item becomes available or deadline
// elapses, and returns the waiter id the queue allocated for it. The id
// comes from the same sortable id space the queue uses elsewhere for
// correlating a pending wait across log lines; it carries no meaning to
// the wait coordinator itself, which still tracks waiters by arrival
// order.
func (q *Queue) Wait(deadline time.Duration, cb func(error)) id.ID {
	waiterID := q.waiterIDs.Next()
	q.waiters.add(deadline, cb)
	q.spinWaiters()
	return waiterID
}

func (q *Queue) spinWaiters() {
	q.waiters.spinWaiters(
		func() bool { return q.c.availableSignals() },
		func() { q.c.signaled++ },
	)
}

// Push writes value as a small, single-record item. It assigns id = head,
// durably writes (QUEUE, id) -> value, and only then advances head. If the
// write fails, head is left unchanged and the id is not consumed.
func (q *Queue) Push(value []byte) (id uint64, err error) {
	id = q.c.head
	rec := encodeInlineRecord(value)
	if err := q.db.Set(queueKey(id), rec); err != nil {
		return 0, fmt.Errorf("queue: push: %w", err)
	}
	q.c.head++
	q.spinWaiters()
	return id, nil
}

// PushHeader writes an already-populated Header as a multi-chunk item. The
// caller (normally an OutputStream) is responsible for having already
// written every chunk in [h.Beg, h.End) via WriteChunk.
func (q *Queue) PushHeader(h Header) (id uint64, err error) {
	id = q.c.head
	rec := encodeHeaderRecord(h)
	if err := q.db.Set(queueKey(id), rec); err != nil {
		return 0, fmt.Errorf("queue: push header: %w", err)
	}
	q.c.head++
	q.spinWaiters()
	return id, nil
}

// PopOpen selects the next id to deliver — the smallest returned id if any,
// else tail — reads its QUEUE record, and marks it open. The item stays in
// the journal until a matching PopClose. Returns ErrEmpty if nothing is
// available.
func (q *Queue) PopOpen() (id uint64, hdr *Header, value []byte, err error) {
	// Every PopOpen call consumes one outstanding optimistic wakeup, whether
	// or not an item was actually available, since it's the act of calling
	// PopOpen that uses up the opportunity a wakeup signaled.
	if q.c.signaled > 0 {
		q.c.signaled--
	}
	switch {
	case q.c.returned.Len() > 0:
		id = q.c.returned.PopMin()
	case q.c.tail < q.c.head:
		id = q.c.tail
		q.c.tail++
	default:
		return 0, nil, nil, ErrEmpty
	}

	rec, err := q.db.Get(queueKey(id))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("queue: pop_open: read id %d: %w", id, err)
	}
	tag, body, err := decodeRecord(rec)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("queue: pop_open: id %d: %w", id, err)
	}

	q.c.openCount++
	if tag == tagHeader {
		h := decodeHeader(body)
		return id, &h, nil, nil
	}
	return id, nil, append([]byte(nil), body...), nil
}

// PopClose terminates a reservation opened by PopOpen. When remove is true,
// the QUEUE record and (if hdr is non-nil) every chunk it references are
// deleted. When remove is false, id is inserted into the returned set for
// redelivery ahead of any never-opened id, and pending waiters are woken.
func (q *Queue) PopClose(remove bool, id uint64, hdr *Header) error {
	if !remove {
		q.c.returned.Add(id)
		q.c.openCount--
		q.spinWaiters()
		return nil
	}

	if err := q.db.Delete(queueKey(id)); err != nil {
		return fmt.Errorf("queue: pop_close: delete id %d: %w", id, err)
	}
	if hdr != nil {
		if err := q.EraseChunks(*hdr); err != nil {
			return err
		}
	}
	q.c.openCount--
	return nil
}

// ReserveChunks allocates n consecutive chunk ids without touching the
// journal; the caller fills in Size as bytes are appended via WriteChunk.
func (q *Queue) ReserveChunks(n uint64) Header {
	h := Header{Beg: q.c.chunksHead, End: q.c.chunksHead + n}
	q.c.chunksHead += n
	return h
}

// WriteChunk durably writes a chunk's payload.
func (q *Queue) WriteChunk(chunkID uint64, value []byte) error {
	if err := q.db.Set(chunkKey(chunkID), value); err != nil {
		return fmt.Errorf("queue: write_chunk: id %d: %w", chunkID, err)
	}
	q.c.chunksLive++
	return nil
}

// ReadChunk reads a chunk's payload. Returns ErrNotFound if absent.
func (q *Queue) ReadChunk(chunkID uint64) ([]byte, error) {
	v, err := q.db.Get(chunkKey(chunkID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queue: read_chunk: id %d: %w", chunkID, err)
	}
	return v, nil
}

// compactReclaimThreshold bounds how many chunks EraseChunks reclaims
// before it asks the store to compact the full keyspace. Deleting a
// header's chunks leaves behind tombstoned space that nothing requires to
// be reclaimed promptly — this is an inline sweep rather than a separate
// tool. A var, not a const, so tests can lower it instead of writing
// thousands of chunks to observe the threshold firing.
var compactReclaimThreshold uint64 = 4096

// EraseChunks deletes every chunk in [h.Beg, h.End) as a single batch
// commit rather than one delete per chunk; atomicity across the batch is
// a side effect of using one, not a requirement — an orphaned chunk
// unreachable from any live header stays harmless regardless of whether
// its deletion is atomic with anything else.
func (q *Queue) EraseChunks(h Header) error {
	n := h.NumChunks()
	if n == 0 {
		return nil
	}
	keys := make([][]byte, 0, n)
	for cid := h.Beg; cid < h.End; cid++ {
		keys = append(keys, chunkKey(cid))
	}
	if err := q.db.DeleteBatch(keys); err != nil {
		return fmt.Errorf("queue: erase_chunks: [%d,%d): %w", h.Beg, h.End, err)
	}

	if q.c.chunksLive > n {
		q.c.chunksLive -= n
	} else {
		q.c.chunksLive = 0
	}

	q.c.erasedSinceCompact += n
	if q.c.erasedSinceCompact >= compactReclaimThreshold {
		q.c.erasedSinceCompact = 0
		lo, hi := fullKeyspaceBounds()
		if err := q.db.CompactRange(lo, hi); err != nil {
			return fmt.Errorf("queue: erase_chunks: compact: %w", err)
		}
	}
	return nil
}

// Stats is a snapshot of a Queue's cursor counters, for callers that want
// structured fields rather than WriteStats's text block.
type Stats struct {
	Items            uint64
	OpenTransactions uint64
	Returned         uint64
	ChunksLive       uint64
	JournalPath      string
}

// Stats snapshots the queue's current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Items:            q.Count(),
		OpenTransactions: q.c.openCount,
		Returned:         uint64(q.c.returned.Len()),
		ChunksLive:       q.c.chunksLive,
		JournalPath:      q.path,
	}
}

// WriteStats writes a memcache-style stats block for this queue to w: one
// "STAT queue.<name>.<field> <value>" line per field, the conventional text
// format for this class of disk-backed work queue's stats command.
func (q *Queue) WriteStats(name string, w io.Writer) error {
	st := q.Stats()
	fields := []struct {
		key string
		val uint64
	}{
		{"items", st.Items},
		{"open_transactions", st.OpenTransactions},
		{"returned", st.Returned},
		{"chunks_live", st.ChunksLive},
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "STAT queue.%s.%s %d\r\n", name, f.key, f.val); err != nil {
			return fmt.Errorf("queue: write_stats: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "STAT queue.%s.journal %s\r\n", name, st.JournalPath); err != nil {
		return fmt.Errorf("queue: write_stats: %w", err)
	}
	return nil
}
