package queue

import "container/heap"

// cursors holds the queue's in-memory partition of the id space. Everything
// here except head/tail/chunksHead is lost on crash and reconstructed (or,
// for returned/openCount, simply reset to empty) when the journal reopens.
type cursors struct {
	head       uint64 // next id to assign
	tail       uint64 // smallest id never popped
	chunksHead uint64 // next chunk id to assign
	returned   returnedSet
	openCount  uint64 // ids < tail currently checked out, not in returned
	chunksLive uint64 // CHUNK records currently present, for WriteStats only

	// erasedSinceCompact counts chunks deleted by EraseChunks since the
	// last compaction sweep; see queue.go's compactReclaimThreshold.
	erasedSinceCompact uint64

	// signaled counts optimistic wakeups issued by spinWaiters that PopOpen
	// has not yet accounted for. A push or return makes exactly one more
	// item available; without this, a single push's spin loop would wake
	// every pending waiter at once (count() alone doesn't drop until a
	// PopOpen actually runs), instead of only the oldest waiter.
	signaled uint64
}

// count is the visible queue depth: enqueued-but-undelivered plus
// returned-and-redeliverable, excluding anything a consumer currently holds
// open.
func (c *cursors) count() uint64 {
	return (c.head - c.tail) + uint64(c.returned.Len())
}

// availableSignals reports whether at least one more waiter may still be
// optimistically woken right now: real availability exceeds the wakeups
// already issued but not yet consumed by a PopOpen.
func (c *cursors) availableSignals() bool {
	return int64(c.count()) > int64(c.signaled)
}

// returnedSet is a min-ordered set of ids given back by PopClose(remove=false).
// It is backed by a binary min-heap: ids are returned in increasing order far
// more often than they are tested for membership during normal operation,
// and the set is expected to stay small (bounded by how many consumers hold
// an item at once).
type returnedSet struct {
	h idHeap
}

func (s *returnedSet) Len() int { return len(s.h) }

func (s *returnedSet) Add(id uint64) {
	heap.Push(&s.h, id)
}

// PopMin removes and returns the smallest id in the set. Panics if empty;
// callers must check Len() first.
func (s *returnedSet) PopMin() uint64 {
	return heap.Pop(&s.h).(uint64)
}

type idHeap []uint64

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
