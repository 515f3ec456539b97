// Package queue implements a durable, single-process FIFO work queue on top
// of an ordered embedded key-value store (see internal/store).
//
// # Keyspace
//
// Every journal record is addressed by a 9-byte key: an 8-byte item or chunk
// id followed by a 1-byte kind tag (keyKindQueue or keyKindChunk). The store
// is opened with store.Comparer, which orders keys as native (id, kind)
// pairs rather than lexical byte order, so an ascending scan over QUEUE keys
// yields items in the order they were assigned, regardless of host
// endianness.
//
//	(QUEUE, id)       -> inline item bytes, or an encoded header
//	(CHUNK, chunk_id) -> raw chunk payload
//
// # Cursors
//
// Three monotonic counters partition the id space:
//
//	head        next id to assign to a freshly pushed item
//	tail        smallest id that has never been popped
//	chunksHead  next chunk id to assign
//
// Two auxiliary sets track reservation state, held only in memory:
//
//	returned    ids < tail that were opened then given back, eligible
//	            for redelivery ahead of any id >= tail
//	openCount   number of ids < tail currently checked out by a consumer
//
// A process crash between PopOpen and PopClose loses the open set; on
// reopen, tail is recomputed as the smallest QUEUE id still present in the
// journal, so unclosed items are redelivered. Delivery is therefore
// at-least-once, never at-most-once.
//
// # Large items
//
// An item larger than the inline threshold is written as a sequence of
// chunk records plus a small header record pointing at the chunk range.
// Producers drive this with an OutputStream; consumers read it back with an
// InputStream. Both are short-lived, single-use objects that borrow the
// Queue for the duration of one item transfer.
//
// # Waiting consumers
//
// A consumer with no item available can register a wait with a deadline.
// The queue wakes waiters in arrival order whenever Push or a non-removing
// PopClose makes an item available; a woken waiter still has to race other
// consumers for PopOpen, since the wakeup is a signal of opportunity, not a
// reservation.
//
// # Concurrency
//
// A Queue is not safe for concurrent use from multiple goroutines without
// external synchronization; its design assumes a single caller driving it
// cooperatively. Waiter deadlines are the sole suspension point; everything
// else is synchronous.
package queue
