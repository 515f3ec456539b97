package queue

import (
	"errors"

	"github.com/coalmine/sluice/internal/store"
)

// ErrComparatorMismatch is returned by Open when the on-disk journal was
// written under a different key comparator. It is an alias of the
// underlying store package's error so callers never need to import that
// package just to check for it.
var ErrComparatorMismatch = store.ErrComparatorMismatch

// Error kinds surfaced by the public API. All errors propagate to the
// immediate caller; the queue performs no retries of its own.
var (
	// ErrEmpty is returned by PopOpen when there is nothing to deliver.
	ErrEmpty = errors.New("queue: empty")
	// ErrNotFound is returned by ReadChunk on a missing chunk id. It
	// indicates a corrupt journal or a caller bug, not a normal operating
	// condition. Deleting chunks that are already gone (PopClose,
	// EraseChunks) is not an error.
	ErrNotFound = errors.New("queue: not found")
	// ErrTimeout is delivered to a Wait callback when its deadline elapses
	// with no item becoming available.
	ErrTimeout = errors.New("queue: wait timed out")
	// ErrClosed is delivered by Close to every Wait callback still pending.
	// No other method checks whether the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)
