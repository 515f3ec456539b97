package store

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// keySize is the fixed width of every key the queue journal stores:
// 8 bytes of little-endian id followed by 1 byte of kind tag. It is
// duplicated here (rather than imported) so this package stays independent
// of the queue package's types; the two agree on the layout by contract.
const keySize = 9

// Comparer orders journal keys as native (id, kind) pairs instead of raw
// byte order, so an ascending scan over ids yields FIFO order regardless of
// host endianness. Its Name is persisted by Pebble on disk; reopening a
// journal written under a different name fails fast rather than silently
// reinterpreting the ordering.
var Comparer = &pebble.Comparer{
	Compare: compareKeys,
	Equal:   func(a, b []byte) bool { return compareKeys(a, b) == 0 },
	// AbbreviatedKey and the default DefaultComparer.FormatKey only affect
	// indexing/debug-string heuristics, not correctness, so the stock ones
	// are fine even though our ordering isn't byte-lexicographic.
	AbbreviatedKey: pebble.DefaultComparer.AbbreviatedKey,
	FormatKey:      pebble.DefaultComparer.FormatKey,
	// Separator/Successor must return a key that is still correctly
	// ordered with respect to Compare, not raw byte order. The default
	// implementations shorten keys assuming byte-lexicographic order,
	// which would silently violate compareKeys' numeric ordering and
	// corrupt block boundaries. Returning the input key untouched is
	// always correct under any Compare, just less space-efficient.
	Separator: func(dst, a, b []byte) []byte { return append(dst, a...) },
	Successor: func(dst, a []byte) []byte { return append(dst, a...) },
	Split:     func(key []byte) int { return len(key) },
	Name:      "sluice.queue.v1",
}

// compareKeys orders keys by id first, then by kind, both read as native
// uint64/uint8 rather than lexically. Keys shorter than keySize (used for
// scan bounds) fall back to a byte-order comparison so range bounds built
// from raw prefixes still work.
func compareKeys(a, b []byte) int {
	if len(a) < keySize || len(b) < keySize {
		return compareBytes(a, b)
	}
	idA := binary.LittleEndian.Uint64(a[:8])
	idB := binary.LittleEndian.Uint64(b[:8])
	if idA != idB {
		if idA < idB {
			return -1
		}
		return 1
	}
	kindA, kindB := a[8], b[8]
	if kindA != kindB {
		if kindA < kindB {
			return -1
		}
		return 1
	}
	return 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
