package queue

import (
	"errors"
	"io"
	"testing"
	"time"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// S1 single item round-trip.
func TestS1SingleItemRoundTrip(t *testing.T) {
	q := openTestQueue(t)

	id, err := q.Push([]byte("hello"))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if id != 0 {
		t.Fatalf("got id %d want 0", id)
	}
	if q.Count() != 1 {
		t.Fatalf("got count %d want 1", q.Count())
	}

	gotID, hdr, val, err := q.PopOpen()
	if err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	if gotID != 0 || hdr != nil || string(val) != "hello" {
		t.Fatalf("got (%d, %v, %q)", gotID, hdr, val)
	}

	if err := q.PopClose(true, gotID, hdr); err != nil {
		t.Fatalf("pop_close: %v", err)
	}
	if q.Count() != 0 {
		t.Fatalf("got count %d want 0", q.Count())
	}

	if _, _, _, err := q.PopOpen(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v want ErrEmpty", err)
	}
}

// S2 streamed item.
func TestS2StreamedItem(t *testing.T) {
	q := openTestQueue(t)

	hdr := q.ReserveChunks(3)
	chunks := [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}
	for i, c := range chunks {
		if err := q.WriteChunk(hdr.Beg+uint64(i), c); err != nil {
			t.Fatalf("write_chunk: %v", err)
		}
		hdr.Size += uint64(len(c))
	}

	id, err := q.PushHeader(hdr)
	if err != nil {
		t.Fatalf("push header: %v", err)
	}
	if id != 0 {
		t.Fatalf("got id %d want 0", id)
	}

	gotID, gotHdr, val, err := q.PopOpen()
	if err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	if gotID != 0 || gotHdr == nil || val != nil {
		t.Fatalf("got (%d, %v, %v)", gotID, gotHdr, val)
	}
	if *gotHdr != (Header{Beg: 0, End: 3, Size: 6}) {
		t.Fatalf("got header %+v", *gotHdr)
	}

	for i, want := range chunks {
		got, err := q.ReadChunk(gotHdr.Beg + uint64(i))
		if err != nil {
			t.Fatalf("read_chunk %d: %v", i, err)
		}
		if string(got) != string(want) {
			t.Fatalf("chunk %d: got %q want %q", i, got, want)
		}
	}

	if err := q.PopClose(true, gotID, gotHdr); err != nil {
		t.Fatalf("pop_close: %v", err)
	}
	for i := range chunks {
		if _, err := q.ReadChunk(uint64(i)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("chunk %d still present after pop_close: err=%v", i, err)
		}
	}
}

// S3 return then redeliver.
func TestS3ReturnThenRedeliver(t *testing.T) {
	q := openTestQueue(t)

	if _, err := q.Push([]byte("a")); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if _, err := q.Push([]byte("b")); err != nil {
		t.Fatalf("push b: %v", err)
	}

	id0, _, val0, err := q.PopOpen()
	if err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	if id0 != 0 || string(val0) != "a" {
		t.Fatalf("got (%d, %q)", id0, val0)
	}
	if err := q.PopClose(false, id0, nil); err != nil {
		t.Fatalf("pop_close return: %v", err)
	}

	id1, _, val1, err := q.PopOpen()
	if err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	if id1 != 0 || string(val1) != "a" {
		t.Fatalf("id 0 was not redelivered first: got (%d, %q)", id1, val1)
	}
}

// Wait allocates a distinct id per registration, in the same sortable id
// space the rest of the package uses.
func TestWaitAllocatesDistinctIDs(t *testing.T) {
	q := openTestQueue(t)
	a := q.Wait(time.Second, func(error) {})
	b := q.Wait(time.Second, func(error) {})
	if a.Compare(b) == 0 {
		t.Fatalf("expected distinct waiter ids, got %s twice", a)
	}
	q.waiters.closeAll(ErrClosed)
}

// S4 wait then push: two waiters, first push wakes the older one only.
func TestS4WaitThenPush(t *testing.T) {
	q := openTestQueue(t)

	w1 := make(chan error, 1)
	w2 := make(chan error, 1)
	q.Wait(time.Second, func(err error) { w1 <- err })
	q.Wait(time.Second, func(err error) { w2 <- err })

	if _, err := q.Push([]byte("x")); err != nil {
		t.Fatalf("push x: %v", err)
	}

	select {
	case err := <-w1:
		if err != nil {
			t.Fatalf("w1 got %v want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("w1 never fired")
	}
	select {
	case err := <-w2:
		t.Fatalf("w2 fired early with %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// w1's wakeup was only a signal; PopOpen it to actually drain "x" before
	// pushing "y", or w2 would be satisfied by the same item w1 already saw.
	if _, _, _, err := q.PopOpen(); err != nil {
		t.Fatalf("pop_open: %v", err)
	}

	if _, err := q.Push([]byte("y")); err != nil {
		t.Fatalf("push y: %v", err)
	}
	select {
	case err := <-w2:
		if err != nil {
			t.Fatalf("w2 got %v want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("w2 never fired")
	}
}

// S5 wait timeout.
func TestS5WaitTimeout(t *testing.T) {
	q := openTestQueue(t)

	done := make(chan error, 1)
	q.Wait(10*time.Millisecond, func(err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("got %v want ErrTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never fired")
	}
	if q.waiters.len() != 0 {
		t.Fatalf("want empty waiter list, got %d", q.waiters.len())
	}
}

// S6 crash recovery: reopen redelivers an opened-but-unclosed item.
func TestS6CrashRecovery(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, v := range []string{"a", "b", "c"} {
		if _, err := q.Push([]byte(v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if _, _, _, err := q.PopOpen(); err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	// Simulate a crash: close the handle without calling PopClose.
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	q2, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q2.Close()

	if got := q2.Count(); got != 3 {
		t.Fatalf("got count %d want 3", got)
	}
	id, _, val, err := q2.PopOpen()
	if err != nil {
		t.Fatalf("pop_open after reopen: %v", err)
	}
	if id != 0 || string(val) != "a" {
		t.Fatalf("got (%d, %q), want the first item redelivered", id, val)
	}
}

func TestInputOutputStreamRoundTrip(t *testing.T) {
	q := openTestQueue(t)

	out := NewOutputStream(q)
	if err := out.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	big := make([]byte, defaultInlineThreshold+1)
	for i := range big {
		big[i] = byte(i)
	}
	half := len(big) / 2
	if err := out.Write(big[:half]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := out.Write(big[half:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := out.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	in := NewInputStream(q)
	if err := in.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if in.ID() != id {
		t.Fatalf("got id %d want %d", in.ID(), id)
	}
	var reassembled []byte
	for {
		chunk, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		reassembled = append(reassembled, chunk...)
	}
	if string(reassembled) != string(big) {
		t.Fatalf("reassembled payload does not match original")
	}
	if err := in.Close(true); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestInputStreamInlineSingleChunkOptimization(t *testing.T) {
	q := openTestQueue(t)

	out := NewOutputStream(q)
	if err := out.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := out.Write([]byte("small")); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := out.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	in := NewInputStream(q)
	if err := in.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if in.ID() != id || in.Header() != nil {
		t.Fatalf("expected inline delivery, got header %v", in.Header())
	}
	chunk, err := in.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(chunk) != "small" {
		t.Fatalf("got %q want %q", chunk, "small")
	}
	if _, err := in.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v want io.EOF", err)
	}
	if err := in.Close(true); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMaxInlineBytesOptionLowersThreshold(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, Options{MaxInlineBytes: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	out := NewOutputStream(q)
	if err := out.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	// A single 3-byte chunk exceeds the configured 2-byte threshold, so
	// Close must push a header instead of going inline.
	if err := out.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := out.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	in := NewInputStream(q)
	if err := in.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if in.ID() != id || in.Header() == nil {
		t.Fatalf("expected a header-backed item given the lowered threshold, got header %v", in.Header())
	}
	if err := in.Close(true); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOutputStreamAbortErasesChunksWithoutPush(t *testing.T) {
	q := openTestQueue(t)

	out := NewOutputStream(q)
	if err := out.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := out.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := out.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if q.Count() != 0 {
		t.Fatalf("abort should not create a queue record, got count %d", q.Count())
	}
	if _, err := q.ReadChunk(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("chunk should be erased by abort, got err=%v", err)
	}
}

func TestInputStreamCloseIsIdempotent(t *testing.T) {
	q := openTestQueue(t)
	if _, err := q.Push([]byte("v")); err != nil {
		t.Fatalf("push: %v", err)
	}

	in := NewInputStream(q)
	if err := in.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := in.Close(true); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := in.Close(true); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestCountMatchesHeadTailReturnedInvariant(t *testing.T) {
	q := openTestQueue(t)
	for _, v := range []string{"a", "b", "c"} {
		if _, err := q.Push([]byte(v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	id, _, _, err := q.PopOpen()
	if err != nil {
		t.Fatalf("pop_open: %v", err)
	}
	if err := q.PopClose(false, id, nil); err != nil {
		t.Fatalf("pop_close: %v", err)
	}
	want := (q.c.head - q.c.tail) + uint64(q.c.returned.Len())
	if got := q.Count(); got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

// EraseChunks must delete every chunk in the header's range as one batch
// and, once compactReclaimThreshold chunks have been reclaimed this way,
// trigger a compaction and reset its counter.
func TestEraseChunksBatchDeletesAndCompactsAtThreshold(t *testing.T) {
	orig := compactReclaimThreshold
	compactReclaimThreshold = 2
	defer func() { compactReclaimThreshold = orig }()

	q := openTestQueue(t)
	hdr := q.ReserveChunks(3)
	for cid := hdr.Beg; cid < hdr.End; cid++ {
		if err := q.WriteChunk(cid, []byte("x")); err != nil {
			t.Fatalf("write_chunk: %v", err)
		}
	}

	if err := q.EraseChunks(hdr); err != nil {
		t.Fatalf("erase_chunks: %v", err)
	}
	for cid := hdr.Beg; cid < hdr.End; cid++ {
		if _, err := q.ReadChunk(cid); !errors.Is(err, ErrNotFound) {
			t.Fatalf("chunk %d: got %v, want ErrNotFound", cid, err)
		}
	}
	if q.c.erasedSinceCompact != 0 {
		t.Fatalf("want erasedSinceCompact reset to 0 after crossing threshold 2 with 3 chunks, got %d", q.c.erasedSinceCompact)
	}
	if q.c.chunksLive != 0 {
		t.Fatalf("want chunksLive 0 after erasing all written chunks, got %d", q.c.chunksLive)
	}
}
