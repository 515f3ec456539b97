package queue

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// QUEUE values are framed with a one-byte discriminator ahead of the
// payload: a 24-byte inline item would otherwise be indistinguishable from
// an encoded Header of the same width.
const (
	tagInline byte = 0
	tagHeader byte = 1
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// encodeInlineRecord frames a small item's raw bytes for storage at a
// QUEUE key: tag | value | crc32c(tag|value).
func encodeInlineRecord(value []byte) []byte {
	return encodeRecord(tagInline, value)
}

// encodeHeaderRecord frames an encoded Header for storage at a QUEUE key.
func encodeHeaderRecord(h Header) []byte {
	return encodeRecord(tagHeader, h.encode())
}

func encodeRecord(tag byte, body []byte) []byte {
	out := make([]byte, 1+len(body)+4)
	out[0] = tag
	copy(out[1:], body)
	crc := crc32.Checksum(out[:1+len(body)], castagnoli)
	binary.BigEndian.PutUint32(out[1+len(body):], crc)
	return out
}

// decodeRecord validates and strips the envelope, returning the tag and
// the unframed payload (inline bytes, or an encoded header).
func decodeRecord(rec []byte) (tag byte, body []byte, err error) {
	if len(rec) < 5 {
		return 0, nil, fmt.Errorf("queue: record too short to be a valid QUEUE entry (%d bytes)", len(rec))
	}
	body = rec[1 : len(rec)-4]
	want := binary.BigEndian.Uint32(rec[len(rec)-4:])
	got := crc32.Checksum(rec[:len(rec)-4], castagnoli)
	if got != want {
		return 0, nil, fmt.Errorf("queue: record checksum mismatch (got %08x want %08x)", got, want)
	}
	return rec[0], body, nil
}
