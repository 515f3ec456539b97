package queue

import "encoding/binary"

// headerSize is the encoded width of a Header: three uint64 fields.
const headerSize = 24

// Header describes a multi-chunk item: chunk ids in [Beg, End) hold its
// payload fragments, in order, totalling Size bytes.
type Header struct {
	Beg  uint64
	End  uint64
	Size uint64
}

// NumChunks returns End - Beg.
func (h Header) NumChunks() uint64 { return h.End - h.Beg }

func (h Header) encode() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(b[0:8], h.Beg)
	binary.LittleEndian.PutUint64(b[8:16], h.End)
	binary.LittleEndian.PutUint64(b[16:24], h.Size)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Beg:  binary.LittleEndian.Uint64(b[0:8]),
		End:  binary.LittleEndian.Uint64(b[8:16]),
		Size: binary.LittleEndian.Uint64(b[16:24]),
	}
}
