package capnp

import "encoding/binary"

// SegmentID identifies a segment within a Message.
type SegmentID uint32

// Segment is one 8-byte-aligned slab of a Message's backing memory.
type Segment struct {
	msg  *Message
	id   SegmentID
	data []byte
}

// Message returns the message that owns the segment.
func (s *Segment) Message() *Message { return s.msg }

// ID returns the segment's index within its message.
func (s *Segment) ID() SegmentID { return s.id }

// Data returns the raw bytes backing the segment.
func (s *Segment) Data() []byte { return s.data }

func (s *Segment) readUint64(wordIdx int64) uint64 {
	off := wordIdx * 8
	if off < 0 || off+8 > int64(len(s.data)) {
		return 0
	}
	return binary.LittleEndian.Uint64(s.data[off : off+8])
}

func (s *Segment) writeUint64(wordIdx int64, v uint64) {
	off := wordIdx * 8
	if off < 0 || off+8 > int64(len(s.data)) {
		return
	}
	binary.LittleEndian.PutUint64(s.data[off:off+8], v)
}

func (s *Segment) readPointer(wordIdx int64) pointer {
	return pointer(s.readUint64(wordIdx))
}

func (s *Segment) writePointer(wordIdx int64, p pointer) {
	s.writeUint64(wordIdx, uint64(p))
}

// inBounds reports whether the half-open byte range [start, end) lies
// entirely within the segment's current extent.
func (s *Segment) inBounds(start, end int64) bool {
	return start >= 0 && end >= start && end <= int64(len(s.data))
}

// alloc grows the segment by sz bytes (rounded up to a word) and returns
// the word index of the newly allocated region, or ok=false if it does not
// fit and the caller must use a far pointer into another segment.
func (s *Segment) alloc(sz int64) (wordIdx int64, ok bool) {
	sz = (sz + 7) &^ 7
	if int64(s.msg.arena.segmentLimit(s.id))-int64(len(s.data)) < sz {
		return 0, false
	}
	wordIdx = int64(len(s.data)) / 8
	s.data = append(s.data, make([]byte, sz)...)
	s.msg.arena.setSegmentData(s.id, s.data)
	return wordIdx, true
}
