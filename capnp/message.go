package capnp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message is a tree of Cap'n Proto objects, split across one or more
// Segments, plus the table of capabilities referenced from it.
type Message struct {
	arena    Arena
	segs     map[SegmentID]*Segment
	capTable []Client
}

// NewMessage allocates a new Message with a root struct pointer slot and
// returns the message and its first segment.
func NewMessage(arena Arena) (*Message, *Segment, error) {
	m := &Message{arena: arena, segs: map[SegmentID]*Segment{}}
	seg, err := m.Segment(0)
	if err != nil {
		return nil, nil, err
	}
	if len(seg.data) < 8 {
		if _, ok := seg.alloc(8); !ok {
			return nil, nil, fmt.Errorf("capnp: cannot allocate root pointer")
		}
	}
	return m, seg, nil
}

// NewSingleSegmentMessage is a convenience constructor mirroring the
// generated-code idiom of building a message and grabbing its first
// segment in one call.
func NewSingleSegmentMessage(buf []byte) (*Message, *Segment) {
	m, s, err := NewMessage(SingleSegment(buf))
	if err != nil {
		panic(err)
	}
	return m, s
}

// Segment returns the segment with the given id, creating it from the
// arena's backing storage on first access.
func (m *Message) Segment(id SegmentID) (*Segment, error) {
	if s, ok := m.segs[id]; ok {
		return s, nil
	}
	data, ok := m.arena.segmentData(id)
	if !ok {
		return nil, fmt.Errorf("capnp: no such segment %d", id)
	}
	s := &Segment{msg: m, id: id, data: data}
	m.segs[id] = s
	return s, nil
}

// CapTable returns the message's capability table, indexed by
// capability-pointer table index.
func (m *Message) CapTable() *CapTable {
	return (*CapTable)(m)
}

// AddCap appends c to the message's capability table and returns its
// index. Every call adds a new slot, even if c is already present.
func (m *Message) AddCap(c Client) uint32 {
	m.capTable = append(m.capTable, c)
	return uint32(len(m.capTable) - 1)
}

// ClientAt returns the capability at index i, or a nil Client if out of
// range (never happens for a well-formed message, but readers must not
// panic on malformed input).
func (m *Message) ClientAt(i uint32) Client {
	if int(i) >= len(m.capTable) {
		return nil
	}
	return m.capTable[i]
}

// rootSegmentID is always 0 by convention: every message's first word is
// its root pointer.
const rootSegmentID SegmentID = 0

// SetRoot installs p as the message's root pointer.
func (m *Message) SetRoot(p Ptr) error {
	seg, err := m.Segment(rootSegmentID)
	if err != nil {
		return err
	}
	return writePointer(seg, 0, p)
}

// Root returns the message's root pointer as a generic Ptr.
func (m *Message) Root() (Ptr, error) {
	seg, err := m.Segment(rootSegmentID)
	if err != nil {
		return Ptr{}, err
	}
	return readPointer(seg, 0)
}

// RootStruct is a convenience for the common case of a struct-typed root.
func (m *Message) RootStruct(sz ObjectSize) (Struct, error) {
	seg, err := m.Segment(rootSegmentID)
	if err != nil {
		return Struct{}, err
	}
	s, err := NewStruct(seg, sz)
	if err != nil {
		return Struct{}, err
	}
	if err := writePointer(seg, 0, s.ToPtr()); err != nil {
		return Struct{}, err
	}
	return s, nil
}

func (m *Message) allocRootPointerSpace() (*Segment, error) {
	return m.Segment(rootSegmentID)
}

// NewRootStruct allocates and installs a fresh struct of size sz as seg's
// message's root.
func NewRootStruct(seg *Segment, sz ObjectSize) (Struct, error) {
	return seg.msg.RootStruct(sz)
}

// --- Frame codec (C1 framing) ---
//
// Header: u32 segment-count-minus-one (LE), N x u32 word counts, padded to
// a multiple of 8 bytes with zero. Body: each segment's bytes back to
// back, each already a multiple of 8 bytes.

// WriteTo encodes m as a single frame (header + segment bodies) onto w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	n := m.arena.NumSegments()
	headerWords := 1 + (n+1)/2
	header := make([]byte, headerWords*8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(n-1))
	var total int64
	segs := make([][]byte, n)
	for i := 0; i < n; i++ {
		data, ok := m.arena.segmentData(SegmentID(i))
		if !ok {
			return total, fmt.Errorf("capnp: missing segment %d while encoding", i)
		}
		segs[i] = data
		binary.LittleEndian.PutUint32(header[4+4*i:8+4*i], uint32(len(data)/8))
	}
	wn, err := w.Write(header)
	total += int64(wn)
	if err != nil {
		return total, err
	}
	for _, data := range segs {
		wn, err := w.Write(data)
		total += int64(wn)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Marshal encodes m to a newly allocated byte slice.
func (m *Message) Marshal() ([]byte, error) {
	var buf sliceWriter
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// Unmarshal decodes a single frame from data into a Message backed by a
// MultiSegment arena over views of data (no copy of segment bodies).
func Unmarshal(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("capnp: frame too short for header")
	}
	n := int(binary.LittleEndian.Uint32(data[0:4])) + 1
	if n <= 0 {
		return nil, fmt.Errorf("capnp: invalid segment count")
	}
	headerWords := 1 + (n+1)/2
	headerBytes := headerWords * 8
	if len(data) < headerBytes {
		return nil, fmt.Errorf("capnp: frame too short for segment table")
	}
	wordCounts := make([]int, n)
	for i := 0; i < n; i++ {
		off := 4 + 4*i
		wordCounts[i] = int(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	body := data[headerBytes:]
	segs := make([][]byte, n)
	pos := 0
	for i, wc := range wordCounts {
		sz := wc * 8
		if pos+sz > len(body) {
			return nil, fmt.Errorf("capnp: segment %d out of range (want %d bytes, have %d)", i, sz, len(body)-pos)
		}
		segs[i] = body[pos : pos+sz]
		pos += sz
	}
	m := &Message{arena: MultiSegment(segs), segs: map[SegmentID]*Segment{}}
	return m, nil
}

type sliceWriter struct{ b []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// CapTable is a thin typed view over Message's capability table, matching
// the zombiezen/go-capnproto2 idiom of exposing it as a first-class type
// that callers can range over or append to directly.
type CapTable Message

// Add appends c and returns its new index.
func (t *CapTable) Add(c Client) uint32 {
	return (*Message)(t).AddCap(c)
}

// At returns the client at index i.
func (t *CapTable) At(i uint32) Client {
	return (*Message)(t).ClientAt(i)
}

// Len returns the number of entries in the table.
func (t *CapTable) Len() int {
	return len((*Message)(t).capTable)
}
