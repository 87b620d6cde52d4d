package capnp

import "fmt"

// ObjectSize describes the data and pointer section sizes of a struct, in
// words. Size (in bytes) of the data section is DataWords*8.
type ObjectSize struct {
	DataWords int16
	PtrCount  int16
}

// ptrFlags is deliberately unexported: callers only ever see Ptr, Struct,
// List, or Interface, never the raw tag.
type ptrFlags struct {
	kind     ptrKind
	dataWrds int16
	ptrCount int16
	lsize    elementSize
	lcount   int32
	capIndex uint32
}

func (f ptrFlags) ptrType() ptrKind { return f.kind }

// Ptr is a generic, possibly-invalid pointer into a Message: a struct, a
// list, a capability, or nothing (the NULL pointer). A zero Ptr (Seg ==
// nil) is the canonical "not present" value and every accessor on Struct/
// List/Interface built from it returns defaulted, zero-valued results
// rather than panicking — this is the NULL-pointer default-value contract
// schema evolution depends on.
type Ptr struct {
	seg   *Segment
	off   int64 // word index of content start
	flags ptrFlags
}

// IsValid reports whether p refers to an actual object rather than being
// the NULL default.
func (p Ptr) IsValid() bool { return p.seg != nil }

func (p Ptr) Segment() *Segment { return p.seg }

// Struct returns p as a Struct, or the zero Struct if p is not struct- or
// NULL-typed.
func (p Ptr) Struct() Struct {
	if !p.IsValid() {
		return Struct{}
	}
	if p.flags.kind != ptrKindStruct {
		return Struct{}
	}
	return Struct{ptr: p}
}

// List returns p as a List, or the zero List if p is not list-typed.
func (p Ptr) List() List {
	if !p.IsValid() || p.flags.kind != ptrKindList {
		return List{}
	}
	if p.flags.lsize == sizeInlineComposite {
		n, dw, pc := readInlineCompositeTag(p.seg, p.off)
		return List{ptr: p, dataOff: p.off + 1, count: n, elemDataWords: dw, elemPtrCount: pc}
	}
	return List{ptr: p, dataOff: p.off, count: p.flags.lcount}
}

// Interface returns p as an Interface, or the zero Interface if p is not
// capability-typed.
func (p Ptr) Interface() Interface {
	if !p.IsValid() || p.flags.kind != ptrKindCapability {
		return Interface{}
	}
	return Interface{ptr: p}
}

// readPointer decodes the pointer word at wordIdx in seg, following far
// pointers, and returns the resulting generic Ptr. A zero wire word yields
// an invalid (NULL) Ptr, never an error.
func readPointer(seg *Segment, wordIdx int64) (Ptr, error) {
	raw := seg.readPointer(wordIdx)
	if raw.isZero() {
		return Ptr{}, nil
	}
	res, err := resolvePointer(seg.msg, seg.id, wordIdx, raw)
	if err != nil {
		return Ptr{}, err
	}
	targetSeg, err := seg.msg.Segment(res.segID)
	if err != nil {
		return Ptr{}, err
	}
	switch res.tag.kind() {
	case ptrKindStruct:
		dw, pc := res.tag.structDataSize(), res.tag.structPtrCount()
		if !targetSeg.inBounds(res.wordIdx*8, (res.wordIdx+int64(dw)+int64(pc))*8) {
			return Ptr{}, fmt.Errorf("capnp: struct pointer out of bounds in segment %d", res.segID)
		}
		return Ptr{seg: targetSeg, off: res.wordIdx, flags: ptrFlags{kind: ptrKindStruct, dataWrds: dw, ptrCount: pc}}, nil
	case ptrKindList:
		sz, cnt := res.tag.listSize(), res.tag.listCount()
		nwords := int64(0)
		if sz == sizeInlineComposite {
			nwords = int64(cnt)
		} else {
			nwords = (contentBytes(sz, cnt) + 7) / 8
		}
		if !targetSeg.inBounds(res.wordIdx*8, (res.wordIdx+nwords)*8) {
			return Ptr{}, fmt.Errorf("capnp: list pointer out of bounds in segment %d", res.segID)
		}
		return Ptr{seg: targetSeg, off: res.wordIdx, flags: ptrFlags{kind: ptrKindList, lsize: sz, lcount: cnt}}, nil
	case ptrKindCapability:
		return Ptr{seg: targetSeg, off: res.wordIdx, flags: ptrFlags{kind: ptrKindCapability, capIndex: res.tag.capabilityIndex()}}, nil
	default:
		return Ptr{}, fmt.Errorf("capnp: unexpected resolved pointer kind")
	}
}

// writePointer encodes p into the pointer word at wordIdx in seg, planting
// a far pointer (single- or double-word landing pad) when p lives in a
// different segment than seg or is out of single-word offset range.
func writePointer(seg *Segment, wordIdx int64, p Ptr) error {
	if !p.IsValid() {
		seg.writePointer(wordIdx, 0)
		return nil
	}
	tag, err := tagFor(p)
	if err != nil {
		return err
	}
	if p.seg == seg {
		offset := p.off - (wordIdx + 1)
		if offset >= -(1<<29) && offset < (1<<29) {
			seg.writePointer(wordIdx, retag(tag, int32(offset)))
			return nil
		}
	}
	// Cross-segment (or too-far same-segment): try a single-word landing
	// pad co-located with the content.
	if landingIdx, ok := p.seg.alloc(8); ok {
		landingOffset := p.off - (landingIdx + 1)
		if landingOffset >= -(1<<29) && landingOffset < (1<<29) {
			p.seg.writePointer(landingIdx, retag(tag, int32(landingOffset)))
			seg.writePointer(wordIdx, newFarPointer(false, int32(landingIdx), p.seg.id))
			return nil
		}
	}
	// Double-word landing pad: first word is a far pointer straight at the
	// content, second word is the tag (offset unused by readers).
	landingIdx, ok := seg.alloc(16)
	if !ok {
		return fmt.Errorf("capnp: cannot allocate double-word landing pad")
	}
	seg.writePointer(landingIdx, newFarPointer(false, int32(p.off), p.seg.id))
	seg.writePointer(landingIdx+1, retag(tag, 0))
	seg.writePointer(wordIdx, newFarPointer(true, int32(landingIdx), seg.id))
	return nil
}

func tagFor(p Ptr) (pointer, error) {
	switch p.flags.kind {
	case ptrKindStruct:
		return newStructPointer(0, p.flags.dataWrds, p.flags.ptrCount), nil
	case ptrKindList:
		return newListPointer(0, p.flags.lsize, p.flags.lcount), nil
	case ptrKindCapability:
		return newCapabilityPointer(p.flags.capIndex), nil
	default:
		return 0, fmt.Errorf("capnp: cannot tag pointer of unknown kind")
	}
}

// retag rewrites tag's offset field, keeping its kind-specific payload.
func retag(tag pointer, offset int32) pointer {
	switch tag.kind() {
	case ptrKindStruct:
		return newStructPointer(offset, tag.structDataSize(), tag.structPtrCount())
	case ptrKindList:
		return newListPointer(offset, tag.listSize(), tag.listCount())
	default:
		return tag
	}
}

// Struct is a reader/builder over a fixed-layout struct: a data section of
// DataWords*8 bytes followed by PtrCount pointer words.
type Struct struct {
	ptr Ptr
}

// NewStruct allocates a struct of size sz in seg and returns it unattached
// to any pointer slot (the caller installs it with Struct.SetPtr or
// Message.SetRoot).
func NewStruct(seg *Segment, sz ObjectSize) (Struct, error) {
	total := int64(sz.DataWords+sz.PtrCount) * 8
	wordIdx, ok := seg.alloc(total)
	if !ok {
		newSeg, err := allocateInNewSegment(seg.msg, total)
		if err != nil {
			return Struct{}, err
		}
		seg = newSeg
		wordIdx, ok = seg.alloc(total)
		if !ok {
			return Struct{}, fmt.Errorf("capnp: cannot allocate struct of size %v", sz)
		}
	}
	return Struct{ptr: Ptr{seg: seg, off: wordIdx, flags: ptrFlags{kind: ptrKindStruct, dataWrds: sz.DataWords, ptrCount: sz.PtrCount}}}, nil
}

func allocateInNewSegment(msg *Message, minSize int64) (*Segment, error) {
	id, err := msg.arena.allocateSegment(minSize)
	if err != nil {
		return nil, err
	}
	return msg.Segment(id)
}

// IsValid reports whether the struct is backed by an actual pointer
// (false for the NULL-pointer default).
func (s Struct) IsValid() bool { return s.ptr.IsValid() }

// ToPtr upcasts s to a generic Ptr.
func (s Struct) ToPtr() Ptr { return s.ptr }

// Segment returns the segment the struct's data lives in.
func (s Struct) Segment() *Segment { return s.ptr.seg }

// Size reports the struct's data/pointer section sizes.
func (s Struct) Size() ObjectSize {
	return ObjectSize{DataWords: s.ptr.flags.dataWrds, PtrCount: s.ptr.flags.ptrCount}
}

func (s Struct) dataSizeBytes() int64 { return int64(s.ptr.flags.dataWrds) * 8 }

// --- data section accessors ---
//
// Reads past the data section return the schema default (zero, since this
// module does not encode non-zero defaults). Writes past the data section
// are silently dropped unless Strict* is used.

func (s Struct) byteInBounds(byteOffset, width int64) bool {
	return s.IsValid() && byteOffset >= 0 && byteOffset+width <= s.dataSizeBytes()
}

func (s Struct) ReadUint8(byteOffset int64) uint8 {
	if !s.byteInBounds(byteOffset, 1) {
		return 0
	}
	return s.ptr.seg.data[s.ptr.off*8+byteOffset]
}

func (s Struct) ReadBool(byteOffset int64, bit uint) bool {
	byteIdx := byteOffset + int64(bit/8)
	if !s.byteInBounds(byteIdx, 1) {
		return false
	}
	return s.ptr.seg.data[s.ptr.off*8+byteIdx]&(1<<(bit%8)) != 0
}

func (s Struct) ReadUint16(byteOffset int64) uint16 {
	if !s.byteInBounds(byteOffset, 2) {
		return 0
	}
	return leUint16(s.ptr.seg.data[s.ptr.off*8+byteOffset:])
}

func (s Struct) ReadUint32(byteOffset int64) uint32 {
	if !s.byteInBounds(byteOffset, 4) {
		return 0
	}
	return leUint32(s.ptr.seg.data[s.ptr.off*8+byteOffset:])
}

func (s Struct) ReadUint64(byteOffset int64) uint64 {
	if !s.byteInBounds(byteOffset, 8) {
		return 0
	}
	return leUint64(s.ptr.seg.data[s.ptr.off*8+byteOffset:])
}

// WriteUint8 writes v at byteOffset, silently dropping the write if it
// falls outside the struct's data section (schema-evolution contract).
func (s Struct) WriteUint8(byteOffset int64, v uint8) {
	if !s.byteInBounds(byteOffset, 1) {
		return
	}
	s.ptr.seg.data[s.ptr.off*8+byteOffset] = v
}

func (s Struct) WriteBool(byteOffset int64, bit uint, v bool) {
	byteIdx := byteOffset + int64(bit/8)
	if !s.byteInBounds(byteIdx, 1) {
		return
	}
	p := &s.ptr.seg.data[s.ptr.off*8+byteIdx]
	mask := uint8(1) << (bit % 8)
	if v {
		*p |= mask
	} else {
		*p &^= mask
	}
}

func (s Struct) WriteUint16(byteOffset int64, v uint16) {
	if !s.byteInBounds(byteOffset, 2) {
		return
	}
	putLEUint16(s.ptr.seg.data[s.ptr.off*8+byteOffset:], v)
}

func (s Struct) WriteUint32(byteOffset int64, v uint32) {
	if !s.byteInBounds(byteOffset, 4) {
		return
	}
	putLEUint32(s.ptr.seg.data[s.ptr.off*8+byteOffset:], v)
}

func (s Struct) WriteUint64(byteOffset int64, v uint64) {
	if !s.byteInBounds(byteOffset, 8) {
		return
	}
	putLEUint64(s.ptr.seg.data[s.ptr.off*8+byteOffset:], v)
}

// ErrOutOfBounds is returned by the Strict* accessor variants instead of
// silently dropping an out-of-range write.
var ErrOutOfBounds = fmt.Errorf("capnp: write offset out of bounds")

// StrictWriteUint64 is WriteUint64 but fails loudly instead of dropping
// the write when byteOffset falls outside the struct's data section.
func (s Struct) StrictWriteUint64(byteOffset int64, v uint64) error {
	if !s.byteInBounds(byteOffset, 8) {
		return ErrOutOfBounds
	}
	s.WriteUint64(byteOffset, v)
	return nil
}

// --- pointer section accessors ---

func (s Struct) ptrSectionStart() int64 { return s.ptr.off + int64(s.ptr.flags.dataWrds) }

// Ptr returns the i'th pointer field, or an invalid (NULL) Ptr if i is
// past the struct's pointer section (schema evolution: older readers of a
// newer struct simply see fewer fields) or the slot itself is NULL.
func (s Struct) Ptr(i int) (Ptr, error) {
	if !s.IsValid() || i < 0 || int16(i) >= s.ptr.flags.ptrCount {
		return Ptr{}, nil
	}
	return readPointer(s.ptr.seg, s.ptrSectionStart()+int64(i))
}

// SetPtr installs p as the struct's i'th pointer field.
func (s Struct) SetPtr(i int, p Ptr) error {
	if !s.IsValid() || i < 0 || int16(i) >= s.ptr.flags.ptrCount {
		return ErrOutOfBounds
	}
	return writePointer(s.ptr.seg, s.ptrSectionStart()+int64(i), p)
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leUint64(b []byte) uint64 {
	return uint64(leUint32(b)) | uint64(leUint32(b[4:]))<<32
}
func putLEUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLEUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func putLEUint64(b []byte, v uint64) {
	putLEUint32(b, uint32(v))
	putLEUint32(b[4:], uint32(v>>32))
}
