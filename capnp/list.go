package capnp

import "fmt"

// List is a reader/builder over a Cap'n Proto list of any element size.
type List struct {
	ptr Ptr
	// dataOff is the word index (in ptr.seg) where element data actually
	// begins: equal to ptr.off for every list kind except inline-composite,
	// where it is ptr.off+1 (skipping the leading tag word).
	dataOff int64
	// count is the element count. For inline-composite lists this is
	// decoded from the tag word, NOT the wire pointer's own count field
	// (which holds total content words for that list kind).
	count int32
	// elemDataWords/elemPtrCount only apply to inline-composite lists,
	// decoded from the leading tag word.
	elemDataWords int16
	elemPtrCount  int16
}

// IsValid reports whether l refers to an actual list (false for NULL).
func (l List) IsValid() bool { return l.ptr.IsValid() }

func (l List) ToPtr() Ptr { return l.ptr }

// Len returns the number of elements.
func (l List) Len() int {
	if !l.IsValid() {
		return 0
	}
	return int(l.count)
}

func (l List) elementSize() elementSize { return l.ptr.flags.lsize }

// readInlineCompositeTag decodes the struct-style tag word that precedes
// an inline-composite list's elements, populating per-element layout and
// returning the true element count (the pointer's own count field holds
// total words for inline-composite, not element count).
func readInlineCompositeTag(seg *Segment, wordIdx int64) (count int32, dataWords, ptrCount int16) {
	tag := seg.readPointer(wordIdx)
	return tag.structOffset(), tag.structDataSize(), tag.structPtrCount()
}

// NewCompositeList allocates an inline-composite list of n elements, each
// of size sz, in seg.
func NewCompositeList(seg *Segment, sz ObjectSize, n int32) (List, error) {
	elemBytes := int64(sz.DataWords+sz.PtrCount) * 8
	total := 8 + elemBytes*int64(n) // leading tag word + elements
	wordIdx, ok := seg.alloc(total)
	if !ok {
		newSeg, err := allocateInNewSegment(seg.msg, total)
		if err != nil {
			return List{}, err
		}
		seg = newSeg
		wordIdx, ok = seg.alloc(total)
		if !ok {
			return List{}, fmt.Errorf("capnp: cannot allocate composite list")
		}
	}
	// The tag word's "offset" field doubles as the element count for
	// inline-composite lists.
	seg.writeUint64(wordIdx, uint64(uint32(n))<<2|uint64(ptrKindStruct)|uint64(uint16(sz.DataWords))<<32|uint64(uint16(sz.PtrCount))<<48)
	words := sz.DataWords + sz.PtrCount
	totalWords := int32(1) + n*int32(words)
	lp := Ptr{seg: seg, off: wordIdx, flags: ptrFlags{kind: ptrKindList, lsize: sizeInlineComposite, lcount: totalWords}}
	return List{ptr: lp, dataOff: wordIdx + 1, count: n, elemDataWords: sz.DataWords, elemPtrCount: sz.PtrCount}, nil
}

// NewPointerList allocates a list of n pointers in seg.
func NewPointerList(seg *Segment, n int32) (List, error) {
	return newPrimList(seg, sizePointer, n)
}

// NewUInt8List, NewUInt16List, NewUInt32List, NewUInt64List allocate
// fixed-width primitive lists.
func NewUInt8List(seg *Segment, n int32) (List, error)  { return newPrimList(seg, sizeByte, n) }
func NewUInt16List(seg *Segment, n int32) (List, error) { return newPrimList(seg, sizeTwoBytes, n) }
func NewUInt32List(seg *Segment, n int32) (List, error) { return newPrimList(seg, sizeFourBytes, n) }
func NewUInt64List(seg *Segment, n int32) (List, error) { return newPrimList(seg, sizeEightBytes, n) }
func NewBitList(seg *Segment, n int32) (List, error)    { return newPrimList(seg, sizeBit, n) }

func newPrimList(seg *Segment, sz elementSize, n int32) (List, error) {
	total := contentBytes(sz, n)
	wordIdx, ok := seg.alloc(total)
	if !ok {
		newSeg, err := allocateInNewSegment(seg.msg, total)
		if err != nil {
			return List{}, err
		}
		seg = newSeg
		wordIdx, ok = seg.alloc(total)
		if !ok {
			return List{}, fmt.Errorf("capnp: cannot allocate list")
		}
	}
	return List{ptr: Ptr{seg: seg, off: wordIdx, flags: ptrFlags{kind: ptrKindList, lsize: sz, lcount: n}}, dataOff: wordIdx, count: n}, nil
}

// StructAt returns the i'th element of an inline-composite list as a
// Struct view sharing the list's backing bytes.
func (l List) StructAt(i int) Struct {
	if !l.IsValid() || l.elementSize() != sizeInlineComposite || i < 0 || i >= l.Len() {
		return Struct{}
	}
	words := int64(l.elemDataWords + l.elemPtrCount)
	off := l.dataOff + int64(i)*words
	return Struct{ptr: Ptr{seg: l.ptr.seg, off: off, flags: ptrFlags{kind: ptrKindStruct, dataWrds: l.elemDataWords, ptrCount: l.elemPtrCount}}}
}

// PtrAt returns the i'th element of a pointer list.
func (l List) PtrAt(i int) (Ptr, error) {
	if !l.IsValid() || l.elementSize() != sizePointer || i < 0 || i >= l.Len() {
		return Ptr{}, nil
	}
	return readPointer(l.ptr.seg, l.dataOff+int64(i))
}

// SetPtrAt installs p as the i'th element of a pointer list.
func (l List) SetPtrAt(i int, p Ptr) error {
	if !l.IsValid() || l.elementSize() != sizePointer || i < 0 || i >= l.Len() {
		return ErrOutOfBounds
	}
	return writePointer(l.ptr.seg, l.dataOff+int64(i), p)
}

func (l List) byteOffsetOf(i int, width int64) (int64, bool) {
	if !l.IsValid() || i < 0 || i >= l.Len() {
		return 0, false
	}
	return l.dataOff*8 + int64(i)*width, true
}

func (l List) Uint8At(i int) uint8 {
	off, ok := l.byteOffsetOf(i, 1)
	if !ok {
		return 0
	}
	return l.ptr.seg.data[off]
}

func (l List) SetUint8At(i int, v uint8) {
	off, ok := l.byteOffsetOf(i, 1)
	if !ok {
		return
	}
	l.ptr.seg.data[off] = v
}

func (l List) Uint16At(i int) uint16 {
	off, ok := l.byteOffsetOf(i, 2)
	if !ok {
		return 0
	}
	return leUint16(l.ptr.seg.data[off:])
}

func (l List) SetUint16At(i int, v uint16) {
	off, ok := l.byteOffsetOf(i, 2)
	if !ok {
		return
	}
	putLEUint16(l.ptr.seg.data[off:], v)
}

func (l List) Uint32At(i int) uint32 {
	off, ok := l.byteOffsetOf(i, 4)
	if !ok {
		return 0
	}
	return leUint32(l.ptr.seg.data[off:])
}

func (l List) SetUint32At(i int, v uint32) {
	off, ok := l.byteOffsetOf(i, 4)
	if !ok {
		return
	}
	putLEUint32(l.ptr.seg.data[off:], v)
}

func (l List) Uint64At(i int) uint64 {
	off, ok := l.byteOffsetOf(i, 8)
	if !ok {
		return 0
	}
	return leUint64(l.ptr.seg.data[off:])
}

func (l List) SetUint64At(i int, v uint64) {
	off, ok := l.byteOffsetOf(i, 8)
	if !ok {
		return
	}
	putLEUint64(l.ptr.seg.data[off:], v)
}

func (l List) BitAt(i int) bool {
	if !l.IsValid() || i < 0 || i >= l.Len() {
		return false
	}
	byteIdx := l.dataOff*8 + int64(i/8)
	if byteIdx >= int64(len(l.ptr.seg.data)) {
		return false
	}
	return l.ptr.seg.data[byteIdx]&(1<<uint(i%8)) != 0
}

func (l List) SetBitAt(i int, v bool) {
	if !l.IsValid() || i < 0 || i >= l.Len() {
		return
	}
	byteIdx := l.dataOff*8 + int64(i/8)
	if byteIdx >= int64(len(l.ptr.seg.data)) {
		return
	}
	mask := uint8(1) << uint(i%8)
	if v {
		l.ptr.seg.data[byteIdx] |= mask
	} else {
		l.ptr.seg.data[byteIdx] &^= mask
	}
}
