package capnp

import "fmt"

// pointer is the in-memory decoded form of a 64-bit wire pointer word.
// Layout matches the Cap'n Proto wire format bit-for-bit:
//
//	struct:     tag 00, signed 30-bit offset, 16-bit data words, 16-bit ptr words
//	list:       tag 01, signed 30-bit offset, 3-bit element size, 29-bit count
//	far:        tag 10, 1-bit landing pad size, 29-bit segment offset, 32-bit segment id
//	capability: tag 11, 30 reserved bits, 32-bit cap table index
type pointer uint64

type ptrKind uint8

const (
	ptrKindStruct ptrKind = iota
	ptrKindList
	ptrKindFar
	ptrKindCapability
)

func (p pointer) kind() ptrKind {
	return ptrKind(p & 3)
}

func (p pointer) isZero() bool {
	return p == 0
}

// struct pointer fields
func (p pointer) structOffset() int32  { return int32(p) >> 2 }
func (p pointer) structDataSize() int16 {
	return int16(uint16(p >> 32))
}
func (p pointer) structPtrCount() int16 {
	return int16(uint16(p >> 48))
}

func newStructPointer(offset int32, dataWords, ptrWords int16) pointer {
	return pointer(uint64(uint32(offset<<2))|uint64(ptrKindStruct)) |
		pointer(uint64(uint16(dataWords))<<32) |
		pointer(uint64(uint16(ptrWords))<<48)
}

// list pointer fields
type elementSize uint8

const (
	sizeVoid elementSize = iota
	sizeBit
	sizeByte
	sizeTwoBytes
	sizeFourBytes
	sizeEightBytes
	sizePointer
	sizeInlineComposite
)

func (p pointer) listOffset() int32 { return int32(p) >> 2 }
func (p pointer) listSize() elementSize {
	return elementSize((p >> 32) & 7)
}
func (p pointer) listCount() int32 {
	return int32(p >> 35)
}

func newListPointer(offset int32, sz elementSize, count int32) pointer {
	return pointer(uint64(uint32(offset<<2))|uint64(ptrKindList)) |
		pointer(uint64(sz)<<32) |
		pointer(uint64(uint32(count))<<35)
}

// far pointer fields
func (p pointer) farTwoWordLanding() bool { return (p>>2)&1 != 0 }
func (p pointer) farSegmentOffset() int32 { return int32((p >> 3) & 0x1fffffff) }
func (p pointer) farSegmentID() SegmentID { return SegmentID(uint32(p >> 32)) }

func newFarPointer(twoWords bool, segOffset int32, segID SegmentID) pointer {
	lp := uint64(0)
	if twoWords {
		lp = 1
	}
	return pointer(uint64(ptrKindFar)) |
		pointer(lp<<2) |
		pointer(uint64(uint32(segOffset))<<3) |
		pointer(uint64(uint32(segID))<<32)
}

// capability pointer fields
func (p pointer) capabilityIndex() uint32 { return uint32(p >> 32) }

func newCapabilityPointer(index uint32) pointer {
	return pointer(uint64(ptrKindCapability)) | pointer(uint64(index)<<32)
}

// contentBytes returns the number of bytes a list's elements occupy, not
// counting an inline-composite tag word. For inline-composite lists, count
// is in words and the true per-element layout is described by the tag word
// at the start of the content (see readInlineCompositeTag).
func contentBytes(sz elementSize, count int32) int64 {
	switch sz {
	case sizeVoid:
		return 0
	case sizeBit:
		return (int64(count) + 7) / 8
	case sizeByte:
		return int64(count)
	case sizeTwoBytes:
		return int64(count) * 2
	case sizeFourBytes:
		return int64(count) * 4
	case sizeEightBytes, sizePointer:
		return int64(count) * 8
	case sizeInlineComposite:
		return int64(count) * 8
	default:
		return 0
	}
}

// farResolution is the result of following a pointer through at most two
// far-pointer hops, landing on the word that actually describes content.
type farResolution struct {
	segID   SegmentID
	wordIdx int64
	tag     pointer // the struct/list/capability pointer describing the content
}

// resolvePointer dereferences far pointers, up to two hops, returning the
// segment, word offset, and terminal tag pointer describing the content.
// It fails on self-referential far pointers, over-long chains, or
// out-of-range offsets.
func resolvePointer(msg *Message, segID SegmentID, pointerPos int64, p pointer) (farResolution, error) {
	switch p.kind() {
	case ptrKindStruct, ptrKindList, ptrKindCapability:
		return farResolution{segID: segID, wordIdx: pointerPos + 1 + int64(structOrListOffset(p)), tag: p}, nil
	case ptrKindFar:
		seg, err := msg.Segment(p.farSegmentID())
		if err != nil {
			return farResolution{}, fmt.Errorf("capnp: far pointer to unknown segment %d: %w", p.farSegmentID(), err)
		}
		landingIdx := int64(p.farSegmentOffset())
		if !p.farTwoWordLanding() {
			if landingIdx*8+8 > int64(len(seg.data)) {
				return farResolution{}, fmt.Errorf("capnp: far pointer landing pad out of range in segment %d", p.farSegmentID())
			}
			landing := pointer(seg.readUint64(landingIdx))
			if landing.kind() == ptrKindFar {
				return farResolution{}, fmt.Errorf("capnp: far pointer chain too long (landing pad is itself far)")
			}
			return resolvePointer(msg, p.farSegmentID(), landingIdx, landing)
		}
		// Double-word landing pad: first word is a far pointer to the
		// segment+offset of the actual content, second word is a tag
		// pointer (struct/list) with a zero offset describing the content.
		if landingIdx*8+16 > int64(len(seg.data)) {
			return farResolution{}, fmt.Errorf("capnp: far pointer double landing pad out of range")
		}
		contentFar := pointer(seg.readUint64(landingIdx))
		tag := pointer(seg.readUint64(landingIdx + 1))
		if contentFar.kind() != ptrKindFar || tag.kind() == ptrKindFar {
			return farResolution{}, fmt.Errorf("capnp: malformed double-word far landing pad")
		}
		contentSeg, err := msg.Segment(contentFar.farSegmentID())
		if err != nil {
			return farResolution{}, fmt.Errorf("capnp: far pointer content segment %d: %w", contentFar.farSegmentID(), err)
		}
		_ = contentSeg
		return farResolution{segID: contentFar.farSegmentID(), wordIdx: int64(contentFar.farSegmentOffset()), tag: tag}, nil
	default:
		return farResolution{}, fmt.Errorf("capnp: unknown pointer kind")
	}
}

func structOrListOffset(p pointer) int32 {
	if p.kind() == ptrKindList {
		return p.listOffset()
	}
	return p.structOffset()
}
