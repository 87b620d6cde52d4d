package capnp

import "fmt"

// maxSegmentWords bounds how large a single segment may grow; matches the
// common zombiezen/go-capnproto2 default of 1<<32 words, clamped down here
// to keep fuzz/property tests fast without changing observable semantics
// for any message this module itself produces.
const maxSegmentWords = 1 << 30

// Arena is the allocation policy for a Message: how many segments it has
// and how each one may grow. SingleSegment and MultiSegment are the two
// arenas this module ships; both satisfy the "no pointer references past a
// segment's current extent" invariant by construction (alloc never hands
// back a region the segment doesn't yet own).
type Arena interface {
	NumSegments() int
	segmentData(id SegmentID) ([]byte, bool)
	segmentLimit(id SegmentID) int64
	// allocateSegment is called when no existing segment can satisfy an
	// allocation; it returns the id of a (possibly new) segment with at
	// least minSize free bytes.
	allocateSegment(minSize int64) (SegmentID, error)
	// setSegmentData installs data as the current bytes for id, after a
	// Segment has grown via append.
	setSegmentData(id SegmentID, data []byte)
}

type singleSegmentArena struct {
	data []byte
}

// SingleSegment returns an Arena that keeps a message in one contiguous
// segment, growing it as needed. buf may be nil or a preallocated buffer
// to reuse; its length must be a multiple of 8.
func SingleSegment(buf []byte) Arena {
	return &singleSegmentArena{data: buf}
}

func (a *singleSegmentArena) NumSegments() int { return 1 }

func (a *singleSegmentArena) segmentData(id SegmentID) ([]byte, bool) {
	if id != 0 {
		return nil, false
	}
	return a.data, true
}

func (a *singleSegmentArena) segmentLimit(id SegmentID) int64 {
	if id != 0 {
		return 0
	}
	return maxSegmentWords * 8
}

func (a *singleSegmentArena) allocateSegment(minSize int64) (SegmentID, error) {
	return 0, fmt.Errorf("capnp: single-segment arena cannot grow past segment 0")
}

func (a *singleSegmentArena) setSegmentData(id SegmentID, data []byte) {
	if id == 0 {
		a.data = data
	}
}

type multiSegmentArena struct {
	segs [][]byte
}

// MultiSegment returns an Arena that places each allocation that doesn't
// fit the current segment into a fresh new segment, connected back via
// far pointers. segs may be nil or a preexisting set of segment buffers
// (e.g. from decoding a frame).
func MultiSegment(segs [][]byte) Arena {
	if segs == nil {
		segs = [][]byte{nil}
	}
	return &multiSegmentArena{segs: segs}
}

func (a *multiSegmentArena) NumSegments() int { return len(a.segs) }

func (a *multiSegmentArena) segmentData(id SegmentID) ([]byte, bool) {
	if int(id) >= len(a.segs) {
		return nil, false
	}
	return a.segs[id], true
}

func (a *multiSegmentArena) segmentLimit(id SegmentID) int64 {
	if int(id) >= len(a.segs) {
		return 0
	}
	return maxSegmentWords * 8
}

func (a *multiSegmentArena) allocateSegment(minSize int64) (SegmentID, error) {
	id := SegmentID(len(a.segs))
	sz := minSize
	if sz < 4096 {
		sz = 4096
	}
	a.segs = append(a.segs, make([]byte, 0, sz))
	return id, nil
}

func (a *multiSegmentArena) setSegmentData(id SegmentID, data []byte) {
	if int(id) < len(a.segs) {
		a.segs[id] = data
	}
}
