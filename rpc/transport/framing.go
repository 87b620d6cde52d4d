package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vatkit/capnrpc/capnp"
)

// readFrame reads one segment-framed message from r per the wire format in
// spec §6: a u32 segment-count-minus-one, N u32 word counts padded to a
// multiple of 8 bytes, then the segment bodies back to back. maxBytes <= 0
// means unlimited. readFrame reads only the segment count and word-count
// table, to size the read and enforce maxBytes; decoding the segments is
// delegated to capnp.Unmarshal once the whole frame is buffered.
func readFrame(r io.Reader, maxBytes int) (*capnp.Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	segCount := int(binary.LittleEndian.Uint32(hdr[:])) + 1
	if segCount <= 0 {
		return nil, fmt.Errorf("transport: invalid segment count")
	}
	headerWords := 1 + (segCount+1)/2
	rest := make([]byte, headerWords*8-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	wordCounts := make([]uint32, segCount)
	var totalBytes int64
	for i := 0; i < segCount; i++ {
		off := 4 * i
		wordCounts[i] = binary.LittleEndian.Uint32(rest[off : off+4])
		totalBytes += int64(wordCounts[i]) * 8
	}
	if maxBytes > 0 && totalBytes > int64(maxBytes) {
		return nil, &FrameTooLargeError{Size: int(totalBytes), Limit: maxBytes}
	}

	frame := make([]byte, 4+len(rest)+int(totalBytes))
	copy(frame, hdr[:])
	copy(frame[4:], rest)
	if _, err := io.ReadFull(r, frame[4+len(rest):]); err != nil {
		return nil, err
	}
	return capnp.Unmarshal(frame)
}
