// Package transport provides concrete Peer I/O adapters (spec component
// C6): byte-stream framing over a TCP connection or a WebSocket, with
// configurable outbound backpressure and a thread-affinity assertion
// matching the single-threaded execution contract described in the core
// state machine's concurrency model. Conn (package rpc) only ever sees
// whole decoded rpccp.Message values; everything about wire framing,
// segment assembly, and connection limits lives here.
package transport

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// DefaultMaxFrameBytes is the frame-size ceiling applied when Limits.MaxFrameBytes
// is left at zero's normal "unlimited" meaning would otherwise apply; callers
// that truly want unlimited frames should pass a negative value.
const DefaultMaxFrameBytes = 16 << 20 // 16 MiB, matching the test bridge's limit.

// Limits bounds one connection's outbound queue and individual frame size.
// A zero Count/Bytes limit means unlimited, matching the spec's "optional
// zero meaning unlimited" contract; MaxFrameBytes of zero defaults to
// DefaultMaxFrameBytes (pass a negative value for no limit at all).
type Limits struct {
	MaxFrameBytes      int
	OutboundCountLimit int
	OutboundBytesLimit int
}

func (l Limits) maxFrameBytes() int {
	if l.MaxFrameBytes == 0 {
		return DefaultMaxFrameBytes
	}
	if l.MaxFrameBytes < 0 {
		return 0
	}
	return l.MaxFrameBytes
}

// FrameTooLargeError reports that an assembled or received frame exceeded
// its connection's configured limit.
type FrameTooLargeError struct {
	Size, Limit int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("transport: frame too large (%d bytes > %d byte limit)", e.Size, e.Limit)
}

// OutgoingQueueLimitExceededError reports that sending would exceed the
// connection's outbound count or byte budget.
type OutgoingQueueLimitExceededError struct {
	Reason string
	Limit  int
}

func (e *OutgoingQueueLimitExceededError) Error() string {
	return fmt.Sprintf("transport: outgoing queue limit exceeded (%s, limit=%d)", e.Reason, e.Limit)
}

// outboundBudget tracks how many frames and bytes are currently queued
// against a Limits, so a send that would exceed either is rejected before
// any bytes reach the wire and the queue is left exactly as it was.
type outboundBudget struct {
	limits Limits
	count  int64
	bytes  int64
}

func (b *outboundBudget) reserve(frameBytes int) error {
	if b.limits.OutboundCountLimit > 0 && atomic.LoadInt64(&b.count) >= int64(b.limits.OutboundCountLimit) {
		return &OutgoingQueueLimitExceededError{Reason: "count", Limit: b.limits.OutboundCountLimit}
	}
	if b.limits.OutboundBytesLimit > 0 && atomic.LoadInt64(&b.bytes)+int64(frameBytes) > int64(b.limits.OutboundBytesLimit) {
		return &OutgoingQueueLimitExceededError{Reason: "bytes", Limit: b.limits.OutboundBytesLimit}
	}
	atomic.AddInt64(&b.count, 1)
	atomic.AddInt64(&b.bytes, int64(frameBytes))
	return nil
}

func (b *outboundBudget) release(frameBytes int) {
	atomic.AddInt64(&b.count, -1)
	atomic.AddInt64(&b.bytes, -int64(frameBytes))
}

// ownerThread binds a call path (SendMessage, say) to whichever goroutine
// first invokes it, and asserts every later call on that same path comes
// from the same goroutine. Conn runs its send loop and recv loop as two
// distinct goroutines, so binding happens lazily per path rather than once
// at construction: a single shared owner would misfire on the very first
// RecvMessage, since the goroutine that dials or accepts the connection is
// typically neither loop. Go has no first-class thread/goroutine identity,
// so this uses the same trick several runtime-adjacent packages use: parse
// the goroutine id out of a runtime.Stack dump. It is a debug aid, not a
// correctness mechanism — skip it in hot paths that already hold another
// lock proving single-threaded access.
type ownerThread struct {
	id int64 // 0 means unbound; goroutine ids are always positive.
}

func (o *ownerThread) assert() {
	id := goroutineID()
	bound := atomic.CompareAndSwapInt64(&o.id, 0, id)
	if !bound && atomic.LoadInt64(&o.id) != id {
		panic(fmt.Sprintf("transport: called from goroutine %d, owned by %d", id, atomic.LoadInt64(&o.id)))
	}
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id int64
	// Stack dumps start with "goroutine <id> [...]"; skip the literal prefix
	// and parse digits greedily.
	const prefix = "goroutine "
	b := buf[:n]
	if len(b) <= len(prefix) || string(b[:len(prefix)]) != prefix {
		return -1
	}
	b = b[len(prefix):]
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
