// Package rpctest is the deterministic two-peer test bridge (spec
// component C7): an in-memory Transport pair a test can drive frame by
// frame with pushFrame/popOutgoingFrame, a fixed bootstrap stub for tests
// that don't care what the bootstrap capability is, and a
// PumpUntilQuiescent driver for end-to-end tests that need both peers'
// Conns to settle before asserting. Grounded in the `cloudflare-cloudflared`
// vendored rpc_test.go idiom of a paired pipe transport alternately
// drained by each side.
package rpctest

import (
	"context"
	"sync"
	"time"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// MaxFrameBytes bounds every frame the bridge will carry, matching the
// transport package's own default.
const MaxFrameBytes = 16 << 20

// Endpoint is one side of a bridged pair: it implements rpc.Transport, so
// it can be handed straight to rpc.NewConn, but SendMessage only queues a
// frame rather than delivering it — delivery happens when a test (or
// PumpUntilQuiescent) calls PopOutgoingFrame on this side and PushFrame on
// the peer.
type Endpoint struct {
	outbox chan rpccp.Message
	inbox  chan rpccp.Message

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBridge returns two Endpoints, each one's outgoing queue the other's
// delivery target once pumped.
func NewBridge() (a, b *Endpoint) {
	a = &Endpoint{outbox: make(chan rpccp.Message, 256), inbox: make(chan rpccp.Message, 256), closed: make(chan struct{})}
	b = &Endpoint{outbox: make(chan rpccp.Message, 256), inbox: make(chan rpccp.Message, 256), closed: make(chan struct{})}
	return a, b
}

// SendMessage implements rpc.Transport: it marshals m (enforcing
// MaxFrameBytes the way a real transport would) and queues it for a later
// PopOutgoingFrame; it never blocks on the peer.
func (e *Endpoint) SendMessage(ctx context.Context, m rpccp.Message) error {
	raw, err := m.Segment().Message().Marshal()
	if err != nil {
		return err
	}
	if len(raw) > MaxFrameBytes {
		return &rpcerr.FrameTooLarge{Size: len(raw), Limit: MaxFrameBytes}
	}
	select {
	case e.outbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return context.Canceled
	}
}

// RecvMessage implements rpc.Transport: it blocks until a test (or
// PumpUntilQuiescent) delivers a frame via PushFrame.
func (e *Endpoint) RecvMessage(ctx context.Context) (rpccp.Message, error) {
	select {
	case m := <-e.inbox:
		return m, nil
	case <-ctx.Done():
		return rpccp.Message{}, ctx.Err()
	case <-e.closed:
		return rpccp.Message{}, context.Canceled
	}
}

// Close implements rpc.Transport.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

// PopOutgoingFrame removes and returns the oldest message this Endpoint's
// Conn has sent but that hasn't yet been delivered, or ok=false if none is
// pending.
func (e *Endpoint) PopOutgoingFrame() (m rpccp.Message, ok bool) {
	select {
	case m = <-e.outbox:
		return m, true
	default:
		return rpccp.Message{}, false
	}
}

// PushFrame delivers m to this Endpoint's own Conn, as if it had just
// arrived over the wire.
func (e *Endpoint) PushFrame(m rpccp.Message) {
	e.inbox <- m
}

// BootstrapClient returns a capability that fails every call with
// rpcerr.BootstrapStub, for tests whose Conn needs *a* bootstrap but never
// actually calls it.
func BootstrapClient() capnp.Client {
	return capnp.ErrorClient(rpcerr.BootstrapStub())
}

// PumpUntilQuiescent alternately pops each side's outgoing frames and
// pushes them to the other, until a full round moves nothing or ctx is
// done. It's for tests that issue a call and then need both peers' table
// state settled (questions answered, finishes sent) before asserting.
func PumpUntilQuiescent(ctx context.Context, a, b *Endpoint) error {
	for {
		moved := false
		for {
			m, ok := a.PopOutgoingFrame()
			if !ok {
				break
			}
			b.PushFrame(m)
			moved = true
		}
		for {
			m, ok := b.PopOutgoingFrame()
			if !ok {
				break
			}
			a.PushFrame(m)
			moved = true
		}
		if !moved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// StartPump runs PumpUntilQuiescent on a tight tick in the background
// until ctx is done, for tests whose Conns are driven by real dispatchSend/
// dispatchRecv goroutines and so queue frames asynchronously rather than
// on the calling goroutine's own schedule (unlike the package's other
// single-shot, synchronous-call tests). The returned stop func blocks
// until the pump goroutine has exited.
func StartPump(ctx context.Context, a, b *Endpoint) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := PumpUntilQuiescent(ctx, a, b); err != nil {
					return
				}
			}
		}
	}()
	return func() { <-done }
}

var _ rpc.Transport = (*Endpoint)(nil)
