package transport

import (
	"context"
	"io"
	"sync"

	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// StreamTransport frames rpccp.Messages over any io.ReadWriteCloser using
// the unpacked segment framing in spec §6. NewTCPTransport and
// NewWebSocketTransport both build on it.
type StreamTransport struct {
	rwc       io.ReadWriteCloser
	limits    Limits
	budget    outboundBudget
	sendOwner ownerThread
	recvOwner ownerThread

	writeMu sync.Mutex
}

// NewStreamTransport wraps rwc, applying limits to every send and receive.
func NewStreamTransport(rwc io.ReadWriteCloser, limits Limits) *StreamTransport {
	return &StreamTransport{
		rwc:    rwc,
		limits: limits,
		budget: outboundBudget{limits: limits},
	}
}

// SendMessage implements rpc.Transport.
func (t *StreamTransport) SendMessage(ctx context.Context, m rpccp.Message) error {
	t.sendOwner.assert()
	msg := m.Segment().Message()
	raw, err := msg.Marshal()
	if err != nil {
		return err
	}
	if max := t.limits.maxFrameBytes(); max > 0 && len(raw) > max {
		return &FrameTooLargeError{Size: len(raw), Limit: max}
	}
	if err := t.budget.reserve(len(raw)); err != nil {
		return err
	}
	t.writeMu.Lock()
	_, err = t.rwc.Write(raw)
	t.writeMu.Unlock()
	t.budget.release(len(raw))
	if err != nil {
		return err
	}
	return ctx.Err()
}

// RecvMessage implements rpc.Transport.
func (t *StreamTransport) RecvMessage(ctx context.Context) (rpccp.Message, error) {
	t.recvOwner.assert()
	raw, err := readFrame(t.rwc, t.limits.maxFrameBytes())
	if err != nil {
		return rpccp.Message{}, err
	}
	return rpccp.ReadRootMessage(raw)
}

// Close implements rpc.Transport.
func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}
