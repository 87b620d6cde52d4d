package transport

import (
	"context"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// WebSocketTransport carries rpccp.Messages over a gorilla/websocket
// connection, one binary message per frame. Unlike StreamTransport it
// doesn't need the outer segment-count header to find message boundaries
// (the WebSocket framing already delimits them), but it reuses the same
// segment-table body so a captured frame is byte-identical whether it
// arrived over TCP or a WebSocket.
type WebSocketTransport struct {
	conn      *websocket.Conn
	limits    Limits
	budget    outboundBudget
	sendOwner ownerThread
	recvOwner ownerThread

	writeMu sync.Mutex
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn, limits Limits) *WebSocketTransport {
	return &WebSocketTransport{
		conn:   conn,
		limits: limits,
		budget: outboundBudget{limits: limits},
	}
}

func (t *WebSocketTransport) SendMessage(ctx context.Context, m rpccp.Message) error {
	t.sendOwner.assert()
	raw, err := m.Segment().Message().Marshal()
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
	err = t.conn.WriteMessage(websocket.BinaryMessage, raw)
	t.writeMu.Unlock()
	t.budget.release(len(raw))
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (t *WebSocketTransport) RecvMessage(ctx context.Context) (rpccp.Message, error) {
	t.recvOwner.assert()
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return rpccp.Message{}, err
	}
	if kind != websocket.BinaryMessage {
		return rpccp.Message{}, io.ErrUnexpectedEOF
	}
	if max := t.limits.maxFrameBytes(); max > 0 && len(data) > max {
		return rpccp.Message{}, &FrameTooLargeError{Size: len(data), Limit: max}
	}
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return rpccp.Message{}, err
	}
	return rpccp.ReadRootMessage(msg)
}

func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
