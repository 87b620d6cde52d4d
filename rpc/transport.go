package rpc

import (
	"context"
	"io"

	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// Transport is how a Conn moves Message frames to and from the peer. The
// concrete implementations (rpc/transport) handle segment framing, size
// limits, and the underlying net.Conn or websocket.Conn; Conn itself only
// ever sees whole decoded Messages.
type Transport interface {
	// SendMessage sends m, blocking until it is written or ctx is done.
	SendMessage(ctx context.Context, m rpccp.Message) error
	// RecvMessage blocks until a complete Message has arrived.
	RecvMessage(ctx context.Context) (rpccp.Message, error)
	io.Closer
}
