package rpc

import (
	"context"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/internal/refcount"
)

type connParams struct {
	mainFunc       func(context.Context) (capnp.Client, error)
	mainCloser     closer
	sendBufferSize int
}

type closer interface{ Close() error }

// ConnOption configures a Conn at construction time.
type ConnOption struct {
	f func(*connParams)
}

// MainInterface specifies that the connection should use client as its
// bootstrap interface. The client is closed when the connection is
// closed.
func MainInterface(client capnp.Client) ConnOption {
	rc, ref1 := refcount.New(client)
	ref2 := rc.Ref()
	return ConnOption{func(p *connParams) {
		p.mainFunc = func(ctx context.Context) (capnp.Client, error) {
			return ref1, nil
		}
		p.mainCloser = refClientCloser{ref2}
	}}
}

type refClientCloser struct{ c capnp.Client }

func (r refClientCloser) Close() error {
	r.c.Release()
	return nil
}

// BootstrapFunc specifies the function to call to create a capability for
// handling bootstrap messages. The function should not make any RPCs or
// block.
func BootstrapFunc(f func(context.Context) (capnp.Client, error)) ConnOption {
	return ConnOption{func(p *connParams) {
		p.mainFunc = f
	}}
}

// SendBufferSize sets the number of outgoing messages buffered on the
// connection in addition to whatever buffering the transport performs.
func SendBufferSize(n int) ConnOption {
	return ConnOption{func(p *connParams) {
		p.sendBufferSize = n
	}}
}
