package rpc

import (
	"context"

	"github.com/vatkit/capnrpc/capnp"
)

// embargo is an outstanding sender-loopback disembargo this side is
// waiting to have lifted: once the matching receiver-loopback Disembargo
// arrives, every call queued behind it may proceed, preserving the order
// calls were made in on the resolved promise (the disembargo invariant).
type embargo struct {
	id   embargoID
	done chan struct{}
}

func (c *Conn) newEmbargo() *embargo {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	e := &embargo{id: embargoID(c.embargoID.next()), done: make(chan struct{})}
	if int(e.id) == len(c.embargoes) {
		c.embargoes = append(c.embargoes, e)
	} else {
		c.embargoes[e.id] = e
	}
	return e
}

// disembargo lifts the embargo id was waiting on; it is a no-op if no such
// embargo is outstanding (e.g. a duplicate or stale receiver-loopback).
func (c *Conn) disembargo(id embargoID) {
	c.tablesMu.Lock()
	if int(id) >= len(c.embargoes) || c.embargoes[id] == nil {
		c.tablesMu.Unlock()
		return
	}
	e := c.embargoes[id]
	c.embargoes[id] = nil
	c.embargoID.release(uint32(id))
	c.tablesMu.Unlock()
	close(e.done)
}

// embargoedClient defers every call to inner until e's embargo lifts,
// matching an Accept sent with embargo=true: the accepted capability may
// have been reached by a path this side also reaches via calls already in
// flight, so calls against it must wait for the matching disembargo before
// being delivered, same as a promise-resolution embargo.
type embargoedClient struct {
	e     *embargo
	inner capnp.Client
}

func (ec *embargoedClient) RecvCall(ctx context.Context, cl *capnp.Call) capnp.Answer {
	select {
	case <-ec.e.done:
		return ec.inner.RecvCall(ctx, cl)
	case <-ctx.Done():
		return capnp.ErrorAnswer(ctx.Err())
	}
}

func (ec *embargoedClient) AddRef() capnp.Client { return &embargoedClient{e: ec.e, inner: ec.inner.AddRef()} }
func (ec *embargoedClient) Release()             { ec.inner.Release() }
