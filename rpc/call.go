package rpc

import (
	"context"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// joinAnswer blocks on src resolving and forwards its outcome into dst, the
// answer already registered for the inbound Call that produced src. It
// runs in its own goroutine so the dispatch goroutine handling inbound
// frames never blocks on a slow handler.
func joinAnswer(dst *answer, src capnp.Answer) {
	s, err := src.Struct()
	if err != nil {
		dst.reject(err)
		return
	}
	dst.fulfill(s.ToPtr())
}

// lockedCall sends cl to client and returns a capnp.Answer for the result.
// It dispatches locally for an in-process client and only goes over the
// wire for an importClient (a capability the peer actually hosts) — a
// local capability never needs to round-trip through this connection just
// because it was reached via the bootstrap or a pipelined result.
func (c *Conn) lockedCall(client capnp.Client, cl *capnp.Call) capnp.Answer {
	if client == nil {
		return capnp.ErrorAnswer(capnp.ErrNullClient)
	}
	return client.RecvCall(cl.Ctx, cl)
}

// RecvCall implements capnp.Client for a capability the peer hosts: it
// assembles and sends a Call message targeting MessageTarget_importedCap
// and returns the new question's Answer for pipelining/blocking. If a
// Resolve has revealed this import is actually reachable another way
// (embargoIfLoopback), the call dispatches locally instead — still
// respecting any outstanding loopback embargo via embargoedClient.
func (ic *importClient) RecvCall(ctx context.Context, cl *capnp.Call) capnp.Answer {
	c := ic.conn
	c.tablesMu.Lock()
	var local capnp.Client
	if e, ok := c.imports[ic.id]; ok {
		local = e.resolved
	}
	c.tablesMu.Unlock()
	if local != nil {
		return c.lockedCall(local, cl)
	}

	select {
	case <-c.mu:
		defer c.mu.Unlock()
	case <-ctx.Done():
		return capnp.ErrorAnswer(ctx.Err())
	case <-c.manager.finish:
		return capnp.ErrorAnswer(c.manager.err())
	}

	c.stats.CallsOut.Inc()
	q := c.newQuestion(&cl.Method)
	msg := c.newOutgoingMessage()
	mcall, _ := msg.NewCall()
	mcall.SetQuestionId(uint32(q.id))
	mcall.SetInterfaceId(cl.Method.InterfaceID)
	mcall.SetMethodId(cl.Method.MethodID)
	target, _ := mcall.NewTarget()
	target.SetImportedCap(uint32(ic.id))
	params, _ := mcall.NewParams()
	if err := c.fillParams(params, cl); err != nil {
		c.popQuestion(q.id)
		return capnp.ErrorAnswer(err)
	}
	q.paramCaps = c.paramCapsOf(params)

	select {
	case c.out <- msg:
		return q
	case <-ctx.Done():
		c.popQuestion(q.id)
		return capnp.ErrorAnswer(ctx.Err())
	case <-c.manager.finish:
		c.popQuestion(q.id)
		return capnp.ErrorAnswer(c.manager.err())
	}
}

// fillParams places cl's parameter struct as payload's content and
// populates its capability table from the message's CapTable, mirroring
// the teacher's fillParams helper.
func (c *Conn) fillParams(payload rpccp.Payload, cl *capnp.Call) error {
	params, err := cl.PlaceParams(payload.Segment())
	if err != nil {
		return err
	}
	content, err := capnp.Copy(payload.Segment(), params.ToPtr())
	if err != nil {
		return err
	}
	if err := payload.SetContent(content); err != nil {
		return err
	}
	return c.makeCapTable(payload)
}

// paramCapsOf reads back the export ids a just-filled Payload's cap table
// references with senderHosted, so the question can release them if the
// peer reports releaseParamCaps.
func (c *Conn) paramCapsOf(payload rpccp.Payload) []exportID {
	ctab, err := payload.CapTable()
	if err != nil {
		return nil
	}
	n := ctab.Len()
	caps := make([]exportID, 0, n)
	for i := 0; i < n; i++ {
		st := ctab.StructAt(i)
		if rpccp.CapDescriptorWhich(st.ReadUint8(0)) == rpccp.CapDescriptor_Which_senderHosted {
			caps = append(caps, exportID(st.ReadUint32(4)))
		}
	}
	return caps
}
