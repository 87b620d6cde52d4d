package rpc

import (
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// copyMessageTarget reproduces src's variant (importedCap or promisedAnswer)
// into dst, which lives in a different outgoing Message's segment: src's
// pointer can't just be planted into dst's slot, since far pointers never
// resolve across independent message arenas.
func copyMessageTarget(dst, src rpccp.MessageTarget) error {
	switch src.Which() {
	case rpccp.MessageTarget_Which_importedCap:
		dst.SetImportedCap(src.ImportedCap())
		return nil
	case rpccp.MessageTarget_Which_promisedAnswer:
		spa, err := src.PromisedAnswer()
		if err != nil {
			return err
		}
		transform, err := spa.Transform()
		if err != nil {
			return err
		}
		dpa, err := dst.NewPromisedAnswer()
		if err != nil {
			return err
		}
		dpa.SetQuestionId(spa.QuestionId())
		return dpa.SetTransform(transform)
	default:
		return errDisembargoNonImport
	}
}

// handleDisembargoMessage processes both directions of the disembargo
// handshake: a senderLoopback is this peer asking us to echo back a
// receiverLoopback once every call it sent before the embargo has been
// delivered; a receiverLoopback lifts an embargo this side is itself
// waiting on (originated by embargoIfLoopback).
//
// A senderLoopback targeting a promisedAnswer is delivered through that
// answer's Fulfiller queue, which replays queued calls strictly in arrival
// order, so waiting on the answer settling is sufficient to know every
// such call is already delivered. A senderLoopback targeting importedCap
// (the promise-resolves-to-a-loopback-capability case driven by
// embargoIfLoopback) needs no such wait at all: calls to an export are
// routed synchronously from this connection's single inbound-message
// dispatch loop, so by the time this Disembargo is itself being processed,
// every Call message the peer sent ahead of it has already been routed.
func (c *Conn) handleDisembargoMessage(msg rpccp.Message) error {
	d, err := msg.Disembargo()
	if err != nil {
		return err
	}
	dtarget, err := d.Target()
	if err != nil {
		return err
	}
	switch d.Context().Which() {
	case rpccp.Disembargo_context_Which_senderLoopback:
		id := embargoID(d.Context().SenderLoopback())
		switch dtarget.Which() {
		case rpccp.MessageTarget_Which_promisedAnswer:
			dpa, err := dtarget.PromisedAnswer()
			if err != nil {
				return err
			}
			aid := answerID(dpa.QuestionId())
			c.tablesMu.Lock()
			a := c.answers[aid]
			c.tablesMu.Unlock()
			if a == nil {
				return errDisembargoMissingAnswer
			}
			<-a.Done()
		case rpccp.MessageTarget_Which_importedCap:
			eid := exportID(dtarget.ImportedCap())
			if c.findExport(eid) == nil {
				return errDisembargoCapMismatch
			}
		default:
			return errDisembargoNonImport
		}
		resp := c.newOutgoingMessage()
		rd, _ := resp.NewDisembargo()
		rd.Context().SetReceiverLoopback(uint32(id))
		rtarget, err := rd.NewTarget()
		if err != nil {
			return err
		}
		if err := copyMessageTarget(rtarget, dtarget); err != nil {
			return err
		}
		return c.sendMessage(resp)
	case rpccp.Disembargo_context_Which_receiverLoopback:
		id := embargoID(d.Context().ReceiverLoopback())
		c.disembargo(id)
	default:
		um := c.newOutgoingMessage()
		u, _ := um.NewUnimplemented()
		body, _ := msg.Struct().Ptr(0)
		u.SetOriginal(msg.Which(), body)
		c.sendMessage(um)
	}
	return nil
}
