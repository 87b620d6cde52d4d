package rpc

import (
	"fmt"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// makeCapTable converts every client referenced by payload's content's
// owning message into a CapDescriptor, appending them to payload's own
// cap-descriptor list.
func (c *Conn) makeCapTable(payload rpccp.Payload) error {
	seg := payload.Segment()
	msgTab := seg.Message().CapTable()
	n := msgTab.Len()
	list, err := payload.NewCapTable(n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		client := msgTab.At(i)
		desc := rpccp.CapDescriptorAt(list, i)
		c.descriptorForClient(desc, client)
	}
	return nil
}

// descriptorForClient fills desc so the peer can reconstruct client: a
// capability that is actually an import of this very connection (i.e. the
// peer already hosts it) becomes receiverHosted with that import's id; a
// client that is itself a not-yet-settled local promise (capnp.PromiseClient)
// is exported as senderPromise, with a Resolve message to follow once it
// settles (see exportPromise); anything else is newly exported as
// senderHosted.
func (c *Conn) descriptorForClient(desc rpccp.CapDescriptor, client capnp.Client) {
	if client == nil {
		return
	}
	if ic, ok := client.(*importClient); ok && ic.conn == c {
		desc.SetReceiverHosted(uint32(ic.id))
		return
	}
	if pc, ok := client.(capnp.PromiseClient); ok {
		select {
		case <-pc.Done():
			// Already settled: fall through and export it like any other
			// resolved capability, matching the teacher's reasoning (issue
			// #2, recorded on the receiving side in populateMessageCapTable)
			// that a settled promise needs no special treatment.
		default:
			id := c.exportPromise(client.AddRef(), pc)
			desc.SetSenderPromise(uint32(id))
			return
		}
	}
	id := c.exportClient(client.AddRef())
	desc.SetSenderHosted(uint32(id))
}

// populateMessageCapTable resolves every CapDescriptor in payload's cap
// table into a live Client and appends them (in order) to the owning
// message's CapTable, so pointer fields elsewhere in the payload that
// reference a capability-table index resolve correctly.
func (c *Conn) populateMessageCapTable(payload rpccp.Payload) error {
	msg := payload.Segment().Message()
	ctab, err := payload.CapTable()
	if err != nil {
		return err
	}
	for i, n := 0, ctab.Len(); i < n; i++ {
		desc := rpccp.CapDescriptorAt(ctab, i)
		switch desc.Which() {
		case rpccp.CapDescriptor_Which_none:
			msg.AddCap(nil)
		case rpccp.CapDescriptor_Which_senderHosted:
			msg.AddCap(c.addImport(importID(desc.SenderHosted())))
		case rpccp.CapDescriptor_Which_senderPromise:
			msg.AddCap(c.addImport(importID(desc.SenderPromise())))
		case rpccp.CapDescriptor_Which_receiverHosted:
			id := exportID(desc.ReceiverHosted())
			e := c.findExport(id)
			if e == nil {
				msg.AddCap(capnp.ErrorClient(fmt.Errorf("rpc: capability table references unknown export id %d", id)))
				continue
			}
			msg.AddCap(e.client)
		case rpccp.CapDescriptor_Which_receiverAnswer:
			ra, err := desc.ReceiverAnswer()
			if err != nil {
				return err
			}
			id := answerID(ra.QuestionId())
			c.tablesMu.Lock()
			a := c.answers[id]
			c.tablesMu.Unlock()
			if a == nil {
				msg.AddCap(capnp.ErrorClient(fmt.Errorf("rpc: capability table references unknown answer id %d", id)))
				continue
			}
			transform, err := ra.Transform()
			if err != nil {
				return err
			}
			msg.AddCap(a.PipelineClient(transform))
		default:
			return errUnimplemented
		}
	}
	return nil
}
