package rpc

import "github.com/vatkit/capnrpc/capnp"

// export is one capability this side has exposed to the peer: a client
// plus the number of references the peer currently holds (how many times
// this export id has appeared in a CapDescriptor sent outbound minus how
// many Release messages have come back).
//
// isPromise/resolved/brokenErr track the Export entity's promise state
// (spec §3, §4.5.7): an export created from a still-unresolved local
// promise is advertised to the peer as senderPromise rather than
// senderHosted, and this side owes it a follow-up Resolve message once the
// promise settles. isPromise stays true for the export's whole life even
// after resolved flips to true — it records how the export was introduced,
// not whether it's still pending — so planImportedTarget can still tell a
// settled promise export apart from one that was senderHosted from the
// start.
type export struct {
	id        exportID
	client    capnp.Client
	refs      uint32
	isPromise bool
	resolved  bool
	brokenErr error
}

// findExport returns the connection's known export by id, or nil.
func (c *Conn) findExport(id exportID) *export {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	if int(id) >= len(c.exports) {
		return nil
	}
	return c.exports[id]
}

// exportClient finds client already present in the export table and bumps
// its refcount, or creates a new export entry for it, returning the id
// either way. Matches setBootstrap's "same handler -> same id" contract.
func (c *Conn) exportClient(client capnp.Client) exportID {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	for _, e := range c.exports {
		if e != nil && sameClient(e.client, client) {
			e.refs++
			return e.id
		}
	}
	e := &export{client: client, refs: 1, resolved: true}
	c.insertExport(e)
	return e.id
}

// exportPromise is exportClient's counterpart for a client that is itself
// an unresolved local promise (capnp.PromiseClient): the new export is
// marked isPromise so descriptorForClient advertises it as senderPromise,
// and a goroutine is started to send the peer a Resolve message once the
// promise settles.
func (c *Conn) exportPromise(client capnp.Client, pc capnp.PromiseClient) exportID {
	c.tablesMu.Lock()
	for _, e := range c.exports {
		if e != nil && sameClient(e.client, client) {
			e.refs++
			c.tablesMu.Unlock()
			return e.id
		}
	}
	e := &export{client: client, refs: 1, isPromise: true}
	c.insertExport(e)
	c.tablesMu.Unlock()
	go c.resolveExport(e, pc)
	return e.id
}

// insertExport assigns e an id and adds it to the export table. Callers
// must hold tablesMu.
func (c *Conn) insertExport(e *export) {
	e.id = exportID(c.exportID.next())
	if int(e.id) == len(c.exports) {
		c.exports = append(c.exports, e)
	} else {
		c.exports[e.id] = e
	}
}

// resolveExport waits for pc (the promise backing e) to settle, then marks
// e resolved and sends the peer the Resolve message it's owed: a CapDescriptor
// for the settled capability, or an exception if the promise broke. If e was
// released before settling, no message is sent — the peer has already
// forgotten the id.
func (c *Conn) resolveExport(e *export, pc capnp.PromiseClient) {
	<-pc.Done()
	settled, settleErr := pc.Settled()

	c.tablesMu.Lock()
	live := int(e.id) < len(c.exports) && c.exports[e.id] == e
	if live {
		e.resolved = true
		e.brokenErr = settleErr
	}
	c.tablesMu.Unlock()
	if !live {
		return
	}

	m := c.newOutgoingMessage()
	res, err := m.NewResolve()
	if err != nil {
		return
	}
	res.SetPromiseId(uint32(e.id))
	if settleErr != nil {
		exc, err := res.NewException()
		if err != nil {
			return
		}
		toException(exc, settleErr)
	} else {
		desc, err := res.NewCap()
		if err != nil {
			return
		}
		c.descriptorForClient(desc, settled)
	}
	c.sendMessage(m)
}

func sameClient(a, b capnp.Client) bool { return a == b }

// releaseExport drops refs references to id, destroying (and releasing)
// the underlying client once the count reaches zero. Releasing more
// references than were ever emitted, or an id that isn't live, is a no-op:
// the refcount-conservation invariant is the caller's job to uphold, not
// this method's to enforce by panicking.
func (c *Conn) releaseExport(id exportID, refs uint32) {
	c.tablesMu.Lock()
	if int(id) >= len(c.exports) || c.exports[id] == nil {
		c.tablesMu.Unlock()
		return
	}
	e := c.exports[id]
	if refs >= e.refs {
		e.refs = 0
	} else {
		e.refs -= refs
	}
	dead := e.refs == 0
	if dead {
		c.exports[id] = nil
		c.exportID.release(uint32(id))
	}
	c.tablesMu.Unlock()
	if dead {
		e.client.Release()
	}
}

// releaseAllExports tears down every still-live export, used when the
// connection itself is shutting down.
func (c *Conn) releaseAllExports() {
	c.tablesMu.Lock()
	exports := c.exports
	c.exports = nil
	c.tablesMu.Unlock()
	for _, e := range exports {
		if e != nil {
			e.client.Release()
		}
	}
}
