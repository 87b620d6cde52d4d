package rpc

import "github.com/vatkit/capnrpc/capnp"

// impent is this side's bookkeeping for one capability the peer exported
// to us: a refcounted wrapper client (so every local holder of the import
// can Release independently) plus the embargo state calls against it may
// need to respect until a disembargo completes.
//
// resolved is set by embargoIfLoopback when a Resolve reveals this import
// actually names a capability reachable another way (one we host or
// answer ourselves): once set, importClient dispatches locally through it
// instead of round-tripping a Call over the wire. While the loopback
// embargo is still pending, resolved is an embargoedClient that defers
// delivery until the matching receiverLoopback arrives.
type impent struct {
	id       importID
	rc       *refcountHandle
	cl       capnp.Client
	refs     uint32
	resolved capnp.Client
}

// refcountHandle holds a release hook for an import entry. Nothing in this
// package sets impent.rc; import references are counted in impent.refs.
type refcountHandle struct {
	release func()
}

// addImport returns a Client for the peer's export id, creating the import
// table entry on first reference and bumping its refcount on subsequent
// ones, mirroring exportClient's same-id-same-handle contract from the
// other direction.
func (c *Conn) addImport(id importID) capnp.Client {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	if c.imports == nil {
		c.imports = make(map[importID]*impent)
	}
	if e, ok := c.imports[id]; ok {
		e.refs++
		return e.cl
	}
	e := &impent{id: id, refs: 1}
	e.cl = newImportClient(c, id)
	c.imports[id] = e
	return e.cl
}

func (c *Conn) findImport(id importID) *impent {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	if c.imports == nil {
		return nil
	}
	return c.imports[id]
}

// dropImport releases one reference to id; once every reference issued by
// addImport has been released, this side sends Release(id, refs) upstream
// so the peer can retire its own export entry.
func (c *Conn) dropImport(id importID) {
	c.tablesMu.Lock()
	e, ok := c.imports[id]
	if !ok {
		c.tablesMu.Unlock()
		return
	}
	e.refs--
	dead := e.refs == 0
	if dead {
		delete(c.imports, id)
	}
	c.tablesMu.Unlock()
	if dead {
		c.sendRelease(id, 1)
	}
}

// importClient is the Client this side hands out for a peer-hosted
// capability: calls on it get wrapped into outbound Call messages
// targeting MessageTarget_importedCap.
type importClient struct {
	conn *Conn
	id   importID
}

func newImportClient(c *Conn, id importID) capnp.Client {
	return &importClient{conn: c, id: id}
}

func (ic *importClient) AddRef() capnp.Client {
	ic.conn.tablesMu.Lock()
	if e, ok := ic.conn.imports[ic.id]; ok {
		e.refs++
	}
	ic.conn.tablesMu.Unlock()
	return ic
}

func (ic *importClient) Release() {
	ic.conn.dropImport(ic.id)
}
