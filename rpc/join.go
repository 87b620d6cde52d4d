package rpc

import (
	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

// joinPart is one leg of a multi-path join: the answer id this vat owes a
// Return to, and the capability that leg's Join message resolved to.
type joinPart struct {
	answer answerID
	target capnp.Client
}

// joinState accumulates every leg of one joinId until partCount of them
// have arrived, at which point completeJoin compares them all for
// identity.
type joinState struct {
	partCount uint16
	parts     map[uint16]joinPart
}

type joinInsertResult int

const (
	joinInserted joinInsertResult = iota
	joinInsertedReady
	joinPartCountMismatch
	joinDuplicatePart
)

// insertJoinPart records one leg of joinId, returning whether every part
// has now arrived.
func (c *Conn) insertJoinPart(joinID uint32, partCount, partNum uint16, aid answerID, target capnp.Client) joinInsertResult {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	if c.joins == nil {
		c.joins = make(map[uint32]*joinState)
	}
	js, ok := c.joins[joinID]
	if !ok {
		js = &joinState{partCount: partCount, parts: make(map[uint16]joinPart)}
		c.joins[joinID] = js
	} else if js.partCount != partCount {
		return joinPartCountMismatch
	}
	if _, dup := js.parts[partNum]; dup {
		return joinDuplicatePart
	}
	js.parts[partNum] = joinPart{answer: aid, target: target}
	if len(js.parts) == int(js.partCount) {
		return joinInsertedReady
	}
	return joinInserted
}

// popJoin removes and returns the join state for joinID once it has been
// completed (or abandoned), freeing it for reuse by a later joinId that
// happens to collide numerically across unrelated introductions.
func (c *Conn) popJoin(joinID uint32) *joinState {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	js := c.joins[joinID]
	delete(c.joins, joinID)
	return js
}

// completeJoin fans out a Return to every leg of joinID: results carrying
// the agreed-upon capability if every leg's resolved target was the same
// client, otherwise exception("join target mismatch") to each. A
// per-leg send failure degrades that one leg to an exception return
// rather than failing the whole join.
func (c *Conn) completeJoin(joinID uint32) {
	js := c.popJoin(joinID)
	if js == nil {
		return
	}
	var first capnp.Client
	agree := true
	for i := uint16(0); i < js.partCount; i++ {
		p, ok := js.parts[i]
		if !ok {
			agree = false
			break
		}
		if first == nil {
			first = p.target
		} else if !sameClient(first, p.target) {
			agree = false
		}
	}
	for _, p := range js.parts {
		var err error
		if agree {
			err = c.sendReturnResults(p.answer, func(payload rpccp.Payload) error {
				seg := payload.Segment()
				capIdx := seg.Message().AddCap(p.target.AddRef())
				in := capnp.NewInterface(seg, capIdx)
				if err := payload.SetContent(in.ToPtr()); err != nil {
					return err
				}
				return c.makeCapTable(payload)
			})
		} else {
			err = c.sendReturnException(p.answer, rpcerr.JoinTargetMismatch())
		}
		if err != nil {
			c.sendReturnException(p.answer, err)
		}
	}
}

// handleJoinMessage processes one leg of a multi-path join: it resolves
// this leg's target locally and, once every part for the joinId has
// arrived, completes the join for all of them.
func (c *Conn) handleJoinMessage(m rpccp.Message) error {
	j, err := m.Join()
	if err != nil {
		return err
	}
	aid := answerID(j.QuestionId())
	target, err := j.Target()
	if err != nil {
		return err
	}
	client, err := c.resolveTargetClient(target)
	if err != nil {
		return c.sendReturnException(aid, err)
	}
	keyPtr, err := j.KeyPart()
	if err != nil {
		return err
	}
	key := rpccp.JoinKeyPartFromPtr(keyPtr)

	switch c.insertJoinPart(key.JoinId(), key.PartCount(), key.PartNum(), aid, client) {
	case joinDuplicatePart:
		err := rpcerr.DuplicateJoinQuestion()
		c.abort(err)
		return err
	case joinPartCountMismatch:
		err := rpcerr.Violationf("rpc: join %d part count mismatch", key.JoinId())
		c.abort(err)
		return err
	case joinInsertedReady:
		c.completeJoin(key.JoinId())
	case joinInserted:
		// Waiting on the remaining legs.
	}
	return nil
}
