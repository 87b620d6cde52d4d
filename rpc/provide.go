package rpc

import (
	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

// provideState is bookkeeping for one three-party introduction this vat is
// hosting the capability for: Provide named a question id (tracked so a
// Finish can tear it down) and an opaque recipient key that a later Accept
// from the introduced party redeems.
type provideState struct {
	id     questionID
	key    string
	client capnp.Client
}

// resolveTargetClient resolves a MessageTarget naming a capability this
// side can reach locally, for the handful of message kinds (Provide, Join)
// that need the Client itself rather than wanting to deliver a call
// against it. For a promisedAnswer target this never blocks: per spec §5,
// C5's state transitions all run to completion without waiting on I/O, so
// an answer that hasn't settled yet is reported as unresolved rather than
// waited on.
func (c *Conn) resolveTargetClient(mt rpccp.MessageTarget) (capnp.Client, error) {
	switch mt.Which() {
	case rpccp.MessageTarget_Which_importedCap:
		id := exportID(mt.ImportedCap())
		e := c.findExport(id)
		if e == nil {
			return nil, rpcerr.UnknownCapability()
		}
		return e.client, nil
	case rpccp.MessageTarget_Which_promisedAnswer:
		mp, err := mt.PromisedAnswer()
		if err != nil {
			return nil, err
		}
		id := answerID(mp.QuestionId())
		c.tablesMu.Lock()
		a := c.answers[id]
		c.tablesMu.Unlock()
		if a == nil {
			return nil, rpcerr.UnknownPromisedCapability()
		}
		transform, err := mp.Transform()
		if err != nil {
			return nil, err
		}
		ans := a.Peek()
		if ans == nil {
			return nil, rpcerr.PromisedCapabilityUnresolved()
		}
		s, err := ans.Struct()
		if err != nil {
			return nil, rpcerr.PromiseBroken()
		}
		p, err := capnp.TransformPtr(s.ToPtr(), transform)
		if err != nil {
			return nil, err
		}
		if !p.IsValid() {
			return nil, rpcerr.PromiseBroken()
		}
		cl := p.Interface().Client()
		if cl == nil {
			return nil, rpcerr.PromiseBroken()
		}
		return cl, nil
	default:
		return nil, errBadTarget
	}
}

// recipientKey flattens an opaque, vat-network-defined Recipient (or
// Provision/JoinKeyPart sibling) pointer into a byte string usable as a
// map key. Two Provide/Accept calls naming "the same" recipient only ever
// agree if their serialized bytes match, which holds for the common case
// of a vat network representing recipients as Data or a small struct with
// no far pointers — this runtime never constructs one any other way.
func recipientKey(p capnp.Ptr) (string, error) {
	if !p.IsValid() {
		return "", nil
	}
	_, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PtrCount: 1})
	if err != nil {
		return "", err
	}
	cp, err := capnp.Copy(seg, p)
	if err != nil {
		return "", err
	}
	if err := root.SetPtr(0, cp); err != nil {
		return "", err
	}
	b, err := seg.Message().Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// handleProvideMessage registers this vat (the host of the named
// capability) as ready to hand it off to whichever peer later redeems
// recipient with a matching Accept.
func (c *Conn) handleProvideMessage(m rpccp.Message) error {
	p, err := m.Provide()
	if err != nil {
		return err
	}
	qid := questionID(p.QuestionId())
	target, err := p.Target()
	if err != nil {
		return err
	}
	client, err := c.resolveTargetClient(target)
	if err != nil {
		c.abort(err)
		return err
	}
	recipient, err := p.Recipient()
	if err != nil {
		return err
	}
	key, err := recipientKey(recipient)
	if err != nil {
		return err
	}
	if key == "" {
		err := rpcerr.ProvideMissingRecipient()
		c.abort(err)
		return err
	}

	c.tablesMu.Lock()
	if c.provides == nil {
		c.provides = make(map[questionID]*provideState)
	}
	if _, dup := c.provides[qid]; dup {
		c.tablesMu.Unlock()
		err := rpcerr.DuplicateProvideQuestion()
		c.abort(err)
		return err
	}
	for _, ps := range c.provides {
		if ps.key == key {
			c.tablesMu.Unlock()
			err := rpcerr.DuplicateProvideRecipient()
			c.abort(err)
			return err
		}
	}
	c.provides[qid] = &provideState{id: qid, key: key, client: client}
	c.tablesMu.Unlock()
	return nil
}

// popProvide removes and returns the provide registered under qid, if any;
// used when Finish cancels a Provide that was never redeemed.
func (c *Conn) popProvide(qid questionID) *provideState {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	ps := c.provides[qid]
	delete(c.provides, qid)
	return ps
}
