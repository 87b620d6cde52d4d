package rpc

import (
	"fmt"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// handleBootstrapMessage answers a received Bootstrap: it is not a method
// call, so the bootstrap handler (if any) is invoked directly rather than
// dispatched through a Client.
func (c *Conn) handleBootstrapMessage(id answerID) error {
	ctx, cancel := c.newContext()
	defer cancel()
	a := c.insertAnswer(id, cancel)
	if a == nil {
		return c.sendReturnException(id, errQuestionReused)
	}
	if c.mainFunc == nil {
		a.reject(errNoMainInterface)
		return c.sendReturnException(id, errNoMainInterface)
	}
	main, err := c.mainFunc(ctx)
	if err != nil {
		a.reject(errNoMainInterface)
		return c.sendReturnException(id, errNoMainInterface)
	}
	return c.sendReturnResults(id, func(payload rpccp.Payload) error {
		seg := payload.Segment()
		capIdx := seg.Message().AddCap(main.AddRef())
		in := capnp.NewInterface(seg, capIdx)
		if err := payload.SetContent(in.ToPtr()); err != nil {
			return err
		}
		wrapped, err := wrapBareCapability(seg, in.ToPtr())
		if err != nil {
			return err
		}
		a.Fulfill(wrapped)
		return c.makeCapTable(payload)
	})
}

// sendReturnResults builds and sends a Return carrying results, calling
// build to populate the payload.
func (c *Conn) sendReturnResults(id answerID, build func(rpccp.Payload) error) error {
	c.stats.ReturnsOut.Inc()
	m := c.newOutgoingMessage()
	ret, _ := m.NewReturn()
	ret.SetAnswerId(uint32(id))
	ret.SetReleaseParamCaps(false)
	results, err := ret.NewResults()
	if err != nil {
		return err
	}
	if err := build(results); err != nil {
		return err
	}
	return c.sendMessage(m)
}

// sendReturnException builds and sends a Return carrying an exception.
func (c *Conn) sendReturnException(id answerID, cause error) error {
	c.stats.ReturnsOut.Inc()
	m := c.newOutgoingMessage()
	ret, _ := m.NewReturn()
	ret.SetAnswerId(uint32(id))
	exc, err := ret.NewException()
	if err != nil {
		return err
	}
	toException(exc, cause)
	return c.sendMessage(m)
}

// handleCallMessage dispatches an inbound Call to its target, registering
// a new answer for it.
func (c *Conn) handleCallMessage(m rpccp.Message) error {
	c.stats.CallsIn.Inc()
	mcall, err := m.Call()
	if err != nil {
		return err
	}
	mt, err := mcall.Target()
	if err != nil {
		return err
	}
	if mt.Which() != rpccp.MessageTarget_Which_importedCap && mt.Which() != rpccp.MessageTarget_Which_promisedAnswer {
		um := c.newOutgoingMessage()
		u, _ := um.NewUnimplemented()
		body, _ := m.Struct().Ptr(0)
		u.SetOriginal(m.Which(), body)
		return c.sendMessage(um)
	}
	mparams, err := mcall.Params()
	if err != nil {
		return err
	}
	if err := c.populateMessageCapTable(mparams); err != nil {
		c.abort(err)
		return err
	}
	ctx, cancel := c.newContext()
	id := answerID(mcall.QuestionId())
	a := c.insertAnswer(id, cancel)
	if a == nil {
		cancel()
		err := errQuestionReused
		c.abort(err)
		return err
	}
	content, err := mparams.Content()
	if err != nil {
		return err
	}
	cl := &capnp.Call{
		Ctx:    ctx,
		Method: capnp.Method{InterfaceID: mcall.InterfaceId(), MethodID: mcall.MethodId()},
		Params: content.Struct(),
	}
	if err := c.routeCallMessage(a, mt, cl); err != nil {
		a.reject(err)
		return c.sendReturnException(id, err)
	}
	go c.awaitAnswer(a)
	return nil
}

// awaitAnswer sends the Return once a is resolved.
func (c *Conn) awaitAnswer(a *answer) {
	<-a.Done()
	s, err := a.Struct()
	if err != nil {
		c.sendReturnException(a.id, err)
		return
	}
	c.sendReturnResults(a.id, func(payload rpccp.Payload) error {
		content, err := capnp.Copy(payload.Segment(), s.ToPtr())
		if err != nil {
			return err
		}
		if err := payload.SetContent(content); err != nil {
			return err
		}
		return c.makeCapTable(payload)
	})
}

// routeCallMessage sends cl to the capability mt identifies, forwarding
// the eventual result into result. Both branches compute their plan inputs
// and dispatch on planImportedTarget/planPromisedTarget (spec §4.5.2/
// §4.5.3) rather than deciding inline, so the decision itself stays a pure,
// table-tested function and this method is left doing only I/O.
func (c *Conn) routeCallMessage(result *answer, mt rpccp.MessageTarget, cl *capnp.Call) error {
	switch mt.Which() {
	case rpccp.MessageTarget_Which_importedCap:
		return c.routeImportedCall(result, mt, cl)
	case rpccp.MessageTarget_Which_promisedAnswer:
		return c.routePromisedCall(result, mt, cl)
	default:
		return fmt.Errorf("rpc: unreachable target kind %v", mt.Which())
	}
}

// routeImportedCall handles a Call whose MessageTarget is importedCap.
func (c *Conn) routeImportedCall(result *answer, mt rpccp.MessageTarget, cl *capnp.Call) error {
	id := exportID(mt.ImportedCap())
	e := c.findExport(id)
	hasExport := e != nil
	var isPromise, resolvedCap, hasHandler bool
	if hasExport {
		isPromise = e.isPromise
		resolvedCap = e.resolved
		hasHandler = e.brokenErr == nil
	}
	switch planImportedTarget(hasExport, isPromise, resolvedCap, hasHandler) {
	case planUnknownCapability:
		return rpcerr.UnknownCapability()
	case planPromiseBroken:
		return e.brokenErr
	case planMissingExportHandler:
		return rpcerr.MissingExportHandler()
	case planQueuePromiseExport, planHandleResolved, planCallHandler:
		// All three dispatch identically: e.client (a capnp.Client, possibly
		// a not-yet-settled capnp.PromiseClient) already knows how to queue
		// a call against itself until it resolves, via the same
		// fulfiller/pipeline machinery a promisedAnswer target uses.
		ans := c.lockedCall(e.client, cl)
		go joinAnswer(result, ans)
		return nil
	default:
		return fmt.Errorf("rpc: unreachable import plan")
	}
}

// routePromisedCall handles a Call whose MessageTarget is promisedAnswer.
func (c *Conn) routePromisedCall(result *answer, mt rpccp.MessageTarget, cl *capnp.Call) error {
	mpromise, err := mt.PromisedAnswer()
	if err != nil {
		return err
	}
	id := answerID(mpromise.QuestionId())
	selfTarget := id == result.id

	c.tablesMu.Lock()
	pa := c.answers[id]
	c.tablesMu.Unlock()
	hasAnswer := pa != nil

	transform, err := mpromise.Transform()
	if err != nil {
		return err
	}

	var resolved bool
	var resolvedErr error
	var hasCapAtTarget, exportIsPromise bool
	if hasAnswer && !selfTarget {
		if ans := pa.Peek(); ans != nil {
			resolved = true
			s, serr := ans.Struct()
			if serr != nil {
				resolvedErr = serr
			} else if ptr, terr := capnp.TransformPtr(s.ToPtr(), transform); terr != nil {
				resolvedErr = terr
			} else if ptr.IsValid() {
				if target := ptr.Interface().Client(); target != nil {
					hasCapAtTarget = true
					if pc, ok := target.(capnp.PromiseClient); ok {
						select {
						case <-pc.Done():
						default:
							exportIsPromise = true
						}
					}
				}
			}
		}
	}

	switch planPromisedTarget(hasAnswer, selfTarget, resolved, resolvedErr, hasCapAtTarget, exportIsPromise) {
	case planSendException:
		switch {
		case selfTarget:
			return rpcerr.Failedf("rpc: call targets its own in-progress answer")
		case !hasAnswer:
			return rpcerr.UnknownPromisedCapability()
		case resolvedErr != nil:
			return resolvedErr
		default:
			return rpcerr.MissingPromisedCapabilityHandler()
		}
	case planQueuePromisedCall, planQueueExportPromise, planPromisedHandleResolved:
		// pa.PipelineCall already forwards immediately once resolved and
		// queues otherwise (internal/fulfiller), so queue_promised_call and
		// queue_export_promise need no separate queuing step here.
		ans := pa.PipelineCall(cl.Ctx, transform, cl)
		go joinAnswer(result, ans)
		return nil
	default:
		return fmt.Errorf("rpc: unreachable promised plan")
	}
}

// handleReturnMessage processes a Return for one of our own questions.
func (c *Conn) handleReturnMessage(m rpccp.Message) error {
	c.stats.ReturnsIn.Inc()
	ret, err := m.Return()
	if err != nil {
		return err
	}
	id := questionID(ret.AnswerId())
	q := c.popQuestion(id)
	if q == nil {
		return fmt.Errorf("rpc: received return for unknown question id=%d", id)
	}
	if ret.ReleaseParamCaps() {
		for _, capID := range q.paramCaps {
			c.releaseExport(capID, 1)
		}
	}
	if q.currentState() == questionCanceled {
		return nil
	}
	releaseResultCaps := true
	switch ret.Which() {
	case rpccp.Return_Which_results:
		releaseResultCaps = false
		results, err := ret.Results()
		if err != nil {
			return err
		}
		if err := c.populateMessageCapTable(results); err != nil {
			c.abort(err)
			return err
		}
		content, err := results.Content()
		if err != nil {
			return err
		}
		q.markResolved()
		if q.method == nil {
			// Bootstrap: content is a bare capability, not a struct.
			wrapped, err := wrapBareCapability(content.Segment(), content)
			if err != nil {
				return err
			}
			q.Fulfill(wrapped)
		} else {
			q.Fulfill(content.Struct())
		}
	case rpccp.Return_Which_exception:
		exc, err := ret.Exception()
		if err != nil {
			return err
		}
		var e error = Exception{exc}
		if q.method != nil {
			e = &capnp.MethodError{Method: *q.method, Err: e}
		} else {
			e = bootstrapError{e}
		}
		q.cancel(e)
	case rpccp.Return_Which_canceled:
		q.cancel(&questionError{id: id, method: q.method, err: fmt.Errorf("receiver reported canceled")})
		return nil
	default:
		um := c.newOutgoingMessage()
		u, _ := um.NewUnimplemented()
		body, _ := m.Struct().Ptr(0)
		u.SetOriginal(m.Which(), body)
		c.sendMessage(um)
		return errUnimplemented
	}
	fin := c.newOutgoingMessage()
	f, _ := fin.NewFinish()
	f.SetQuestionId(uint32(id))
	f.SetReleaseResultCaps(releaseResultCaps)
	return c.sendMessage(fin)
}

// handleResolveMessage processes a Resolve, which updates a promise (a
// sender-promise CapDescriptor we previously imported) once the peer
// knows what it actually settled to. This runtime treats every import the
// same whether or not it started life as a promise, so a Resolve simply
// confirms or overrides what addImport already returned — except in the
// loopback case, which embargoIfLoopback handles specially.
func (c *Conn) handleResolveMessage(m rpccp.Message) error {
	res, err := m.Resolve()
	if err != nil {
		return err
	}
	id := importID(res.PromiseId())
	e := c.findImport(id)
	if e == nil {
		return nil
	}
	switch res.Which() {
	case rpccp.Resolve_Which_exception:
		exc, err := res.Exception()
		if err != nil {
			return err
		}
		c.log.Printf("import %d resolved to exception: %v", id, Exception{exc})
	case rpccp.Resolve_Which_cap:
		desc, err := res.Cap()
		if err != nil {
			return err
		}
		return c.embargoIfLoopback(id, desc)
	}
	return nil
}

// embargoIfLoopback inspects a Resolve's CapDescriptor for the classic
// E-order loopback case: the peer reports that our import id actually
// resolved to a capability reachable another way — one this side itself
// hosts (receiverHosted) or is itself still answering (receiverAnswer),
// from the resolving peer's point of view. When that happens, this side
// must not start dispatching calls on the import directly to the local
// capability until it has confirmed every call already sent to the peer
// along the old importedCap path has been delivered, or a call made just
// after the resolve could race ahead of one made just before it. That
// confirmation is a disembargo round trip: send senderLoopback addressed
// at the same importedCap id, gate local dispatch behind an embargoedClient
// in the meantime, and lift it once the matching receiverLoopback arrives
// (handleDisembargoMessage -> disembargo).
func (c *Conn) embargoIfLoopback(id importID, desc rpccp.CapDescriptor) error {
	var local capnp.Client
	switch desc.Which() {
	case rpccp.CapDescriptor_Which_receiverHosted:
		e := c.findExport(exportID(desc.ReceiverHosted()))
		if e == nil {
			return nil
		}
		local = e.client
	case rpccp.CapDescriptor_Which_receiverAnswer:
		ra, err := desc.ReceiverAnswer()
		if err != nil {
			return err
		}
		aid := answerID(ra.QuestionId())
		c.tablesMu.Lock()
		a := c.answers[aid]
		c.tablesMu.Unlock()
		if a == nil {
			return nil
		}
		transform, err := ra.Transform()
		if err != nil {
			return err
		}
		local = a.PipelineClient(transform)
	default:
		// senderHosted/senderPromise: still genuinely the peer's own
		// capability, not a loopback — nothing to embargo.
		return nil
	}

	em := c.newEmbargo()
	c.tablesMu.Lock()
	if ent, ok := c.imports[id]; ok {
		ent.resolved = &embargoedClient{e: em, inner: local}
	}
	c.tablesMu.Unlock()

	msg := c.newOutgoingMessage()
	d, err := msg.NewDisembargo()
	if err != nil {
		return err
	}
	d.Context().SetSenderLoopback(uint32(em.id))
	target, err := d.NewTarget()
	if err != nil {
		return err
	}
	target.SetImportedCap(uint32(id))
	return c.sendMessage(msg)
}
