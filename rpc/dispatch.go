package rpc

import "github.com/vatkit/capnrpc/rpc/rpccp"

// handleMessage processes one inbound frame. It runs on the receive
// goroutine; m must not be retained past this call.
func (c *Conn) handleMessage(m rpccp.Message) {
	switch m.Which() {
	case rpccp.Message_Which_unimplemented:
		// The peer doesn't understand something we sent; nothing to do but
		// note it and move on.
		c.log.Printf("peer reported unimplemented message")
	case rpccp.Message_Which_abort:
		a, err := m.Abort()
		if err != nil {
			c.log.Errorf("decode abort: %v", err)
			c.manager.shutdown(errShutdown)
			return
		}
		exc, err := a.Reason()
		if err != nil {
			c.log.Errorf("decode abort reason: %v", err)
			c.manager.shutdown(errShutdown)
			return
		}
		c.stats.AbortsIn.Inc()
		c.log.Printf("peer aborted: %v", Exception{exc})
		c.manager.shutdown(Exception{exc})
	case rpccp.Message_Which_bootstrap:
		boot, err := m.Bootstrap()
		if err != nil {
			c.log.Errorf("decode bootstrap: %v", err)
			return
		}
		if err := c.handleBootstrapMessage(answerID(boot.QuestionId())); err != nil {
			c.log.Errorf("handle bootstrap: %v", err)
		}
	case rpccp.Message_Which_call:
		if err := c.handleCallMessage(m); err != nil {
			c.log.Errorf("handle call: %v", err)
		}
	case rpccp.Message_Which_return:
		if err := c.handleReturnMessage(m); err != nil {
			c.log.Errorf("handle return: %v", err)
		}
	case rpccp.Message_Which_finish:
		fin, err := m.Finish()
		if err != nil {
			c.log.Errorf("decode finish: %v", err)
			return
		}
		id := answerID(fin.QuestionId())
		a := c.popAnswer(id)
		if a == nil {
			// Not an ordinary call's answer; it may be an un-redeemed
			// Provide the peer is canceling before any Accept arrived.
			c.popProvide(questionID(fin.QuestionId()))
			return
		}
		if a.cancel != nil {
			a.cancel()
		}
		if fin.ReleaseResultCaps() {
			for _, id := range a.trackedResultCaps() {
				c.releaseExport(id, 1)
			}
		}
	case rpccp.Message_Which_release:
		rel, err := m.Release()
		if err != nil {
			c.log.Errorf("decode release: %v", err)
			return
		}
		c.releaseExport(exportID(rel.Id()), rel.ReferenceCount())
	case rpccp.Message_Which_resolve:
		if err := c.handleResolveMessage(m); err != nil {
			c.log.Errorf("handle resolve: %v", err)
		}
	case rpccp.Message_Which_disembargo:
		if err := c.handleDisembargoMessage(m); err != nil {
			c.log.Errorf("handle disembargo: %v", err)
			c.abort(err)
		}
	case rpccp.Message_Which_provide:
		if err := c.handleProvideMessage(m); err != nil {
			c.log.Errorf("handle provide: %v", err)
		}
	case rpccp.Message_Which_accept:
		if err := c.handleAcceptMessage(m); err != nil {
			c.log.Errorf("handle accept: %v", err)
		}
	case rpccp.Message_Which_join:
		if err := c.handleJoinMessage(m); err != nil {
			c.log.Errorf("handle join: %v", err)
		}
	default:
		c.log.Printf("received message of unknown kind %v", m.Which())
		um := c.newOutgoingMessage()
		u, _ := um.NewUnimplemented()
		body, _ := m.Struct().Ptr(0)
		u.SetOriginal(m.Which(), body)
		c.sendMessage(um)
	}
}
