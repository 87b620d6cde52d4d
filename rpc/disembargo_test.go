package rpc

import (
	"testing"

	"github.com/vatkit/capnrpc/rpc/rpccp"
)

// TestDisembargoReceiverLoopbackLiftsEmbargo confirms that a receiver-
// loopback Disembargo naming an outstanding embargo id closes that
// embargo's done channel and frees its table slot.
func TestDisembargoReceiverLoopbackLiftsEmbargo(t *testing.T) {
	c := newTestConn(t)
	e := c.newEmbargo()

	m := newTestMessage(t)
	d, err := m.NewDisembargo()
	if err != nil {
		t.Fatal(err)
	}
	d.Context().SetReceiverLoopback(uint32(e.id))

	if err := c.handleDisembargoMessage(m); err != nil {
		t.Fatalf("handleDisembargoMessage: %v", err)
	}

	select {
	case <-e.done:
	default:
		t.Fatal("embargo should have been lifted")
	}

	c.tablesMu.Lock()
	slot := c.embargoes[e.id]
	c.tablesMu.Unlock()
	if slot != nil {
		t.Fatal("embargo table slot should have been freed")
	}
}

// TestDisembargoReceiverLoopbackUnknownIsNoop confirms a stale or
// duplicate receiver-loopback (naming an id with no outstanding embargo)
// is silently ignored rather than erroring or panicking.
func TestDisembargoReceiverLoopbackUnknownIsNoop(t *testing.T) {
	c := newTestConn(t)

	m := newTestMessage(t)
	d, err := m.NewDisembargo()
	if err != nil {
		t.Fatal(err)
	}
	d.Context().SetReceiverLoopback(999)

	if err := c.handleDisembargoMessage(m); err != nil {
		t.Fatalf("handleDisembargoMessage: %v", err)
	}
}

// TestDisembargoSenderLoopbackEchoesReceiverLoopback drives the other
// half of the handshake: once the promisedAnswer this peer named has
// resolved, a senderLoopback must be echoed straight back as a
// receiverLoopback carrying the same embargo id and target.
func TestDisembargoSenderLoopbackEchoesReceiverLoopback(t *testing.T) {
	rt := newRecordingTransport()
	c := NewConn(rt)
	t.Cleanup(func() { c.Close() })

	aid := answerID(5)
	a := c.insertAnswer(aid, func() {})
	if a == nil {
		t.Fatal("insertAnswer failed")
	}
	if err := a.fulfill(newRecipient(t, newTestMessage(t).Segment(), 0)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	m := newTestMessage(t)
	d, err := m.NewDisembargo()
	if err != nil {
		t.Fatal(err)
	}
	d.Context().SetSenderLoopback(42)
	target, err := d.NewTarget()
	if err != nil {
		t.Fatal(err)
	}
	pa, err := target.NewPromisedAnswer()
	if err != nil {
		t.Fatal(err)
	}
	pa.SetQuestionId(uint32(aid))

	if err := c.handleDisembargoMessage(m); err != nil {
		t.Fatalf("handleDisembargoMessage: %v", err)
	}

	resp := rt.next(t)
	rd, err := resp.Disembargo()
	if err != nil {
		t.Fatal(err)
	}
	if rd.Context().Which() != rpccp.Disembargo_context_Which_receiverLoopback {
		t.Fatalf("Context().Which() = %v, want receiverLoopback", rd.Context().Which())
	}
	if rd.Context().ReceiverLoopback() != 42 {
		t.Fatalf("ReceiverLoopback() = %d, want 42", rd.Context().ReceiverLoopback())
	}
	rtarget, err := rd.Target()
	if err != nil {
		t.Fatal(err)
	}
	if rtarget.Which() != rpccp.MessageTarget_Which_promisedAnswer {
		t.Fatalf("Target().Which() = %v, want promisedAnswer", rtarget.Which())
	}
	rpa, err := rtarget.PromisedAnswer()
	if err != nil {
		t.Fatal(err)
	}
	if answerID(rpa.QuestionId()) != aid {
		t.Errorf("echoed QuestionId = %d, want %d", rpa.QuestionId(), aid)
	}
}
