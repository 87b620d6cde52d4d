package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

// discardTransport never delivers anything; it exists so tests can
// construct a Conn without a real peer and drive its handlers directly.
type discardTransport struct{}

func (discardTransport) SendMessage(ctx context.Context, m rpccp.Message) error { return nil }
func (discardTransport) RecvMessage(ctx context.Context) (rpccp.Message, error) {
	<-ctx.Done()
	return rpccp.Message{}, ctx.Err()
}
func (discardTransport) Close() error { return nil }

// recordingTransport captures every message dispatchSend hands it, so a
// test can observe what a Conn sent without racing dispatchSend's own
// goroutine for access to c.out.
type recordingTransport struct {
	sent chan rpccp.Message
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(chan rpccp.Message, 16)}
}

func (rt *recordingTransport) SendMessage(ctx context.Context, m rpccp.Message) error {
	rt.sent <- m
	return nil
}
func (rt *recordingTransport) RecvMessage(ctx context.Context) (rpccp.Message, error) {
	<-ctx.Done()
	return rpccp.Message{}, ctx.Err()
}
func (rt *recordingTransport) Close() error { return nil }

func (rt *recordingTransport) next(t *testing.T) rpccp.Message {
	t.Helper()
	select {
	case m := <-rt.sent:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message to be sent")
		panic("unreachable")
	}
}

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	c := NewConn(discardTransport{})
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestMessage(t *testing.T) rpccp.Message {
	t.Helper()
	_, seg := capnp.NewSingleSegmentMessage(nil)
	m, err := rpccp.NewRootMessage(seg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// stubClient is a capnp.Client whose identity (pointer equality) is all
// that matters for these tests: sameClient compares Clients by ==.
type stubClient struct{ name string }

func (s *stubClient) RecvCall(ctx context.Context, cl *capnp.Call) capnp.Answer {
	return capnp.ErrorAnswer(rpcerr.Failedf("stub client %s has no methods", s.name))
}
func (s *stubClient) AddRef() capnp.Client { return s }
func (s *stubClient) Release()             {}

func newRecipient(t *testing.T, seg *capnp.Segment, tag byte) capnp.Ptr {
	t.Helper()
	p, err := capnp.NewData(seg, []byte{tag})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func buildProvide(t *testing.T, c *Conn, qid uint32, exp exportID, tag byte) rpccp.Message {
	t.Helper()
	m := newTestMessage(t)
	p, err := m.NewProvide()
	if err != nil {
		t.Fatal(err)
	}
	p.SetQuestionId(qid)
	target, err := p.NewTarget()
	if err != nil {
		t.Fatal(err)
	}
	target.SetImportedCap(uint32(exp))
	recipient := newRecipient(t, m.Segment(), tag)
	if err := p.SetRecipient(recipient); err != nil {
		t.Fatal(err)
	}
	return m
}

func buildAccept(t *testing.T, qid uint32, tag byte) rpccp.Message {
	t.Helper()
	m := newTestMessage(t)
	a, err := m.NewAccept()
	if err != nil {
		t.Fatal(err)
	}
	a.SetQuestionId(qid)
	provision := newRecipient(t, m.Segment(), tag)
	if err := a.SetProvision(provision); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestProvideThenAccept(t *testing.T) {
	c := newTestConn(t)
	client := &stubClient{name: "a"}
	exp := c.exportClient(client)

	provideMsg := buildProvide(t, c, 1, exp, 0x42)
	if err := c.handleProvideMessage(provideMsg); err != nil {
		t.Fatalf("handleProvideMessage: %v", err)
	}

	c.tablesMu.Lock()
	n := len(c.provides)
	c.tablesMu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 pending provide, got %d", n)
	}

	acceptMsg := buildAccept(t, 2, 0x42)
	if err := c.handleAcceptMessage(acceptMsg); err != nil {
		t.Fatalf("handleAcceptMessage: %v", err)
	}
	// Accept doesn't remove the provide entry (a real three-party network
	// could redeem the same recipient key more than once over its
	// lifetime); confirm it's still there.
	c.tablesMu.Lock()
	_, ok := c.provides[questionID(1)]
	c.tablesMu.Unlock()
	if !ok {
		t.Fatal("provide entry should still be registered after accept")
	}
}

func TestAcceptUnknownProvisionFails(t *testing.T) {
	rt := newRecordingTransport()
	c := NewConn(rt)
	t.Cleanup(func() { c.Close() })

	acceptMsg := buildAccept(t, 1, 0x99)
	err := c.handleAcceptMessage(acceptMsg)
	if err != nil {
		t.Fatalf("handleAcceptMessage returned transport-level error: %v", err)
	}
	// The failure is reported as a Return.exception over the transport,
	// not a Go error return, since Accept always owes exactly one Return.
	msg := rt.next(t)
	ret, err := msg.Return()
	if err != nil {
		t.Fatal(err)
	}
	if ret.Which() != rpccp.Return_Which_exception {
		t.Fatalf("Return.Which() = %v, want exception", ret.Which())
	}
	exc, err := ret.Exception()
	if err != nil {
		t.Fatal(err)
	}
	reason, _ := exc.Reason()
	if reason != rpcerr.UnknownProvision().Error() {
		t.Errorf("reason = %q, want %q", reason, rpcerr.UnknownProvision().Error())
	}
}

func TestDuplicateProvideRecipientAborts(t *testing.T) {
	c := newTestConn(t)
	exp1 := c.exportClient(&stubClient{name: "a"})
	exp2 := c.exportClient(&stubClient{name: "b"})

	if err := c.handleProvideMessage(buildProvide(t, c, 1, exp1, 0x10)); err != nil {
		t.Fatalf("first provide: %v", err)
	}
	err := c.handleProvideMessage(buildProvide(t, c, 2, exp2, 0x10))
	if err == nil {
		t.Fatal("expected duplicate-recipient error")
	}
	if err.Error() != rpcerr.DuplicateProvideRecipient().Error() {
		t.Errorf("err = %v, want %v", err, rpcerr.DuplicateProvideRecipient())
	}
}
