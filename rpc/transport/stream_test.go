package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
)

func newTestBootstrapMessage(t *testing.T, qid uint32) rpccp.Message {
	t.Helper()
	_, seg := capnp.NewSingleSegmentMessage(nil)
	m, err := rpccp.NewRootMessage(seg)
	if err != nil {
		t.Fatal(err)
	}
	boot, err := m.NewBootstrap()
	if err != nil {
		t.Fatal(err)
	}
	boot.SetQuestionId(qid)
	return m
}

// TestStreamTransportRoundTrip drives a StreamTransport pair over net.Pipe
// and confirms a message survives the segment-framing round trip intact.
func TestStreamTransportRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewStreamTransport(clientConn, Limits{})
	server := NewStreamTransport(serverConn, Limits{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- client.SendMessage(ctx, newTestBootstrapMessage(t, 99))
	}()

	got, err := server.RecvMessage(ctx)
	if err != nil {
		t.Fatalf("RecvMessage: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	boot, err := got.Bootstrap()
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if boot.QuestionId() != 99 {
		t.Errorf("QuestionId() = %d, want 99", boot.QuestionId())
	}
}

// discardRWC is an io.ReadWriteCloser whose reads report EOF and whose
// writes are discarded, for tests that never need a real stream.
type discardRWC struct{}

func (discardRWC) Read(p []byte) (int, error)  { return 0, io.EOF }
func (discardRWC) Write(p []byte) (int, error) { return len(p), nil }
func (discardRWC) Close() error                { return nil }

// TestStreamTransportSendRejectsOversizedFrame confirms SendMessage enforces
// MaxFrameBytes before ever writing to the underlying stream.
func TestStreamTransportSendRejectsOversizedFrame(t *testing.T) {
	transport := NewStreamTransport(discardRWC{}, Limits{MaxFrameBytes: 8})

	msg := newTestBootstrapMessage(t, 1)
	err := transport.SendMessage(context.Background(), msg)
	var tooLarge *FrameTooLargeError
	if err == nil {
		t.Fatal("expected a FrameTooLargeError")
	}
	if e, ok := err.(*FrameTooLargeError); !ok {
		t.Fatalf("err = %T, want *FrameTooLargeError", err)
	} else {
		tooLarge = e
	}
	if tooLarge.Limit != 8 {
		t.Errorf("Limit = %d, want 8", tooLarge.Limit)
	}
}

// TestStreamTransportOwnerThreadAssertsPerPath confirms SendMessage and
// RecvMessage bind independently to their own calling goroutine: a
// persistent send-loop goroutine and a persistent recv-loop goroutine,
// matching how Conn drives a transport, never trip the affinity assertion
// against each other.
func TestStreamTransportOwnerThreadAssertsPerPath(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewStreamTransport(clientConn, Limits{})
	server := NewStreamTransport(serverConn, Limits{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 3
	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		for i := 0; i < n; i++ {
			if err := client.SendMessage(ctx, newTestBootstrapMessage(t, uint32(i))); err != nil {
				t.Errorf("SendMessage: %v", err)
				return
			}
		}
	}()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for i := 0; i < n; i++ {
			if _, err := server.RecvMessage(ctx); err != nil {
				t.Errorf("RecvMessage: %v", err)
				return
			}
		}
	}()

	<-sendDone
	<-recvDone
}
