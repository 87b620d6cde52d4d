package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc"
	"github.com/vatkit/capnrpc/rpc/rpctest"
)

// incrementClient answers every call by reading a uint64 at data offset 0
// from the params struct and returning a result struct with the same field
// holding value+1 — just enough of a "real" capability to exercise
// Bootstrap, Call, and Return end to end without a generated schema.
type incrementClient struct{}

func (incrementClient) RecvCall(ctx context.Context, cl *capnp.Call) capnp.Answer {
	in := cl.Params.ReadUint64(0)
	_, seg := capnp.NewSingleSegmentMessage(nil)
	out, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataWords: 1})
	if err != nil {
		return capnp.ErrorAnswer(err)
	}
	out.WriteUint64(0, in+1)
	return capnp.ImmediateAnswer(out)
}

func (incrementClient) AddRef() capnp.Client { return incrementClient{} }
func (incrementClient) Release()             {}

// TestBootstrapAndCallRoundTrip drives two real Conns over an in-memory
// bridge through Bootstrap, a Call against the bootstrap capability, and
// the Return carrying its result.
func TestBootstrapAndCallRoundTrip(t *testing.T) {
	a, b := rpctest.NewBridge()

	server := rpc.NewConn(a, rpc.MainInterface(incrementClient{}))
	client := rpc.NewConn(b)
	defer server.Close()
	defer client.Close()

	pumpCtx, stopPump := context.WithCancel(context.Background())
	waitPump := rpctest.StartPump(pumpCtx, a, b)
	defer func() {
		stopPump()
		waitPump()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boot := client.Bootstrap(ctx)
	if boot == nil {
		t.Fatal("Bootstrap returned a nil client")
	}
	defer boot.Release()

	_, seg := capnp.NewSingleSegmentMessage(nil)
	params, err := capnp.NewStruct(seg, capnp.ObjectSize{DataWords: 1})
	if err != nil {
		t.Fatal(err)
	}
	params.WriteUint64(0, 41)

	ans := boot.RecvCall(ctx, &capnp.Call{
		Ctx:    ctx,
		Method: capnp.Method{InterfaceID: 0x1, MethodID: 0},
		Params: params,
	})
	result, err := ans.Struct()
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := result.ReadUint64(0); got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

// TestPipelinedCallBeforeBootstrapResolves sends a call against the
// bootstrap pipeline before the Bootstrap's own Return has necessarily
// been processed by the test's assertions, confirming promise pipelining
// delivers it correctly once both resolve.
func TestPipelinedCallBeforeBootstrapResolves(t *testing.T) {
	a, b := rpctest.NewBridge()

	server := rpc.NewConn(a, rpc.MainInterface(incrementClient{}))
	client := rpc.NewConn(b)
	defer server.Close()
	defer client.Close()

	pumpCtx, stopPump := context.WithCancel(context.Background())
	waitPump := rpctest.StartPump(pumpCtx, a, b)
	defer func() {
		stopPump()
		waitPump()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Bootstrap's returned Client is itself a pipeline over the still-
	// in-flight Bootstrap question; calling it immediately exercises the
	// pipelining path rather than waiting for the bootstrap to resolve
	// first.
	boot := client.Bootstrap(ctx)
	defer boot.Release()

	_, seg := capnp.NewSingleSegmentMessage(nil)
	params, err := capnp.NewStruct(seg, capnp.ObjectSize{DataWords: 1})
	if err != nil {
		t.Fatal(err)
	}
	params.WriteUint64(0, 9)

	ans := boot.RecvCall(ctx, &capnp.Call{
		Ctx:    ctx,
		Method: capnp.Method{InterfaceID: 0x1, MethodID: 0},
		Params: params,
	})
	result, err := ans.Struct()
	if err != nil {
		t.Fatalf("pipelined call failed: %v", err)
	}
	if got := result.ReadUint64(0); got != 10 {
		t.Errorf("result = %d, want 10", got)
	}
}
