package rpc

import (
	"testing"

	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

func buildJoin(t *testing.T, c *Conn, qid uint32, exp exportID, joinID uint32, partCount, partNum uint16) rpccp.Message {
	t.Helper()
	m := newTestMessage(t)
	j, err := m.NewJoin()
	if err != nil {
		t.Fatal(err)
	}
	j.SetQuestionId(qid)
	target, err := j.NewTarget()
	if err != nil {
		t.Fatal(err)
	}
	target.SetImportedCap(uint32(exp))
	key, err := rpccp.NewJoinKeyPart(m.Segment())
	if err != nil {
		t.Fatal(err)
	}
	key.SetJoinId(joinID)
	key.SetPartCount(partCount)
	key.SetPartNum(partNum)
	if err := j.SetKeyPart(key.ToPtr()); err != nil {
		t.Fatal(err)
	}
	return m
}

// TestJoinConvergingLegsReturnResults feeds both legs of a two-part join
// that name the same underlying export: completeJoin should agree and
// fan out a Return.results to each leg carrying that capability.
func TestJoinConvergingLegsReturnResults(t *testing.T) {
	rt := newRecordingTransport()
	c := NewConn(rt)
	t.Cleanup(func() { c.Close() })

	client := &stubClient{name: "shared"}
	exp := c.exportClient(client)

	if err := c.handleJoinMessage(buildJoin(t, c, 10, exp, 777, 2, 0)); err != nil {
		t.Fatalf("leg 0: %v", err)
	}
	if err := c.handleJoinMessage(buildJoin(t, c, 11, exp, 777, 2, 1)); err != nil {
		t.Fatalf("leg 1: %v", err)
	}

	for i := 0; i < 2; i++ {
		msg := rt.next(t)
		ret, err := msg.Return()
		if err != nil {
			t.Fatal(err)
		}
		if ret.Which() != rpccp.Return_Which_results {
			t.Fatalf("leg %d: Return.Which() = %v, want results", i, ret.Which())
		}
	}

	c.tablesMu.Lock()
	_, pending := c.joins[777]
	c.tablesMu.Unlock()
	if pending {
		t.Fatal("join 777 should have been popped once completed")
	}
}

// TestJoinDivergingLegsReturnMismatch feeds two legs naming different
// exports under the same joinId: completeJoin must report
// JoinTargetMismatch to both legs rather than picking a winner.
func TestJoinDivergingLegsReturnMismatch(t *testing.T) {
	rt := newRecordingTransport()
	c := NewConn(rt)
	t.Cleanup(func() { c.Close() })

	expA := c.exportClient(&stubClient{name: "a"})
	expB := c.exportClient(&stubClient{name: "b"})

	if err := c.handleJoinMessage(buildJoin(t, c, 20, expA, 42, 2, 0)); err != nil {
		t.Fatalf("leg 0: %v", err)
	}
	if err := c.handleJoinMessage(buildJoin(t, c, 21, expB, 42, 2, 1)); err != nil {
		t.Fatalf("leg 1: %v", err)
	}

	for i := 0; i < 2; i++ {
		msg := rt.next(t)
		ret, err := msg.Return()
		if err != nil {
			t.Fatal(err)
		}
		if ret.Which() != rpccp.Return_Which_exception {
			t.Fatalf("leg %d: Return.Which() = %v, want exception", i, ret.Which())
		}
		exc, err := ret.Exception()
		if err != nil {
			t.Fatal(err)
		}
		reason, _ := exc.Reason()
		if reason != rpcerr.JoinTargetMismatch().Error() {
			t.Errorf("leg %d: reason = %q, want %q", i, reason, rpcerr.JoinTargetMismatch().Error())
		}
	}
}

// TestJoinPartCountMismatchAborts feeds a second leg that disagrees with
// the first about how many legs the join has; the connection must abort
// rather than silently completing with the wrong part count.
func TestJoinPartCountMismatchAborts(t *testing.T) {
	c := newTestConn(t)
	exp := c.exportClient(&stubClient{name: "a"})

	if err := c.handleJoinMessage(buildJoin(t, c, 1, exp, 5, 2, 0)); err != nil {
		t.Fatalf("leg 0: %v", err)
	}
	err := c.handleJoinMessage(buildJoin(t, c, 2, exp, 5, 3, 1))
	if err == nil {
		t.Fatal("expected a part count mismatch error")
	}
}

// TestJoinDuplicatePartAborts feeds the same partNum twice for one joinId.
func TestJoinDuplicatePartAborts(t *testing.T) {
	c := newTestConn(t)
	exp := c.exportClient(&stubClient{name: "a"})

	if err := c.handleJoinMessage(buildJoin(t, c, 1, exp, 9, 2, 0)); err != nil {
		t.Fatalf("first part 0: %v", err)
	}
	err := c.handleJoinMessage(buildJoin(t, c, 2, exp, 9, 2, 0))
	if err == nil {
		t.Fatal("expected a duplicate part error")
	}
	if err.Error() != rpcerr.DuplicateJoinQuestion().Error() {
		t.Errorf("err = %v, want %v", err, rpcerr.DuplicateJoinQuestion())
	}
}
