package rpcstats

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/prometheus/client_golang/prometheus"
)

func TestSnapshot(t *testing.T) {
	var c Counters
	c.CallsIn.Store(3)
	c.CallsOut.Store(5)
	c.ReturnsIn.Store(2)
	c.ReturnsOut.Store(4)
	c.AbortsIn.Store(1)
	c.AbortsOut.Store(0)

	tsz := TableSizes{Questions: 1, Answers: 2, Exports: 3, Imports: 4, Embargoes: 5}
	got := Snapshot(42, tsz, &c)
	want := PeerStats{
		ConnID: 42, Questions: 1, Answers: 2, Exports: 3, Imports: 4, Embargoes: 5,
		CallsIn: 3, CallsOut: 5, ReturnsIn: 2, ReturnsOut: 4, AbortsIn: 1, AbortsOut: 0,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("Snapshot mismatch: %v", diff)
	}
}

// TestPeerStatsMsgpRoundTrip confirms the hand-written Marshaler/Unmarshaler
// survive a round trip unchanged, since no generated stats_gen_test.go
// exists to check this against.
func TestPeerStatsMsgpRoundTrip(t *testing.T) {
	want := PeerStats{
		ConnID: 7, Questions: 1, Answers: 2, Exports: 3, Imports: 4, Embargoes: 5,
		CallsIn: 100, CallsOut: 200, ReturnsIn: 300, ReturnsOut: 400, AbortsIn: 1, AbortsOut: 2,
	}
	raw, err := want.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}

	var got PeerStats
	leftover, err := got.UnmarshalMsg(raw)
	if err != nil {
		t.Fatalf("UnmarshalMsg: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("leftover bytes after UnmarshalMsg: %d", len(leftover))
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("round-trip mismatch: %v", diff)
	}
}

func TestPeerStatsMsgsizeIsUpperBound(t *testing.T) {
	s := PeerStats{ConnID: 1, Questions: 1, Answers: 1, Exports: 1, Imports: 1, Embargoes: 1}
	raw, err := s.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}
	if len(raw) > s.Msgsize() {
		t.Errorf("encoded length %d exceeds Msgsize() %d", len(raw), s.Msgsize())
	}
}

func TestCollectorDescribeAndCollect(t *testing.T) {
	snap := PeerStats{
		ConnID: 1, Questions: 2, Answers: 3, Exports: 4, Imports: 5, Embargoes: 6,
		CallsIn: 7, CallsOut: 8, ReturnsIn: 9, ReturnsOut: 10, AbortsIn: 11, AbortsOut: 12,
	}
	coll := NewCollector("test-conn", func() PeerStats { return snap })

	descCh := make(chan *prometheus.Desc, 16)
	coll.Describe(descCh)
	close(descCh)
	var descs int
	for range descCh {
		descs++
	}
	if descs != 11 {
		t.Errorf("Describe sent %d descriptors, want 11", descs)
	}

	metricCh := make(chan prometheus.Metric, 16)
	coll.Collect(metricCh)
	close(metricCh)
	var metrics int
	for range metricCh {
		metrics++
	}
	if metrics != 11 {
		t.Errorf("Collect sent %d metrics, want 11", metrics)
	}
}
