// Package rpcstats exposes per-connection diagnostics for a capnrpc
// Conn: live table sizes and call/return/abort counters, as a Prometheus
// collector and as a msgp-encodable snapshot for out-of-band dumps.
package rpcstats

import "go.uber.org/atomic"

// Counters are the monotonically-increasing events a Conn reports as it
// runs. A Conn embeds one and increments it inline on its dispatch path;
// Snapshot reads it alongside the table sizes to build a PeerStats.
type Counters struct {
	CallsIn    atomic.Uint64
	CallsOut   atomic.Uint64
	ReturnsIn  atomic.Uint64
	ReturnsOut atomic.Uint64
	AbortsIn   atomic.Uint64
	AbortsOut  atomic.Uint64
}

// TableSizes is the table-size portion of a PeerStats, filled in by the
// caller (Conn.Stats reads its own tables under its lock), so rpcstats
// needn't import rpc (which would cycle back).
type TableSizes struct {
	Questions int
	Answers   int
	Exports   int
	Imports   int
	Embargoes int
}

// PeerStats is a point-in-time snapshot of one Conn's tables and
// cumulative counters.
type PeerStats struct {
	ConnID uint64

	Questions int
	Answers   int
	Exports   int
	Imports   int
	Embargoes int

	CallsIn    uint64
	CallsOut   uint64
	ReturnsIn  uint64
	ReturnsOut uint64
	AbortsIn   uint64
	AbortsOut  uint64
}

// Snapshot builds a PeerStats from a counter set and a table-size reading
// taken by the caller (normally Conn.Stats).
func Snapshot(connID uint64, t TableSizes, c *Counters) PeerStats {
	return PeerStats{
		ConnID:     connID,
		Questions:  t.Questions,
		Answers:    t.Answers,
		Exports:    t.Exports,
		Imports:    t.Imports,
		Embargoes:  t.Embargoes,
		CallsIn:    c.CallsIn.Load(),
		CallsOut:   c.CallsOut.Load(),
		ReturnsIn:  c.ReturnsIn.Load(),
		ReturnsOut: c.ReturnsOut.Load(),
		AbortsIn:   c.AbortsIn.Load(),
		AbortsOut:  c.AbortsOut.Load(),
	}
}
