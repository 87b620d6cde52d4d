package rpcstats

import "github.com/tinylib/msgp/msgp"

// MarshalMsg and UnmarshalMsg implement msgp.Marshaler/msgp.Unmarshaler by
// hand in the shape `msgp -file stats.go` would generate for PeerStats: a
// map keyed by field name, so a dashboard speaking plain MessagePack can
// decode a dump without this package's Go types.

var peerStatsFields = []string{
	"conn_id", "questions", "answers", "exports", "imports", "embargoes",
	"calls_in", "calls_out", "returns_in", "returns_out", "aborts_in", "aborts_out",
}

// MarshalMsg implements msgp.Marshaler.
func (z *PeerStats) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, uint32(len(peerStatsFields)))
	o = msgp.AppendString(o, "conn_id")
	o = msgp.AppendUint64(o, z.ConnID)
	o = msgp.AppendString(o, "questions")
	o = msgp.AppendInt(o, z.Questions)
	o = msgp.AppendString(o, "answers")
	o = msgp.AppendInt(o, z.Answers)
	o = msgp.AppendString(o, "exports")
	o = msgp.AppendInt(o, z.Exports)
	o = msgp.AppendString(o, "imports")
	o = msgp.AppendInt(o, z.Imports)
	o = msgp.AppendString(o, "embargoes")
	o = msgp.AppendInt(o, z.Embargoes)
	o = msgp.AppendString(o, "calls_in")
	o = msgp.AppendUint64(o, z.CallsIn)
	o = msgp.AppendString(o, "calls_out")
	o = msgp.AppendUint64(o, z.CallsOut)
	o = msgp.AppendString(o, "returns_in")
	o = msgp.AppendUint64(o, z.ReturnsIn)
	o = msgp.AppendString(o, "returns_out")
	o = msgp.AppendUint64(o, z.ReturnsOut)
	o = msgp.AppendString(o, "aborts_in")
	o = msgp.AppendUint64(o, z.AbortsIn)
	o = msgp.AppendString(o, "aborts_out")
	o = msgp.AppendUint64(o, z.AbortsOut)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (z *PeerStats) UnmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	for i := uint32(0); i < n; i++ {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}
		switch msgp.UnsafeString(field) {
		case "conn_id":
			z.ConnID, bts, err = msgp.ReadUint64Bytes(bts)
		case "questions":
			z.Questions, bts, err = msgp.ReadIntBytes(bts)
		case "answers":
			z.Answers, bts, err = msgp.ReadIntBytes(bts)
		case "exports":
			z.Exports, bts, err = msgp.ReadIntBytes(bts)
		case "imports":
			z.Imports, bts, err = msgp.ReadIntBytes(bts)
		case "embargoes":
			z.Embargoes, bts, err = msgp.ReadIntBytes(bts)
		case "calls_in":
			z.CallsIn, bts, err = msgp.ReadUint64Bytes(bts)
		case "calls_out":
			z.CallsOut, bts, err = msgp.ReadUint64Bytes(bts)
		case "returns_in":
			z.ReturnsIn, bts, err = msgp.ReadUint64Bytes(bts)
		case "returns_out":
			z.ReturnsOut, bts, err = msgp.ReadUint64Bytes(bts)
		case "aborts_in":
			z.AbortsIn, bts, err = msgp.ReadUint64Bytes(bts)
		case "aborts_out":
			z.AbortsOut, bts, err = msgp.ReadUint64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err)
		}
	}
	return bts, nil
}

// Msgsize returns an upper bound on the encoded size, per msgp.Marshaler.
func (z *PeerStats) Msgsize() int {
	size := msgp.MapHeaderSize
	for _, f := range peerStatsFields {
		size += msgp.StringPrefixSize + len(f) + msgp.Uint64Size
	}
	return size
}
