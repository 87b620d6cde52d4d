package rpc

import (
	"github.com/vatkit/capnrpc/capnp"
)

// wrapBareCapability wraps a capability-kind pointer (the wire content of a
// Bootstrap return, which has no enclosing struct) in a single-pointer-field
// struct so that it can flow through the same Fulfiller/Answer/Pipeline
// machinery used for ordinary method results. Conn.Bootstrap and
// handleReturnMessage/handleBootstrapMessage unwrap it again by projecting
// field 0.
func wrapBareCapability(seg *capnp.Segment, cap capnp.Ptr) (capnp.Struct, error) {
	s, err := capnp.NewStruct(seg, capnp.ObjectSize{PtrCount: 1})
	if err != nil {
		return capnp.Struct{}, err
	}
	if err := s.SetPtr(0, cap); err != nil {
		return capnp.Struct{}, err
	}
	return s, nil
}
