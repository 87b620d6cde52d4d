package capnp

import (
	"context"
	"fmt"
)

// Method identifies an interface method by its Cap'n Proto interface and
// method ids.
type Method struct {
	InterfaceID uint64
	MethodID    uint16
}

func (m Method) String() string {
	return fmt.Sprintf("@0x%x.%d", m.InterfaceID, m.MethodID)
}

// Call is an in-flight method invocation: the method being called, its
// parameter struct, and the context governing its lifetime.
type Call struct {
	Ctx    context.Context
	Method Method
	Params Struct
}

// PlaceParams returns cl.Params, or allocates a zero-sized one in seg if
// the call carries none. This mirrors the teacher's fillParams helper.
func (cl *Call) PlaceParams(seg *Segment) (Struct, error) {
	if cl.Params.IsValid() {
		return cl.Params, nil
	}
	return NewStruct(seg, ObjectSize{})
}

// Client is a capability: something method calls can be sent to. A nil
// Client is a "broken" capability that answers every call with
// ErrNullClient, matching the NULL-pointer-default philosophy of the rest
// of this package.
type Client interface {
	// RecvCall dispatches a call against the capability, returning an
	// Answer that will eventually resolve to results or an error.
	RecvCall(ctx context.Context, cl *Call) Answer
	// AddRef returns a new reference to the same underlying capability.
	AddRef() Client
	// Release drops one reference; the capability is torn down once the
	// last reference is released.
	Release()
}

// ErrNullClient is returned by calls against a nil/NULL capability.
var ErrNullClient = fmt.Errorf("capnp: call on null client")

type errorClient struct{ err error }

// ErrorClient returns a Client whose every call immediately fails with err.
func ErrorClient(err error) Client { return errorClient{err: err} }

func (e errorClient) RecvCall(ctx context.Context, cl *Call) Answer { return ErrorAnswer(e.err) }
func (e errorClient) AddRef() Client                                { return e }
func (e errorClient) Release()                                     {}

// MethodError wraps an error with the Method that produced it, matching
// how the teacher's rpc package annotates remote exceptions.
type MethodError struct {
	Method Method
	Err    error
}

func (e *MethodError) Error() string { return fmt.Sprintf("%v: %v", e.Method, e.Err) }
func (e *MethodError) Unwrap() error { return e.Err }

// Interface is a capability-typed pointer: an index into the owning
// Message's capability table.
type Interface struct {
	ptr Ptr
}

// NewInterface wraps capIndex (an index into seg's message's CapTable) as
// an Interface pointer.
func NewInterface(seg *Segment, capIndex uint32) Interface {
	return Interface{ptr: Ptr{seg: seg, flags: ptrFlags{kind: ptrKindCapability, capIndex: capIndex}, off: 0}}
}

func (i Interface) IsValid() bool { return i.ptr.seg != nil }
func (i Interface) ToPtr() Ptr    { return i.ptr }

// Client returns the capability i refers to, or nil if i is NULL.
func (i Interface) Client() Client {
	if i.ptr.seg == nil {
		return nil
	}
	return i.ptr.seg.msg.ClientAt(i.ptr.flags.capIndex)
}

// Capability returns the raw capability-table index.
func (i Interface) Capability() uint32 { return i.ptr.flags.capIndex }
