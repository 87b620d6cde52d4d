// Package rpccp is a typed, hand-built view over the Cap'n Proto RPC
// wire schema (the `Message` union and its relatives: Call, Return,
// Finish, Resolve, Release, Disembargo, Provide, Accept, Join,
// Unimplemented, Abort, plus the shared CapDescriptor/PromisedAnswer/
// MessageTarget/Payload/Exception shapes). In a schema-compiler-backed
// build this package is what `capnpc-go` would emit from `rpc.capnp`;
// here it is written by hand against the same field layout conventions,
// per the design note that generated accessors should exist even when a
// compiler isn't in the loop (raw discriminant-byte access is reserved
// for the wire codec itself).
package rpccp

import (
	"fmt"

	"github.com/vatkit/capnrpc/capnp"
)

// Which identifies the active variant of the Message union.
type Which uint16

const (
	Message_Which_unimplemented Which = iota
	Message_Which_abort
	Message_Which_bootstrap
	Message_Which_call
	Message_Which_return
	Message_Which_finish
	Message_Which_resolve
	Message_Which_release
	Message_Which_disembargo
	Message_Which_provide
	Message_Which_accept
	Message_Which_join
)

func (w Which) String() string {
	switch w {
	case Message_Which_unimplemented:
		return "unimplemented"
	case Message_Which_abort:
		return "abort"
	case Message_Which_bootstrap:
		return "bootstrap"
	case Message_Which_call:
		return "call"
	case Message_Which_return:
		return "return"
	case Message_Which_finish:
		return "finish"
	case Message_Which_resolve:
		return "resolve"
	case Message_Which_release:
		return "release"
	case Message_Which_disembargo:
		return "disembargo"
	case Message_Which_provide:
		return "provide"
	case Message_Which_accept:
		return "accept"
	case Message_Which_join:
		return "join"
	default:
		return fmt.Sprintf("Which(%d)", uint16(w))
	}
}

// ErrUnexpectedMessage is returned by an accessor (e.g. Message.Call) when
// the union's discriminant does not select that variant.
var ErrUnexpectedMessage = fmt.Errorf("rpccp: unexpected message variant")

// Message is the root of every RPC frame: a tagged union discriminated by
// Which(), with the active variant's fields nested in a body struct at
// pointer slot 0.
type Message struct{ s capnp.Struct }

// NewRootMessage allocates a fresh, empty Message as seg's message root.
func NewRootMessage(seg *capnp.Segment) (Message, error) {
	s, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return Message{}, err
	}
	return Message{s: s}, nil
}

// ReadRootMessage reads msg's root pointer as a Message.
func ReadRootMessage(msg *capnp.Message) (Message, error) {
	root, err := msg.Root()
	if err != nil {
		return Message{}, err
	}
	return Message{s: root.Struct()}, nil
}

func (m Message) Segment() *capnp.Segment { return m.s.Segment() }
func (m Message) Struct() capnp.Struct    { return m.s }

func (m Message) Which() Which { return Which(m.s.ReadUint16(0)) }

func (m Message) body() (capnp.Ptr, error) { return m.s.Ptr(0) }

func (m Message) newBody(which Which, sz capnp.ObjectSize) (capnp.Struct, error) {
	m.s.WriteUint16(0, uint16(which))
	body, err := capnp.NewStruct(m.s.Segment(), sz)
	if err != nil {
		return capnp.Struct{}, err
	}
	if err := m.s.SetPtr(0, body.ToPtr()); err != nil {
		return capnp.Struct{}, err
	}
	return body, nil
}

func (m Message) variant(which Which) (capnp.Struct, error) {
	if m.Which() != which {
		return capnp.Struct{}, ErrUnexpectedMessage
	}
	p, err := m.body()
	if err != nil {
		return capnp.Struct{}, err
	}
	return p.Struct(), nil
}

// --- Bootstrap ---

type Bootstrap struct{ s capnp.Struct }

func (m Message) NewBootstrap() (Bootstrap, error) {
	s, err := m.newBody(Message_Which_bootstrap, capnp.ObjectSize{DataWords: 1})
	return Bootstrap{s: s}, err
}

func (m Message) Bootstrap() (Bootstrap, error) {
	s, err := m.variant(Message_Which_bootstrap)
	return Bootstrap{s: s}, err
}

func (b Bootstrap) QuestionId() uint32     { return b.s.ReadUint32(0) }
func (b Bootstrap) SetQuestionId(v uint32) { b.s.WriteUint32(0, v) }

// --- Call ---

type SendResultsTo uint8

const (
	SendResultsTo_caller SendResultsTo = iota
	SendResultsTo_yourself
	SendResultsTo_thirdParty
)

type Call struct{ s capnp.Struct }

func (m Message) NewCall() (Call, error) {
	s, err := m.newBody(Message_Which_call, capnp.ObjectSize{DataWords: 3, PtrCount: 3})
	return Call{s: s}, err
}

func (m Message) Call() (Call, error) {
	s, err := m.variant(Message_Which_call)
	return Call{s: s}, err
}

func (c Call) QuestionId() uint32       { return c.s.ReadUint32(0) }
func (c Call) SetQuestionId(v uint32)   { c.s.WriteUint32(0, v) }
func (c Call) InterfaceId() uint64      { return c.s.ReadUint64(8) }
func (c Call) SetInterfaceId(v uint64)  { c.s.WriteUint64(8, v) }
func (c Call) MethodId() uint16         { return c.s.ReadUint16(16) }
func (c Call) SetMethodId(v uint16)     { c.s.WriteUint16(16, v) }
func (c Call) SendResultsTo() SendResultsTo { return SendResultsTo(c.s.ReadUint8(18)) }
func (c Call) SetSendResultsTo(v SendResultsTo) { c.s.WriteUint8(18, uint8(v)) }
func (c Call) NoPromisePipelining() bool { return c.s.ReadBool(19, 0) }
func (c Call) SetNoPromisePipelining(v bool) { c.s.WriteBool(19, 0, v) }

func (c Call) Target() (MessageTarget, error) {
	p, err := c.s.Ptr(0)
	if err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: p.Struct()}, nil
}

func (c Call) NewTarget() (MessageTarget, error) {
	s, err := capnp.NewStruct(c.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return MessageTarget{}, err
	}
	if err := c.s.SetPtr(0, s.ToPtr()); err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: s}, nil
}

func (c Call) Params() (Payload, error) {
	p, err := c.s.Ptr(1)
	if err != nil {
		return Payload{}, err
	}
	return Payload{s: p.Struct()}, nil
}

func (c Call) NewParams() (Payload, error) {
	s, err := capnp.NewStruct(c.s.Segment(), capnp.ObjectSize{PtrCount: 2})
	if err != nil {
		return Payload{}, err
	}
	if err := c.s.SetPtr(1, s.ToPtr()); err != nil {
		return Payload{}, err
	}
	return Payload{s: s}, nil
}

// ThirdPartyRecipient is only meaningful when SendResultsTo() ==
// SendResultsTo_thirdParty: the capability descriptor identifying the
// third peer results should be delivered to.
func (c Call) ThirdPartyRecipient() (capnp.Ptr, error) { return c.s.Ptr(2) }
func (c Call) SetThirdPartyRecipient(p capnp.Ptr) error { return c.s.SetPtr(2, p) }

// --- Return ---

type ReturnWhich uint8

const (
	Return_Which_results ReturnWhich = iota
	Return_Which_exception
	Return_Which_canceled
	Return_Which_resultsSentElsewhere
	Return_Which_takeFromOtherQuestion
	Return_Which_acceptFromThirdParty
)

type Return struct{ s capnp.Struct }

func (m Message) NewReturn() (Return, error) {
	s, err := m.newBody(Message_Which_return, capnp.ObjectSize{DataWords: 2, PtrCount: 3})
	return Return{s: s}, err
}

func (m Message) Return() (Return, error) {
	s, err := m.variant(Message_Which_return)
	return Return{s: s}, err
}

func (r Return) AnswerId() uint32           { return r.s.ReadUint32(0) }
func (r Return) SetAnswerId(v uint32)       { r.s.WriteUint32(0, v) }
func (r Return) ReleaseParamCaps() bool     { return r.s.ReadBool(4, 0) }
func (r Return) SetReleaseParamCaps(v bool) { r.s.WriteBool(4, 0, v) }
func (r Return) Which() ReturnWhich         { return ReturnWhich(r.s.ReadUint8(5)) }
func (r Return) setWhich(w ReturnWhich)     { r.s.WriteUint8(5, uint8(w)) }
func (r Return) TakeFromQuestionId() uint32 { return r.s.ReadUint32(8) }

func (r Return) NewResults() (Payload, error) {
	r.setWhich(Return_Which_results)
	s, err := capnp.NewStruct(r.s.Segment(), capnp.ObjectSize{PtrCount: 2})
	if err != nil {
		return Payload{}, err
	}
	if err := r.s.SetPtr(0, s.ToPtr()); err != nil {
		return Payload{}, err
	}
	return Payload{s: s}, nil
}

func (r Return) Results() (Payload, error) {
	if r.Which() != Return_Which_results {
		return Payload{}, ErrUnexpectedMessage
	}
	p, err := r.s.Ptr(0)
	if err != nil {
		return Payload{}, err
	}
	return Payload{s: p.Struct()}, nil
}

func (r Return) NewException() (Exception, error) {
	r.setWhich(Return_Which_exception)
	s, err := capnp.NewStruct(r.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return Exception{}, err
	}
	if err := r.s.SetPtr(1, s.ToPtr()); err != nil {
		return Exception{}, err
	}
	return Exception{s: s}, nil
}

func (r Return) Exception() (Exception, error) {
	if r.Which() != Return_Which_exception {
		return Exception{}, ErrUnexpectedMessage
	}
	p, err := r.s.Ptr(1)
	if err != nil {
		return Exception{}, err
	}
	return Exception{s: p.Struct()}, nil
}

func (r Return) SetCanceled()   { r.setWhich(Return_Which_canceled) }
func (r Return) SetResultsSentElsewhere() { r.setWhich(Return_Which_resultsSentElsewhere) }

func (r Return) SetTakeFromOtherQuestion(qid uint32) {
	r.setWhich(Return_Which_takeFromOtherQuestion)
	r.s.WriteUint32(8, qid)
}

func (r Return) NewAcceptFromThirdParty() (capnp.Ptr, error) {
	r.setWhich(Return_Which_acceptFromThirdParty)
	return capnp.Ptr{}, nil
}

func (r Return) SetAcceptFromThirdPartyPayload(p capnp.Ptr) error {
	r.setWhich(Return_Which_acceptFromThirdParty)
	return r.s.SetPtr(2, p)
}

func (r Return) AcceptFromThirdPartyPayload() (capnp.Ptr, error) { return r.s.Ptr(2) }

// --- Finish ---

type Finish struct{ s capnp.Struct }

func (m Message) NewFinish() (Finish, error) {
	s, err := m.newBody(Message_Which_finish, capnp.ObjectSize{DataWords: 1})
	return Finish{s: s}, err
}

func (m Message) Finish() (Finish, error) {
	s, err := m.variant(Message_Which_finish)
	return Finish{s: s}, err
}

func (f Finish) QuestionId() uint32          { return f.s.ReadUint32(0) }
func (f Finish) SetQuestionId(v uint32)      { f.s.WriteUint32(0, v) }
func (f Finish) ReleaseResultCaps() bool     { return f.s.ReadBool(4, 0) }
func (f Finish) SetReleaseResultCaps(v bool) { f.s.WriteBool(4, 0, v) }

// --- Resolve ---

type ResolveWhich uint8

const (
	Resolve_Which_cap ResolveWhich = iota
	Resolve_Which_exception
)

type Resolve struct{ s capnp.Struct }

func (m Message) NewResolve() (Resolve, error) {
	s, err := m.newBody(Message_Which_resolve, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	return Resolve{s: s}, err
}

func (m Message) Resolve() (Resolve, error) {
	s, err := m.variant(Message_Which_resolve)
	return Resolve{s: s}, err
}

func (r Resolve) PromiseId() uint32      { return r.s.ReadUint32(0) }
func (r Resolve) SetPromiseId(v uint32)  { r.s.WriteUint32(0, v) }
func (r Resolve) Which() ResolveWhich    { return ResolveWhich(r.s.ReadUint8(4)) }

func (r Resolve) NewCap() (CapDescriptor, error) {
	r.s.WriteUint8(4, uint8(Resolve_Which_cap))
	s, err := capnp.NewStruct(r.s.Segment(), capnp.ObjectSize{DataWords: 2, PtrCount: 2})
	if err != nil {
		return CapDescriptor{}, err
	}
	if err := r.s.SetPtr(0, s.ToPtr()); err != nil {
		return CapDescriptor{}, err
	}
	return CapDescriptor{s: s}, nil
}

func (r Resolve) Cap() (CapDescriptor, error) {
	if r.Which() != Resolve_Which_cap {
		return CapDescriptor{}, ErrUnexpectedMessage
	}
	p, err := r.s.Ptr(0)
	if err != nil {
		return CapDescriptor{}, err
	}
	return CapDescriptor{s: p.Struct()}, nil
}

func (r Resolve) NewException() (Exception, error) {
	r.s.WriteUint8(4, uint8(Resolve_Which_exception))
	s, err := capnp.NewStruct(r.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return Exception{}, err
	}
	if err := r.s.SetPtr(0, s.ToPtr()); err != nil {
		return Exception{}, err
	}
	return Exception{s: s}, nil
}

func (r Resolve) Exception() (Exception, error) {
	if r.Which() != Resolve_Which_exception {
		return Exception{}, ErrUnexpectedMessage
	}
	p, err := r.s.Ptr(0)
	if err != nil {
		return Exception{}, err
	}
	return Exception{s: p.Struct()}, nil
}

// --- Release ---

type Release struct{ s capnp.Struct }

func (m Message) NewRelease() (Release, error) {
	s, err := m.newBody(Message_Which_release, capnp.ObjectSize{DataWords: 1})
	return Release{s: s}, err
}

func (m Message) Release() (Release, error) {
	s, err := m.variant(Message_Which_release)
	return Release{s: s}, err
}

func (r Release) Id() uint32                  { return r.s.ReadUint32(0) }
func (r Release) SetId(v uint32)              { r.s.WriteUint32(0, v) }
func (r Release) ReferenceCount() uint32      { return r.s.ReadUint32(4) }
func (r Release) SetReferenceCount(v uint32)  { r.s.WriteUint32(4, v) }

// --- Disembargo ---

type DisembargoContextWhich uint8

const (
	Disembargo_context_Which_senderLoopback DisembargoContextWhich = iota
	Disembargo_context_Which_receiverLoopback
)

type Disembargo struct{ s capnp.Struct }
type DisembargoContext struct{ s capnp.Struct }

func (m Message) NewDisembargo() (Disembargo, error) {
	s, err := m.newBody(Message_Which_disembargo, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	return Disembargo{s: s}, err
}

func (m Message) Disembargo() (Disembargo, error) {
	s, err := m.variant(Message_Which_disembargo)
	return Disembargo{s: s}, err
}

func (d Disembargo) Target() (MessageTarget, error) {
	p, err := d.s.Ptr(0)
	if err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: p.Struct()}, nil
}

func (d Disembargo) NewTarget() (MessageTarget, error) {
	s, err := capnp.NewStruct(d.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return MessageTarget{}, err
	}
	if err := d.s.SetPtr(0, s.ToPtr()); err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: s}, nil
}

func (d Disembargo) Context() DisembargoContext { return DisembargoContext{s: d.s} }

// SetTargetPtr installs p as this Disembargo's target. p must live in the
// same message as d; a pointer from another message does not resolve.
func (d Disembargo) SetTargetPtr(p capnp.Ptr) error { return d.s.SetPtr(0, p) }

func (c DisembargoContext) Which() DisembargoContextWhich {
	return DisembargoContextWhich(c.s.ReadUint8(0))
}
func (c DisembargoContext) SenderLoopback() uint32 { return c.s.ReadUint32(4) }
func (c DisembargoContext) SetSenderLoopback(v uint32) {
	c.s.WriteUint8(0, uint8(Disembargo_context_Which_senderLoopback))
	c.s.WriteUint32(4, v)
}
func (c DisembargoContext) ReceiverLoopback() uint32 { return c.s.ReadUint32(4) }
func (c DisembargoContext) SetReceiverLoopback(v uint32) {
	c.s.WriteUint8(0, uint8(Disembargo_context_Which_receiverLoopback))
	c.s.WriteUint32(4, v)
}

// --- Unimplemented ---

type Unimplemented struct{ s capnp.Struct }

func (m Message) NewUnimplemented() (Unimplemented, error) {
	s, err := m.newBody(Message_Which_unimplemented, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	return Unimplemented{s: s}, err
}

func (m Message) Unimplemented() (Unimplemented, error) {
	s, err := m.variant(Message_Which_unimplemented)
	return Unimplemented{s: s}, err
}

func (u Unimplemented) SetOriginal(which Which, body capnp.Ptr) error {
	u.s.WriteUint16(0, uint16(which))
	return u.s.SetPtr(0, body)
}

func (u Unimplemented) OriginalWhich() Which { return Which(u.s.ReadUint16(0)) }
func (u Unimplemented) Original() (capnp.Ptr, error) { return u.s.Ptr(0) }

// --- Abort ---

type Abort struct{ s capnp.Struct }

func (m Message) NewAbort() (Abort, error) {
	s, err := m.newBody(Message_Which_abort, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	return Abort{s: s}, err
}

func (m Message) Abort() (Abort, error) {
	s, err := m.variant(Message_Which_abort)
	return Abort{s: s}, err
}

func (a Abort) Reason() (Exception, error) {
	p, err := a.s.Ptr(0)
	if err != nil {
		return Exception{}, err
	}
	return Exception{s: p.Struct()}, nil
}

func (a Abort) NewReason() (Exception, error) {
	s, err := capnp.NewStruct(a.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return Exception{}, err
	}
	if err := a.s.SetPtr(0, s.ToPtr()); err != nil {
		return Exception{}, err
	}
	return Exception{s: s}, nil
}
