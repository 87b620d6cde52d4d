package rpccp

import "github.com/vatkit/capnrpc/capnp"

// Provide begins a three-party introduction: the sender asks the receiver
// (the vat hosting a capability) to hand that capability off to a third
// party the sender names in Recipient.
type Provide struct{ s capnp.Struct }

func (m Message) NewProvide() (Provide, error) {
	s, err := m.newBody(Message_Which_provide, capnp.ObjectSize{DataWords: 1, PtrCount: 2})
	return Provide{s: s}, err
}

func (m Message) Provide() (Provide, error) {
	s, err := m.variant(Message_Which_provide)
	return Provide{s: s}, err
}

func (p Provide) QuestionId() uint32     { return p.s.ReadUint32(0) }
func (p Provide) SetQuestionId(v uint32) { p.s.WriteUint32(0, v) }

func (p Provide) Target() (MessageTarget, error) {
	ptr, err := p.s.Ptr(0)
	if err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: ptr.Struct()}, nil
}

func (p Provide) NewTarget() (MessageTarget, error) {
	s, err := capnp.NewStruct(p.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return MessageTarget{}, err
	}
	if err := p.s.SetPtr(0, s.ToPtr()); err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: s}, nil
}

// Recipient is an opaque, third-party-vat-network-defined value identifying
// who the capability is being handed off to. This runtime treats it as an
// uninterpreted blob it stores and relays, per the vat-network-agnostic
// contract; only the embedder's join-key policy inspects its contents.
func (p Provide) Recipient() (capnp.Ptr, error)   { return p.s.Ptr(1) }
func (p Provide) SetRecipient(v capnp.Ptr) error  { return p.s.SetPtr(1, v) }

// Accept completes a three-party introduction from the recipient's side: it
// redeems the Provide message's recipient token for the introduced
// capability.
type Accept struct{ s capnp.Struct }

func (m Message) NewAccept() (Accept, error) {
	s, err := m.newBody(Message_Which_accept, capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	return Accept{s: s}, err
}

func (m Message) Accept() (Accept, error) {
	s, err := m.variant(Message_Which_accept)
	return Accept{s: s}, err
}

func (a Accept) QuestionId() uint32         { return a.s.ReadUint32(0) }
func (a Accept) SetQuestionId(v uint32)     { a.s.WriteUint32(0, v) }
func (a Accept) Embargo() bool              { return a.s.ReadBool(4, 0) }
func (a Accept) SetEmbargo(v bool)          { a.s.WriteBool(4, 0, v) }

func (a Accept) Provision() (capnp.Ptr, error)  { return a.s.Ptr(0) }
func (a Accept) SetProvision(v capnp.Ptr) error { return a.s.SetPtr(0, v) }

// Join merges multiple paths to what the sender hopes is the same
// capability into a single reference, used to detect whether two
// capabilities received via different routes (e.g. through separate
// three-party introductions) are actually the same one.
type Join struct{ s capnp.Struct }

func (m Message) NewJoin() (Join, error) {
	s, err := m.newBody(Message_Which_join, capnp.ObjectSize{DataWords: 1, PtrCount: 2})
	return Join{s: s}, err
}

func (m Message) Join() (Join, error) {
	s, err := m.variant(Message_Which_join)
	return Join{s: s}, err
}

func (j Join) QuestionId() uint32     { return j.s.ReadUint32(0) }
func (j Join) SetQuestionId(v uint32) { j.s.WriteUint32(0, v) }

func (j Join) Target() (MessageTarget, error) {
	p, err := j.s.Ptr(0)
	if err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: p.Struct()}, nil
}

func (j Join) NewTarget() (MessageTarget, error) {
	s, err := capnp.NewStruct(j.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return MessageTarget{}, err
	}
	if err := j.s.SetPtr(0, s.ToPtr()); err != nil {
		return MessageTarget{}, err
	}
	return MessageTarget{s: s}, nil
}

// KeyPart is this message's fragment of the join key: the set of all
// KeyParts across every participant's Join message, once assembled, proves
// (or disproves) that every path led to the same underlying capability.
// Its contents are vat-network-specific; this runtime interprets it the
// way the two-party vat network's JoinKeyPart does (joinId/partCount/
// partNum), since every Conn here only ever talks to one peer.
func (j Join) KeyPart() (capnp.Ptr, error)  { return j.s.Ptr(1) }
func (j Join) SetKeyPart(v capnp.Ptr) error { return j.s.SetPtr(1, v) }

// JoinKeyPart is the two-party vat network's JoinKeyPart: {joinId,
// partCount, partNum}, identifying which leg of a multi-path join this
// message represents.
type JoinKeyPart struct{ s capnp.Struct }

func NewJoinKeyPart(seg *capnp.Segment) (JoinKeyPart, error) {
	s, err := capnp.NewStruct(seg, capnp.ObjectSize{DataWords: 1})
	return JoinKeyPart{s: s}, err
}

func JoinKeyPartFromPtr(p capnp.Ptr) JoinKeyPart { return JoinKeyPart{s: p.Struct()} }

func (k JoinKeyPart) ToPtr() capnp.Ptr { return k.s.ToPtr() }

func (k JoinKeyPart) JoinId() uint32      { return k.s.ReadUint32(0) }
func (k JoinKeyPart) SetJoinId(v uint32)  { k.s.WriteUint32(0, v) }
func (k JoinKeyPart) PartCount() uint16   { return k.s.ReadUint16(4) }
func (k JoinKeyPart) SetPartCount(v uint16) { k.s.WriteUint16(4, v) }
func (k JoinKeyPart) PartNum() uint16     { return k.s.ReadUint16(6) }
func (k JoinKeyPart) SetPartNum(v uint16) { k.s.WriteUint16(6, v) }
