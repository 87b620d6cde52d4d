package rpccp

import "github.com/vatkit/capnrpc/capnp"

// MessageTarget identifies the capability a Call or Disembargo addresses:
// either a previously exported capability (by export id) or a not-yet-
// resolved answer reached by walking a transform through a still-pending
// call's eventual results.
type MessageTarget struct{ s capnp.Struct }

type MessageTargetWhich uint8

const (
	MessageTarget_Which_importedCap MessageTargetWhich = iota
	MessageTarget_Which_promisedAnswer
)

func (t MessageTarget) Which() MessageTargetWhich { return MessageTargetWhich(t.s.ReadUint8(0)) }

// ToPtr upcasts t to a generic pointer. It can be planted only within t's
// own message: written into a different message it does not resolve
// (capnp.Copy makes a copy that can).
func (t MessageTarget) ToPtr() capnp.Ptr { return t.s.ToPtr() }

func (t MessageTarget) ImportedCap() uint32 { return t.s.ReadUint32(4) }

func (t MessageTarget) SetImportedCap(id uint32) {
	t.s.WriteUint8(0, uint8(MessageTarget_Which_importedCap))
	t.s.WriteUint32(4, id)
}

func (t MessageTarget) PromisedAnswer() (PromisedAnswer, error) {
	p, err := t.s.Ptr(0)
	if err != nil {
		return PromisedAnswer{}, err
	}
	return PromisedAnswer{s: p.Struct()}, nil
}

func (t MessageTarget) NewPromisedAnswer() (PromisedAnswer, error) {
	t.s.WriteUint8(0, uint8(MessageTarget_Which_promisedAnswer))
	s, err := capnp.NewStruct(t.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return PromisedAnswer{}, err
	}
	if err := t.s.SetPtr(0, s.ToPtr()); err != nil {
		return PromisedAnswer{}, err
	}
	return PromisedAnswer{s: s}, nil
}

// PromisedAnswer identifies a not-yet-returned answer (by question id) plus
// a transform to apply to its eventual results, matching capnp.PipelineOp's
// getPointerField-only vocabulary.
type PromisedAnswer struct{ s capnp.Struct }

func (a PromisedAnswer) QuestionId() uint32     { return a.s.ReadUint32(0) }
func (a PromisedAnswer) SetQuestionId(v uint32) { a.s.WriteUint32(0, v) }

// Transform returns the op list as capnp.PipelineOp, ready for
// capnp.TransformPtr / Pipeline.GetPipelineFromOps.
func (a PromisedAnswer) Transform() ([]capnp.PipelineOp, error) {
	p, err := a.s.Ptr(0)
	if err != nil {
		return nil, err
	}
	l := p.List()
	n := l.Len()
	ops := make([]capnp.PipelineOp, n)
	for i := 0; i < n; i++ {
		st := l.StructAt(i)
		ops[i] = capnp.PipelineOp{Field: st.ReadUint16(0)}
	}
	return ops, nil
}

// SetTransform allocates and writes ops as the promised answer's op list.
func (a PromisedAnswer) SetTransform(ops []capnp.PipelineOp) error {
	l, err := capnp.NewCompositeList(a.s.Segment(), capnp.ObjectSize{DataWords: 1}, int32(len(ops)))
	if err != nil {
		return err
	}
	for i, op := range ops {
		l.StructAt(i).WriteUint16(0, op.Field)
	}
	return a.s.SetPtr(0, l.ToPtr())
}

// Payload is a method call's parameter or result struct plus the capability
// table entries (CapDescriptors) its pointers reference.
type Payload struct{ s capnp.Struct }

func (p Payload) Segment() *capnp.Segment     { return p.s.Segment() }
func (p Payload) Content() (capnp.Ptr, error) { return p.s.Ptr(0) }
func (p Payload) SetContent(v capnp.Ptr) error { return p.s.SetPtr(0, v) }

func (p Payload) CapTable() (capnp.List, error) {
	ptr, err := p.s.Ptr(1)
	if err != nil {
		return capnp.List{}, err
	}
	return ptr.List(), nil
}

func (p Payload) NewCapTable(n int) (capnp.List, error) {
	l, err := capnp.NewCompositeList(p.s.Segment(), capnp.ObjectSize{DataWords: 2, PtrCount: 2}, int32(n))
	if err != nil {
		return capnp.List{}, err
	}
	if err := p.s.SetPtr(1, l.ToPtr()); err != nil {
		return capnp.List{}, err
	}
	return l, nil
}

// CapDescriptorWhich identifies how a CapDescriptor resolves to a Client on
// the receiving side.
type CapDescriptorWhich uint8

const (
	CapDescriptor_Which_none CapDescriptorWhich = iota
	CapDescriptor_Which_senderHosted
	CapDescriptor_Which_senderPromise
	CapDescriptor_Which_receiverHosted
	CapDescriptor_Which_receiverAnswer
	CapDescriptor_Which_thirdPartyHosted
)

// CapDescriptor is one entry of a Payload's capability table: it tells the
// receiver how to resolve a capability pointer embedded in the payload's
// content into a local Client.
type CapDescriptor struct{ s capnp.Struct }

// CapDescriptorAt returns the i'th entry of a CapDescriptor list (as
// allocated by Payload.NewCapTable) as a typed CapDescriptor.
func CapDescriptorAt(list capnp.List, i int) CapDescriptor {
	return CapDescriptor{s: list.StructAt(i)}
}

func (d CapDescriptor) Which() CapDescriptorWhich { return CapDescriptorWhich(d.s.ReadUint8(0)) }

func (d CapDescriptor) SetSenderHosted(exportId uint32) {
	d.s.WriteUint8(0, uint8(CapDescriptor_Which_senderHosted))
	d.s.WriteUint32(4, exportId)
}
func (d CapDescriptor) SenderHosted() uint32 { return d.s.ReadUint32(4) }

func (d CapDescriptor) SetSenderPromise(exportId uint32) {
	d.s.WriteUint8(0, uint8(CapDescriptor_Which_senderPromise))
	d.s.WriteUint32(4, exportId)
}
func (d CapDescriptor) SenderPromise() uint32 { return d.s.ReadUint32(4) }

func (d CapDescriptor) SetReceiverHosted(importId uint32) {
	d.s.WriteUint8(0, uint8(CapDescriptor_Which_receiverHosted))
	d.s.WriteUint32(4, importId)
}
func (d CapDescriptor) ReceiverHosted() uint32 { return d.s.ReadUint32(4) }

func (d CapDescriptor) SetReceiverAnswer(questionId uint32) (PromisedAnswer, error) {
	d.s.WriteUint8(0, uint8(CapDescriptor_Which_receiverAnswer))
	s, err := capnp.NewStruct(d.s.Segment(), capnp.ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		return PromisedAnswer{}, err
	}
	s.WriteUint32(0, questionId)
	if err := d.s.SetPtr(0, s.ToPtr()); err != nil {
		return PromisedAnswer{}, err
	}
	return PromisedAnswer{s: s}, nil
}

func (d CapDescriptor) ReceiverAnswer() (PromisedAnswer, error) {
	p, err := d.s.Ptr(0)
	if err != nil {
		return PromisedAnswer{}, err
	}
	return PromisedAnswer{s: p.Struct()}, nil
}

// Exception is the RPC-level failure type attached to Return.exception,
// Resolve.exception, and Abort.reason.
type Exception struct{ s capnp.Struct }

type ExceptionType uint16

const (
	ExceptionType_failed ExceptionType = iota
	ExceptionType_overloaded
	ExceptionType_disconnected
	ExceptionType_unimplemented
)

func (e Exception) Type() ExceptionType     { return ExceptionType(e.s.ReadUint16(0)) }
func (e Exception) SetType(t ExceptionType) { e.s.WriteUint16(0, uint16(t)) }

func (e Exception) Reason() (string, error) {
	p, err := e.s.Ptr(0)
	if err != nil {
		return "", err
	}
	return p.Text(), nil
}

func (e Exception) SetReason(reason string) error {
	t, err := capnp.NewText(e.s.Segment(), reason)
	if err != nil {
		return err
	}
	return e.s.SetPtr(0, t)
}
