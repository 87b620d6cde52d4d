package capnp

// Copy deep-copies src (struct, list, or capability) into dst, allocating
// fresh space in dst's message and, for capability pointers, appending a
// reference to dst's message's CapTable rather than assuming the two
// messages share one. This is what lets a value built in one Message
// (e.g. an application's call parameters, or a locally computed result)
// be planted into an outgoing wire Message, which always has to be a
// self-contained arena.
func Copy(dst *Segment, src Ptr) (Ptr, error) {
	if !src.IsValid() {
		return Ptr{}, nil
	}
	switch src.flags.kind {
	case ptrKindStruct:
		return copyStruct(dst, src.Struct())
	case ptrKindList:
		return copyList(dst, src.List())
	case ptrKindCapability:
		client := src.seg.msg.ClientAt(src.flags.capIndex)
		idx := dst.msg.AddCap(client)
		return NewInterface(dst, idx).ToPtr(), nil
	default:
		return Ptr{}, nil
	}
}

func copyStruct(dst *Segment, s Struct) (Ptr, error) {
	if !s.IsValid() {
		return Ptr{}, nil
	}
	out, err := NewStruct(dst, s.Size())
	if err != nil {
		return Ptr{}, err
	}
	dataLen := s.dataSizeBytes()
	for i := int64(0); i < dataLen; i++ {
		out.WriteUint8(i, s.ReadUint8(i))
	}
	for i := 0; i < int(s.ptr.flags.ptrCount); i++ {
		p, err := s.Ptr(i)
		if err != nil {
			return Ptr{}, err
		}
		cp, err := Copy(out.ptr.seg, p)
		if err != nil {
			return Ptr{}, err
		}
		if err := out.SetPtr(i, cp); err != nil {
			return Ptr{}, err
		}
	}
	return out.ToPtr(), nil
}

func copyList(dst *Segment, l List) (Ptr, error) {
	if !l.IsValid() {
		return Ptr{}, nil
	}
	n := l.Len()
	switch l.elementSize() {
	case sizeInlineComposite:
		out, err := NewCompositeList(dst, ObjectSize{DataWords: l.elemDataWords, PtrCount: l.elemPtrCount}, int32(n))
		if err != nil {
			return Ptr{}, err
		}
		for i := 0; i < n; i++ {
			src := l.StructAt(i)
			cp, err := copyStruct(out.ptr.seg, src)
			if err != nil {
				return Ptr{}, err
			}
			copyStructInto(out.StructAt(i), cp.Struct())
		}
		return out.ToPtr(), nil
	case sizePointer:
		out, err := NewPointerList(dst, int32(n))
		if err != nil {
			return Ptr{}, err
		}
		for i := 0; i < n; i++ {
			p, err := l.PtrAt(i)
			if err != nil {
				return Ptr{}, err
			}
			cp, err := Copy(out.ptr.seg, p)
			if err != nil {
				return Ptr{}, err
			}
			if err := out.SetPtrAt(i, cp); err != nil {
				return Ptr{}, err
			}
		}
		return out.ToPtr(), nil
	case sizeBit:
		out, err := NewBitList(dst, int32(n))
		if err != nil {
			return Ptr{}, err
		}
		for i := 0; i < n; i++ {
			out.SetBitAt(i, l.BitAt(i))
		}
		return out.ToPtr(), nil
	default:
		out, err := newPrimList(dst, l.elementSize(), int32(n))
		if err != nil {
			return Ptr{}, err
		}
		width := contentBytes(l.elementSize(), 1)
		for i := 0; i < n; i++ {
			srcOff, _ := l.byteOffsetOf(i, width)
			dstOff, _ := out.byteOffsetOf(i, width)
			copy(out.ptr.seg.data[dstOff:dstOff+width], l.ptr.seg.data[srcOff:srcOff+width])
		}
		return out.ToPtr(), nil
	}
}

// copyStructInto overwrites dst's already-allocated bytes with src's,
// used when an inline-composite list element was copied into a scratch
// struct (via copyStruct, which allocates its own space) and now needs to
// land at the list's fixed per-element slot instead.
func copyStructInto(dst, src Struct) {
	if !dst.IsValid() || !src.IsValid() {
		return
	}
	dataLen := dst.dataSizeBytes()
	for i := int64(0); i < dataLen; i++ {
		dst.WriteUint8(i, src.ReadUint8(i))
	}
	for i := 0; i < int(dst.ptr.flags.ptrCount); i++ {
		p, err := src.Ptr(i)
		if err != nil {
			continue
		}
		dst.SetPtr(i, p)
	}
}
