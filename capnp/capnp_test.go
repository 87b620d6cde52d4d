package capnp

import "testing"

// TestStructFieldRoundTrip exercises every fixed-width data accessor pair
// plus a bool bit field packed into the same word, matching the schema
// compiler's own bit-packing convention.
func TestStructFieldRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	s, err := NewRootStruct(seg, ObjectSize{DataWords: 3})
	if err != nil {
		t.Fatal(err)
	}

	s.WriteUint8(0, 0x7f)
	s.WriteBool(1, 0, true)
	s.WriteBool(1, 1, false)
	s.WriteUint16(2, 0xbeef)
	s.WriteUint32(4, 0xdeadbeef)
	s.WriteUint64(8, 0x0102030405060708)

	if got := s.ReadUint8(0); got != 0x7f {
		t.Errorf("ReadUint8 = %#x, want 0x7f", got)
	}
	if !s.ReadBool(1, 0) {
		t.Error("ReadBool(1,0) = false, want true")
	}
	if s.ReadBool(1, 1) {
		t.Error("ReadBool(1,1) = true, want false")
	}
	if got := s.ReadUint16(2); got != 0xbeef {
		t.Errorf("ReadUint16 = %#x, want 0xbeef", got)
	}
	if got := s.ReadUint32(4); got != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x, want 0xdeadbeef", got)
	}
	if got := s.ReadUint64(8); got != 0x0102030405060708 {
		t.Errorf("ReadUint64 = %#x, want 0x0102030405060708", got)
	}
}

// TestStructWritePastDataSectionIsDropped confirms the schema-evolution
// contract: a write past the allocated data section is silently ignored
// rather than panicking or corrupting a neighboring field.
func TestStructWritePastDataSectionIsDropped(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	s, err := NewRootStruct(seg, ObjectSize{DataWords: 1})
	if err != nil {
		t.Fatal(err)
	}
	s.WriteUint64(8, 0xffffffffffffffff) // one word past the 8-byte section
	if got := s.ReadUint64(8); got != 0 {
		t.Errorf("ReadUint64 past data section = %#x, want 0 (out-of-bounds reads default)", got)
	}
	if err := s.StrictWriteUint64(8, 1); err != ErrOutOfBounds {
		t.Errorf("StrictWriteUint64 past bounds = %v, want ErrOutOfBounds", err)
	}
}

// TestPointerFieldRoundTrip plants a child struct in a parent's pointer
// section and reads it back.
func TestPointerFieldRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	parent, err := NewRootStruct(seg, ObjectSize{PtrCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	child, err := NewStruct(seg, ObjectSize{DataWords: 1})
	if err != nil {
		t.Fatal(err)
	}
	child.WriteUint64(0, 42)
	if err := parent.SetPtr(0, child.ToPtr()); err != nil {
		t.Fatal(err)
	}

	got, err := parent.Ptr(0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsValid() {
		t.Fatal("Ptr(0) should be valid after SetPtr")
	}
	if v := got.Struct().ReadUint64(0); v != 42 {
		t.Errorf("round-tripped child field = %d, want 42", v)
	}
}

// TestNullPointerDefaults confirms reading an unset pointer field yields
// an invalid Ptr whose Struct()/List() projections are all zero values,
// never an error — schema evolution depends on this.
func TestNullPointerDefaults(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	parent, err := NewRootStruct(seg, ObjectSize{PtrCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	p, err := parent.Ptr(0)
	if err != nil {
		t.Fatal(err)
	}
	if p.IsValid() {
		t.Fatal("unset pointer field should be invalid")
	}
	if p.Struct().IsValid() {
		t.Error("Struct() of a NULL pointer should be invalid")
	}
	if p.List().IsValid() {
		t.Error("List() of a NULL pointer should be invalid")
	}
}

// TestTextAndDataRoundTrip exercises NewText/NewData and their Text()/
// Data() projections, including the trailing-NUL stripping Text() does
// that Data() must not.
func TestTextAndDataRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)

	textPtr, err := NewText(seg, "hello, capnp")
	if err != nil {
		t.Fatal(err)
	}
	if got := textPtr.Text(); got != "hello, capnp" {
		t.Errorf("Text() = %q, want %q", got, "hello, capnp")
	}

	dataPtr, err := NewData(seg, []byte{1, 2, 3, 0, 4})
	if err != nil {
		t.Fatal(err)
	}
	got := dataPtr.Data()
	want := []byte{1, 2, 3, 0, 4}
	if len(got) != len(want) {
		t.Fatalf("Data() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Data()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestPointerListRoundTrip allocates a pointer list and plants a distinct
// struct (each carrying a different tag value) at each slot.
func TestPointerListRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	l, err := NewPointerList(seg, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		s, err := NewStruct(seg, ObjectSize{DataWords: 1})
		if err != nil {
			t.Fatal(err)
		}
		s.WriteUint64(0, uint64(i*10))
		if err := l.SetPtrAt(i, s.ToPtr()); err != nil {
			t.Fatal(err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	for i := 0; i < 3; i++ {
		p, err := l.PtrAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if v := p.Struct().ReadUint64(0); v != uint64(i*10) {
			t.Errorf("element %d = %d, want %d", i, v, i*10)
		}
	}
}

// TestCompositeListRoundTrip allocates an inline-composite list (the
// layout used for lists of structs) and checks StructAt.
func TestCompositeListRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	l, err := NewCompositeList(seg, ObjectSize{DataWords: 1}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", l.Len())
	}
	for i := 0; i < 4; i++ {
		l.StructAt(i).WriteUint64(0, uint64(i*i))
	}
	for i := 0; i < 4; i++ {
		if v := l.StructAt(i).ReadUint64(0); v != uint64(i*i) {
			t.Errorf("element %d = %d, want %d", i, v, i*i)
		}
	}
}

// TestMarshalUnmarshalRoundTrip confirms a message with a struct, a
// pointer field, and a list survives Marshal followed by Unmarshal.
func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataWords: 1, PtrCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	root.WriteUint64(0, 0xcafef00d)
	l, err := NewUInt32List(seg, 3)
	if err != nil {
		t.Fatal(err)
	}
	l.SetUint32At(0, 10)
	l.SetUint32At(1, 20)
	l.SetUint32At(2, 30)
	if err := root.SetPtr(0, l.ToPtr()); err != nil {
		t.Fatal(err)
	}

	raw, err := seg.Message().Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	rootPtr, err := decoded.Root()
	if err != nil {
		t.Fatal(err)
	}
	decodedRoot := rootPtr.Struct()
	if v := decodedRoot.ReadUint64(0); v != 0xcafef00d {
		t.Errorf("decoded data field = %#x, want 0xcafef00d", v)
	}
	lp, err := decodedRoot.Ptr(0)
	if err != nil {
		t.Fatal(err)
	}
	decodedList := lp.List()
	if decodedList.Len() != 3 {
		t.Fatalf("decoded list Len() = %d, want 3", decodedList.Len())
	}
	for i, want := range []uint32{10, 20, 30} {
		if got := decodedList.Uint32At(i); got != want {
			t.Errorf("decoded list[%d] = %d, want %d", i, got, want)
		}
	}
}

// TestCopyAcrossMessages confirms Copy deep-copies a struct (including a
// nested pointer field) from one Message's arena into a fresh one, which
// is what makes it safe to plant application-built values into a
// self-contained outgoing wire message.
func TestCopyAcrossMessages(t *testing.T) {
	_, srcSeg := NewSingleSegmentMessage(nil)
	srcChild, err := NewStruct(srcSeg, ObjectSize{DataWords: 1})
	if err != nil {
		t.Fatal(err)
	}
	srcChild.WriteUint64(0, 123)
	srcRoot, err := NewRootStruct(srcSeg, ObjectSize{PtrCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := srcRoot.SetPtr(0, srcChild.ToPtr()); err != nil {
		t.Fatal(err)
	}

	_, dstSeg := NewSingleSegmentMessage(nil)
	cp, err := Copy(dstSeg, srcRoot.ToPtr())
	if err != nil {
		t.Fatal(err)
	}
	if cp.Segment() == srcSeg {
		t.Fatal("Copy should allocate in the destination segment, not reuse the source's")
	}
	cpStruct := cp.Struct()
	childPtr, err := cpStruct.Ptr(0)
	if err != nil {
		t.Fatal(err)
	}
	if v := childPtr.Struct().ReadUint64(0); v != 123 {
		t.Errorf("copied nested field = %d, want 123", v)
	}

	// Mutating the source after the copy must not affect the copy: Copy is
	// a deep copy, not a reference into the source's segment.
	srcChild.WriteUint64(0, 999)
	if v := childPtr.Struct().ReadUint64(0); v != 123 {
		t.Errorf("copy observed source mutation: got %d, want 123", v)
	}
}
