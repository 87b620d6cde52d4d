package capnp

import "unicode/utf8"

// NewText allocates a list of bytes holding s plus a trailing NUL, matching
// the wire convention that text pointers include their terminator.
func NewText(seg *Segment, s string) (Ptr, error) {
	l, err := NewUInt8List(seg, int32(len(s)+1))
	if err != nil {
		return Ptr{}, err
	}
	for i := 0; i < len(s); i++ {
		l.SetUint8At(i, s[i])
	}
	l.SetUint8At(len(s), 0)
	return l.ToPtr(), nil
}

// NewData allocates a list of bytes holding b verbatim (no terminator).
func NewData(seg *Segment, b []byte) (Ptr, error) {
	l, err := NewUInt8List(seg, int32(len(b)))
	if err != nil {
		return Ptr{}, err
	}
	for i, c := range b {
		l.SetUint8At(i, c)
	}
	return l.ToPtr(), nil
}

// Text returns p interpreted as text: a borrow of the segment's bytes with
// one trailing NUL stripped if present. A NULL pointer yields "".
func (p Ptr) Text() string {
	if !p.IsValid() || p.flags.kind != ptrKindList {
		return ""
	}
	l := p.List()
	n := l.Len()
	if n == 0 {
		return ""
	}
	if l.Uint8At(n-1) == 0 {
		n--
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = l.Uint8At(i)
	}
	return string(buf)
}

// TextStrict is Text but rejects invalid UTF-8 instead of returning it
// verbatim.
func (p Ptr) TextStrict() (string, error) {
	s := p.Text()
	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	return s, nil
}

// Data returns p interpreted as a raw byte slice (no NUL stripping). A
// NULL pointer yields an empty (non-nil-semantic, but zero-length) slice.
func (p Ptr) Data() []byte {
	if !p.IsValid() || p.flags.kind != ptrKindList {
		return nil
	}
	l := p.List()
	n := l.Len()
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = l.Uint8At(i)
	}
	return buf
}

var errInvalidUTF8 = textError("capnp: text is not valid UTF-8")

type textError string

func (e textError) Error() string { return string(e) }
