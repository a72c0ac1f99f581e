package netlink

import (
	"encoding/binary"
	"fmt"
)

const (
	// AttrHeaderLen is the size of struct nlattr: a 16-bit length followed by
	// a 16-bit type.
	AttrHeaderLen = 4

	alignTo = 4

	// The two top bits of nla_type are flags (NLA_F_NESTED, NLA_F_NET_BYTEORDER).
	attrTypeMask = 0x3fff
)

// Align rounds n up to the 4-byte boundary used by both netlink messages and
// attributes.
func Align(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// Attr is a single type-length-value attribute. Value aliases the buffer the
// attribute was read from.
type Attr struct {
	Type  uint16
	Value []byte
}

// Uint16 reads the value as a native-endian uint16.
func (a Attr) Uint16() uint16 {
	a.mustHold(2)
	return binary.NativeEndian.Uint16(a.Value)
}

// Uint32 reads the value as a native-endian uint32.
func (a Attr) Uint32() uint32 {
	a.mustHold(4)
	return binary.NativeEndian.Uint32(a.Value)
}

// Uint64 reads the value as a native-endian uint64.
func (a Attr) Uint64() uint64 {
	a.mustHold(8)
	return binary.NativeEndian.Uint64(a.Value)
}

// String returns the value up to the first NUL byte.
func (a Attr) String() string {
	for i, c := range a.Value {
		if c == 0 {
			return string(a.Value[:i])
		}
	}
	return string(a.Value)
}

// Nested walks the attributes packed inside this attribute's value.
func (a Attr) Nested() *AttrIterator {
	return NewAttrIterator(a.Value)
}

// mustHold panics when the value is too short for an n-byte scalar. Reading
// past the value would silently pick up the next attribute's bytes, so this is
// treated as a programming error rather than a runtime condition.
func (a Attr) mustHold(n int) {
	if len(a.Value) < n {
		panic(fmt.Sprintf("netlink: attribute type %d holds %d bytes, cannot read a %d-byte value",
			a.Type, len(a.Value), n))
	}
}

// AttrIterator walks a chain of sibling attributes. It only moves forward and
// cannot be restarted.
type AttrIterator struct {
	buf []byte
	cur Attr
	err error
}

// NewAttrIterator returns an iterator over the attributes packed in b, starting
// with the attribute header at b[0].
func NewAttrIterator(b []byte) *AttrIterator {
	return &AttrIterator{buf: b}
}

// Next advances to the next attribute. It returns false once fewer than
// AttrHeaderLen bytes remain or an attribute header is malformed.
func (it *AttrIterator) Next() bool {
	if it.err != nil || len(it.buf) < AttrHeaderLen {
		return false
	}

	length := int(binary.NativeEndian.Uint16(it.buf[0:2]))
	typ := binary.NativeEndian.Uint16(it.buf[2:4])
	if length < AttrHeaderLen || length > len(it.buf) {
		it.err = &ProtocolError{
			Reason:   fmt.Sprintf("attribute type %d length out of bounds", typ&attrTypeMask),
			Declared: length,
			Received: len(it.buf),
		}
		it.buf = nil
		return false
	}

	it.cur = Attr{
		Type:  typ & attrTypeMask,
		Value: it.buf[AttrHeaderLen:length:length],
	}

	// The trailing attribute may omit its padding.
	if next := Align(length); next < len(it.buf) {
		it.buf = it.buf[next:]
	} else {
		it.buf = nil
	}
	return true
}

// Attr returns the attribute the last call to Next stopped at.
func (it *AttrIterator) Attr() Attr {
	return it.cur
}

// Err reports a malformed attribute header that ended iteration early.
func (it *AttrIterator) Err() error {
	return it.err
}

// AppendAttr encodes one attribute onto b, followed by zero padding up to the
// next 4-byte boundary. The header carries the unaligned length.
func AppendAttr(b []byte, typ uint16, value []byte) []byte {
	length := AttrHeaderLen + len(value)
	b = binary.NativeEndian.AppendUint16(b, uint16(length))
	b = binary.NativeEndian.AppendUint16(b, typ)
	b = append(b, value...)
	for i := length; i < Align(length); i++ {
		b = append(b, 0)
	}
	return b
}
