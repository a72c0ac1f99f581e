package netlink

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 0}, {1, 4}, {2, 4}, {3, 4}, {4, 4}, {5, 8}, {8, 8}, {328, 328}, {329, 332},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Align(tc.in), "Align(%d)", tc.in)
	}
}

func TestAppendAttrPadding(t *testing.T) {
	for l := 0; l <= 5; l++ {
		value := make([]byte, l)
		b := AppendAttr(nil, 7, value)
		require.Len(t, b, Align(AttrHeaderLen+l), "value length %d", l)
		assert.Equal(t, uint16(AttrHeaderLen+l), binary.NativeEndian.Uint16(b[0:2]), "header carries unaligned length")
		assert.Equal(t, uint16(7), binary.NativeEndian.Uint16(b[2:4]))
	}
}

func TestAttrIteratorWalksSiblings(t *testing.T) {
	var b []byte
	b = AppendAttr(b, 1, []byte{0xaa})
	b = AppendAttr(b, 2, []byte{1, 2, 3, 4, 5})
	b = AppendAttr(b, 3, nil)

	it := NewAttrIterator(b)
	var types []uint16
	var lens []int
	for it.Next() {
		types = append(types, it.Attr().Type)
		lens = append(lens, len(it.Attr().Value))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint16{1, 2, 3}, types)
	assert.Equal(t, []int{1, 5, 0}, lens)

	assert.False(t, it.Next(), "iterator must not restart")
}

func TestAttrIteratorTrailingBytes(t *testing.T) {
	b := AppendAttr(nil, 1, []byte{1, 2, 3, 4})
	b = append(b, 0, 0, 0)

	it := NewAttrIterator(b)
	require.True(t, it.Next())
	assert.False(t, it.Next(), "fewer than a header's worth of bytes ends iteration")
	assert.NoError(t, it.Err())
}

func TestAttrIteratorUnpaddedLastAttr(t *testing.T) {
	b := AppendAttr(nil, 1, []byte{9})
	b = b[:AttrHeaderLen+1]

	it := NewAttrIterator(b)
	require.True(t, it.Next())
	assert.Equal(t, []byte{9}, it.Attr().Value)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestAttrIteratorRejectsBadLength(t *testing.T) {
	cases := []struct {
		name   string
		length uint16
	}{
		{"shorterThanHeader", 2},
		{"beyondBuffer", 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := make([]byte, 8)
			binary.NativeEndian.PutUint16(b[0:2], tc.length)
			binary.NativeEndian.PutUint16(b[2:4], 5)

			it := NewAttrIterator(b)
			assert.False(t, it.Next())

			var perr *ProtocolError
			require.ErrorAs(t, it.Err(), &perr)
			assert.Equal(t, int(tc.length), perr.Declared)
			assert.Equal(t, 8, perr.Received)
		})
	}
}

func TestAttrTypeMasksFlags(t *testing.T) {
	b := AppendAttr(nil, 0x8000|4, []byte{1, 0, 0, 0})
	it := NewAttrIterator(b)
	require.True(t, it.Next())
	assert.Equal(t, uint16(4), it.Attr().Type)
}

func TestAttrNested(t *testing.T) {
	inner := AppendAttr(nil, 1, binary.NativeEndian.AppendUint32(nil, 1234))
	inner = AppendAttr(inner, 3, []byte("payload"))
	outer := AppendAttr(nil, 4, inner)

	it := NewAttrIterator(outer)
	require.True(t, it.Next())
	require.Equal(t, uint16(4), it.Attr().Type)

	nested := it.Attr().Nested()
	require.True(t, nested.Next())
	assert.Equal(t, uint32(1234), nested.Attr().Uint32())
	require.True(t, nested.Next())
	assert.Equal(t, "payload", nested.Attr().String())
	assert.False(t, nested.Next())
	assert.NoError(t, nested.Err())
}

func TestAttrScalars(t *testing.T) {
	a := Attr{Type: 1, Value: binary.NativeEndian.AppendUint64(nil, 0x0102030405060708)}
	assert.Equal(t, uint64(0x0102030405060708), a.Uint64())
	assert.Equal(t, binary.NativeEndian.Uint32(a.Value), a.Uint32())
	assert.Equal(t, binary.NativeEndian.Uint16(a.Value), a.Uint16())

	s := Attr{Value: []byte("TASKSTATS\x00junk")}
	assert.Equal(t, "TASKSTATS", s.String())
	assert.Equal(t, "abc", Attr{Value: []byte("abc")}.String())
}

func TestAttrScalarTooShortPanics(t *testing.T) {
	a := Attr{Type: 9, Value: []byte{1, 2, 3}}
	assert.Panics(t, func() { a.Uint32() })
	assert.Panics(t, func() { a.Uint64() })
	assert.NotPanics(t, func() { a.Uint16() })
}
