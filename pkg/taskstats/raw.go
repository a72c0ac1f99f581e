package taskstats

import (
	"bytes"
	"encoding/binary"
)

// Raw holds the undecoded struct taskstats bytes a TaskStats was projected
// from. Bytes past the received length read as zero.
type Raw struct {
	buf [RawSize]byte
	n   int
}

func newRaw(b []byte) Raw {
	var r Raw
	r.n = copy(r.buf[:], b)
	return r
}

// Bytes returns the retained payload prefix.
func (r *Raw) Bytes() []byte {
	return r.buf[:r.n]
}

// Len is the number of retained payload bytes.
func (r *Raw) Len() int {
	return r.n
}

// Value reads a scalar member by its kernel name. ok is false for unknown
// names, non-scalar members and members beyond the retained payload.
func (r *Raw) Value(name string) (v uint64, ok bool) {
	f, found := fieldByName[name]
	if !found || f.Unit == UnitText || f.Offset+f.Size > r.n {
		return 0, false
	}
	return r.read(f), true
}

// Text reads a character array member, trimmed at the first NUL.
func (r *Raw) Text(name string) (string, bool) {
	f, found := fieldByName[name]
	if !found || f.Unit != UnitText || f.Offset+f.Size > r.n {
		return "", false
	}
	b := r.buf[f.Offset : f.Offset+f.Size]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), true
}

func (r *Raw) read(f Field) uint64 {
	b := r.buf[f.Offset : f.Offset+f.Size]
	switch f.Size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(b))
	case 4:
		return uint64(binary.NativeEndian.Uint32(b))
	default:
		return binary.NativeEndian.Uint64(b)
	}
}

// field reads a member that the caller knows is inside the holder. Members
// beyond the retained payload read as zero.
func (r *Raw) field(name string) uint64 {
	f := fieldByName[name]
	return r.read(f)
}
