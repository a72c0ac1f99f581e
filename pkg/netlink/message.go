package netlink

import (
	"encoding/binary"
	"fmt"
)

// Wire constants from linux/netlink.h and linux/genetlink.h.
const (
	// HeaderLen is the aligned size of struct nlmsghdr.
	HeaderLen = 16
	// GenlHeaderLen is the aligned size of struct genlmsghdr.
	GenlHeaderLen = 4

	// TypeError is NLMSG_ERROR.
	TypeError uint16 = 0x2
	// FlagRequest is NLM_F_REQUEST.
	FlagRequest uint16 = 0x1

	// GenlVersion is written into every generic netlink header we send.
	GenlVersion uint8 = 0x1

	// GenlIDCtrl is the fixed message type of the generic netlink controller.
	GenlIDCtrl uint16 = 0x10
	// CtrlCmdGetFamily resolves a family name to its dynamic id.
	CtrlCmdGetFamily uint8 = 3
	// CtrlAttrFamilyID carries the resolved id (u16).
	CtrlAttrFamilyID uint16 = 1
	// CtrlAttrFamilyName carries the NUL-terminated family name.
	CtrlAttrFamilyName uint16 = 2

	// DefaultMaxMessageSize bounds every message sent or received.
	DefaultMaxMessageSize = 1024
)

// Header mirrors struct nlmsghdr.
type Header struct {
	Len   uint32
	Type  uint16
	Flags uint16
	Seq   uint32
	PID   uint32
}

// GenlHeader mirrors struct genlmsghdr.
type GenlHeader struct {
	Command  uint8
	Version  uint8
	Reserved uint16
}

// Message is a generic netlink message: both headers plus the attribute
// region that follows them.
type Message struct {
	Header  Header
	Genl    GenlHeader
	Payload []byte
}

// Attrs iterates the top-level attributes of the payload.
func (m *Message) Attrs() *AttrIterator {
	return NewAttrIterator(m.Payload)
}

// Marshal encodes the message. Header.Len is derived from the payload; the
// caller's value is ignored.
func (m *Message) Marshal() []byte {
	length := HeaderLen + GenlHeaderLen + len(m.Payload)
	b := make([]byte, 0, Align(length))
	b = binary.NativeEndian.AppendUint32(b, uint32(length))
	b = binary.NativeEndian.AppendUint16(b, m.Header.Type)
	b = binary.NativeEndian.AppendUint16(b, m.Header.Flags)
	b = binary.NativeEndian.AppendUint32(b, m.Header.Seq)
	b = binary.NativeEndian.AppendUint32(b, m.Header.PID)
	b = append(b, m.Genl.Command, m.Genl.Version)
	b = binary.NativeEndian.AppendUint16(b, m.Genl.Reserved)
	return append(b, m.Payload...)
}

// ParseMessage validates a received datagram and exposes its payload.
// capacity is the size of the buffer the datagram was received into; a
// declared length beyond it cannot be trusted.
func ParseMessage(b []byte, capacity int) (*Message, error) {
	if len(b) < HeaderLen {
		return nil, &ProtocolError{Reason: "message shorter than netlink header", Received: len(b)}
	}

	h := Header{
		Len:   binary.NativeEndian.Uint32(b[0:4]),
		Type:  binary.NativeEndian.Uint16(b[4:6]),
		Flags: binary.NativeEndian.Uint16(b[6:8]),
		Seq:   binary.NativeEndian.Uint32(b[8:12]),
		PID:   binary.NativeEndian.Uint32(b[12:16]),
	}

	declared := int(h.Len)
	if declared < HeaderLen || declared > len(b) {
		return nil, &ProtocolError{
			Reason:   "header length inconsistent with received size",
			Declared: declared,
			Received: len(b),
		}
	}
	if declared > capacity {
		return nil, &ProtocolError{
			Reason:   "message larger than receive buffer",
			Declared: declared,
			Received: len(b),
			Capacity: capacity,
		}
	}

	if h.Type == TypeError {
		return nil, ErrErrorResponse
	}

	if declared < HeaderLen+GenlHeaderLen {
		return nil, &ProtocolError{
			Reason:   fmt.Sprintf("message type %d has no generic netlink header", h.Type),
			Declared: declared,
			Received: len(b),
		}
	}

	return &Message{
		Header: h,
		Genl: GenlHeader{
			Command:  b[HeaderLen],
			Version:  b[HeaderLen+1],
			Reserved: binary.NativeEndian.Uint16(b[HeaderLen+2 : HeaderLen+4]),
		},
		Payload: b[HeaderLen+GenlHeaderLen : declared],
	}, nil
}
