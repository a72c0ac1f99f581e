package netlink

import (
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
)

// Socket is the datagram endpoint a Conn talks through. The Linux
// implementation is returned by Dial; tests substitute their own.
type Socket interface {
	Send(b []byte) (int, error)
	Recv(b []byte) (int, error)
	ReceiveBufferSize() (int, error)
	SetReceiveBufferSize(n int) error
	Close() error
}

// Conn frames generic netlink requests and validates responses. It is not
// safe for concurrent use: responses are not correlated with requests.
type Conn struct {
	sock    Socket
	pid     uint32
	maxSize int
	log     *zap.Logger
}

// Option configures a Conn.
type Option func(*Conn)

// WithMaxMessageSize overrides DefaultMaxMessageSize.
func WithMaxMessageSize(n int) Option {
	return func(c *Conn) { c.maxSize = n }
}

// WithLogger sets the logger used for message tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPID overrides the sender pid written into every request.
func WithPID(pid uint32) Option {
	return func(c *Conn) { c.pid = pid }
}

// NewConn wraps sock.
func NewConn(sock Socket, opts ...Option) *Conn {
	c := &Conn{
		sock:    sock,
		pid:     uint32(os.Getpid()),
		maxSize: DefaultMaxMessageSize,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize < HeaderLen+GenlHeaderLen+AttrHeaderLen {
		c.maxSize = DefaultMaxMessageSize
	}
	return c
}

// MaxMessageSize reports the configured message size limit.
func (c *Conn) MaxMessageSize() int {
	return c.maxSize
}

// SendCmd sends a request carrying exactly one attribute. A partially written
// message is resumed from the first unsent byte.
func (c *Conn) SendCmd(msgType uint16, cmd uint8, attrType uint16, value []byte) error {
	attrLen := AttrHeaderLen + len(value)
	total := HeaderLen + GenlHeaderLen + Align(attrLen)
	if attrLen > math.MaxUint16 || total > c.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, total, c.maxSize)
	}

	msg := Message{
		Header: Header{Type: msgType, Flags: FlagRequest, PID: c.pid},
		Genl:   GenlHeader{Command: cmd, Version: GenlVersion},
		// Seq stays zero; responses are never matched against it.
		Payload: AppendAttr(make([]byte, 0, Align(attrLen)), attrType, value),
	}
	buf := msg.Marshal()

	c.log.Debug("sending netlink command",
		zap.Uint16("type", msgType),
		zap.Uint8("cmd", cmd),
		zap.Uint16("attr_type", attrType),
		zap.Int("attr_len", len(value)),
		zap.Int("msg_len", len(buf)))

	for len(buf) > 0 {
		n, err := c.sock.Send(buf)
		if err != nil {
			return &IOError{Op: "send", Err: err}
		}
		if n <= 0 {
			return &IOError{Op: "send", Err: io.ErrShortWrite}
		}
		buf = buf[n:]
	}
	return nil
}

// RecvResponse blocks for one datagram and validates it.
func (c *Conn) RecvResponse() (*Message, error) {
	buf := make([]byte, c.maxSize)
	n, err := c.sock.Recv(buf)
	if err != nil {
		return nil, &IOError{Op: "recv", Err: err}
	}

	msg, err := ParseMessage(buf[:n], len(buf))
	if err != nil {
		c.log.Debug("rejected netlink message", zap.Int("size", n), zap.Error(err))
		return nil, err
	}

	c.log.Debug("received netlink message",
		zap.Int("size", n),
		zap.Uint16("type", msg.Header.Type),
		zap.Uint32("nlmsg_len", msg.Header.Len))
	return msg, nil
}

// ReceiveBufferSize returns SO_RCVBUF. The kernel reports double the value
// that was requested through SetReceiveBufferSize.
func (c *Conn) ReceiveBufferSize() (int, error) {
	n, err := c.sock.ReceiveBufferSize()
	if err != nil {
		return 0, &IOError{Op: "getsockopt", Err: err}
	}
	return n, nil
}

// SetReceiveBufferSize sets SO_RCVBUF. The kernel doubles n to leave room for
// bookkeeping overhead.
func (c *Conn) SetReceiveBufferSize(n int) error {
	if err := c.sock.SetReceiveBufferSize(n); err != nil {
		return &IOError{Op: "setsockopt", Err: err}
	}
	return nil
}

// Close closes the socket.
func (c *Conn) Close() error {
	if err := c.sock.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}
