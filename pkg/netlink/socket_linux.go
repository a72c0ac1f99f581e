//go:build linux
// +build linux

package netlink

import (
	"golang.org/x/sys/unix"
)

// Dial opens a generic netlink socket bound to a kernel-assigned port id.
func Dial(opts ...Option) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_GENERIC)
	if err != nil {
		return nil, &IOError{Op: "socket", Err: err}
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		_ = unix.Close(fd)
		return nil, &IOError{Op: "bind", Err: err}
	}
	return NewConn(&socket{fd: fd}, opts...), nil
}

// socket sends every message to the kernel (port id 0).
type socket struct {
	fd int
}

func (s *socket) Send(b []byte) (int, error) {
	return unix.SendmsgN(s.fd, b, nil, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}, 0)
}

func (s *socket) Recv(b []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, b, 0)
	return n, err
}

func (s *socket) ReceiveBufferSize() (int, error) {
	return unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
}

func (s *socket) SetReceiveBufferSize(n int) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func (s *socket) Close() error {
	return unix.Close(s.fd)
}
