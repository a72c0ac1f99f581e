//go:build !linux
// +build !linux

package netlink

// Dial always fails on platforms without netlink.
func Dial(opts ...Option) (*Conn, error) {
	return nil, ErrUnsupported
}
