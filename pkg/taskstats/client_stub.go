//go:build !linux
// +build !linux

package taskstats

// Open always fails on platforms without netlink.
func Open(opts ...Option) (*Client, error) {
	return nil, ErrUnsupported
}
