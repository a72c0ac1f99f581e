//go:build linux
// +build linux

package taskstats

import (
	"github.com/srodi/taskstats/pkg/netlink"
)

// Open dials a generic netlink socket and resolves the taskstats family.
// Querying other processes needs CAP_NET_ADMIN on most kernels.
func Open(opts ...Option) (*Client, error) {
	c := newClient(opts)
	conn, err := netlink.Dial(append([]netlink.Option{netlink.WithLogger(c.log)}, c.connOpts...)...)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...)
}
