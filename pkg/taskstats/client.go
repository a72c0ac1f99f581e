package taskstats

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/utils/cpuset"

	"github.com/srodi/taskstats/pkg/netlink"
)

// Protocol values from include/uapi/linux/taskstats.h.
const (
	familyName = "TASKSTATS"

	cmdGet uint8 = 1

	cmdAttrPID               uint16 = 1
	cmdAttrTGID              uint16 = 2
	cmdAttrRegisterCPUMask   uint16 = 3
	cmdAttrDeregisterCPUMask uint16 = 4

	typeUnspec   uint16 = 0
	typePID      uint16 = 1
	typeTGID     uint16 = 2
	typeStats    uint16 = 3
	typeAggrPID  uint16 = 4
	typeAggrTGID uint16 = 5
	typeNull     uint16 = 6
)

// UnknownAttr describes an attribute the client skipped.
type UnknownAttr struct {
	// Nested is true for attributes found inside an aggregate.
	Nested bool
	Type   uint16
	Len    int
}

// Client queries the taskstats family over one generic netlink socket. It is
// not safe for concurrent use; callers sharing a Client must serialize
// access.
type Client struct {
	conn      *netlink.Conn
	familyID  uint16
	log       *zap.Logger
	onUnknown func(UnknownAttr)
	connOpts  []netlink.Option
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. The netlink connection opened by Open
// logs through it too.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUnknownAttrHandler replaces the default policy for unknown attribute
// types, which logs them at warn level and moves on.
func WithUnknownAttrHandler(fn func(UnknownAttr)) Option {
	return func(c *Client) { c.onUnknown = fn }
}

// WithConnOptions passes options to netlink.Dial. New ignores them.
func WithConnOptions(opts ...netlink.Option) Option {
	return func(c *Client) { c.connOpts = append(c.connOpts, opts...) }
}

func newClient(opts []Option) *Client {
	c := &Client{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.onUnknown == nil {
		c.onUnknown = func(a UnknownAttr) {
			c.log.Warn("skipping unknown attribute",
				zap.Uint16("nla_type", a.Type),
				zap.Bool("nested", a.Nested),
				zap.Int("len", a.Len))
		}
	}
	return c
}

// New resolves the taskstats family over conn. On failure conn is closed.
func New(conn *netlink.Conn, opts ...Option) (*Client, error) {
	c := newClient(opts)
	c.conn = conn

	id, err := c.lookupFamilyID()
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}
	c.familyID = id
	c.log.Debug("found taskstats family id", zap.Uint16("family_id", id))
	return c, nil
}

func (c *Client) lookupFamilyID() (uint16, error) {
	name := append([]byte(familyName), 0)
	if err := c.conn.SendCmd(netlink.GenlIDCtrl, netlink.CtrlCmdGetFamily, netlink.CtrlAttrFamilyName, name); err != nil {
		return 0, fmt.Errorf("family lookup: %w", err)
	}
	msg, err := c.conn.RecvResponse()
	if err != nil {
		return 0, fmt.Errorf("family lookup: %w", err)
	}

	it := msg.Attrs()
	for it.Next() {
		a := it.Attr()
		c.log.Debug("family lookup attribute", zap.Uint16("nla_type", a.Type))
		if a.Type == netlink.CtrlAttrFamilyID && len(a.Value) >= 2 {
			return a.Uint16(), nil
		}
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("family lookup: %w", err)
	}
	return 0, ErrNoFamilyID
}

// FamilyID is the dynamic generic netlink id of the taskstats family.
func (c *Client) FamilyID() uint16 {
	return c.familyID
}

// PIDStats returns the statistics of a single task (thread).
func (c *Client) PIDStats(tid uint32) (TaskStats, error) {
	ts, err := c.query(cmdAttrPID, typeAggrPID, typePID, tid)
	if err != nil {
		return TaskStats{}, fmt.Errorf("pid %d: %w", tid, err)
	}
	return ts, nil
}

// TGIDStats returns the statistics aggregated over a thread group (process).
func (c *Client) TGIDStats(tgid uint32) (TaskStats, error) {
	ts, err := c.query(cmdAttrTGID, typeAggrTGID, typeTGID, tgid)
	if err != nil {
		return TaskStats{}, fmt.Errorf("tgid %d: %w", tgid, err)
	}
	return ts, nil
}

func (c *Client) query(attr, aggr, idType uint16, id uint32) (TaskStats, error) {
	if err := c.conn.SendCmd(c.familyID, cmdGet, attr, binary.NativeEndian.AppendUint32(nil, id)); err != nil {
		return TaskStats{}, err
	}
	msg, err := c.conn.RecvResponse()
	if err != nil {
		return TaskStats{}, err
	}

	var (
		out   TaskStats
		found bool
	)
	err = c.scan(msg.Payload, idType, func(t uint16) bool { return t == aggr }, func(ts TaskStats) bool {
		out, found = ts, true
		return false
	})
	if err != nil {
		return TaskStats{}, err
	}
	if !found {
		return TaskStats{}, ErrNoStats
	}
	return out, nil
}

// RegisterCPUMask asks the kernel to multicast exit records of tasks on the
// given CPUs to this socket. The kernel does not acknowledge the request.
func (c *Client) RegisterCPUMask(mask cpuset.CPUSet) error {
	return c.sendCPUMask(cmdAttrRegisterCPUMask, mask)
}

// DeregisterCPUMask undoes RegisterCPUMask for the given CPUs.
func (c *Client) DeregisterCPUMask(mask cpuset.CPUSet) error {
	return c.sendCPUMask(cmdAttrDeregisterCPUMask, mask)
}

// RegisterCPUMaskString registers a mask written in the kernel's cpulist
// format, e.g. "0-3,8".
func (c *Client) RegisterCPUMaskString(s string) error {
	mask, err := cpuset.Parse(s)
	if err != nil {
		return fmt.Errorf("taskstats: cpu mask %q: %w", s, err)
	}
	return c.RegisterCPUMask(mask)
}

func (c *Client) sendCPUMask(attr uint16, mask cpuset.CPUSet) error {
	if mask.IsEmpty() {
		return ErrEmptyCPUMask
	}
	value := append([]byte(mask.String()), 0)
	if err := c.conn.SendCmd(c.familyID, cmdGet, attr, value); err != nil {
		return fmt.Errorf("cpumask %s: %w", mask, err)
	}
	c.log.Debug("sent cpumask", zap.Uint16("attr", attr), zap.Stringer("mask", mask))
	return nil
}

// ListenRegistered blocks for one multicast message on a registered socket
// and returns every record it carries, in the order the kernel sent them.
func (c *Client) ListenRegistered() ([]TaskStats, error) {
	msg, err := c.conn.RecvResponse()
	if err != nil {
		return nil, err
	}

	var out []TaskStats
	isAggr := func(t uint16) bool { return t == typeAggrPID || t == typeAggrTGID }
	err = c.scan(msg.Payload, 0, isAggr, func(ts TaskStats) bool {
		out = append(out, ts)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoStats
	}
	return out, nil
}

// ReceiveBufferSize returns SO_RCVBUF of the underlying socket.
func (c *Client) ReceiveBufferSize() (int, error) {
	return c.conn.ReceiveBufferSize()
}

// SetReceiveBufferSize sets SO_RCVBUF. Listeners on busy machines need more
// than the default to avoid dropped exit records.
func (c *Client) SetReceiveBufferSize(n int) error {
	return c.conn.SetReceiveBufferSize(n)
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
