package taskstats

import (
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/netlink"
)

// scan walks a taskstats reply. Top-level attributes accepted by isAggr are
// descended into and each stats record found is passed to each, which returns
// false to stop. A top-level null attribute ends the reply. expectID is the
// id attribute type the request asked for; zero accepts both.
func (c *Client) scan(payload []byte, expectID uint16, isAggr func(uint16) bool, each func(TaskStats) bool) error {
	it := netlink.NewAttrIterator(payload)
	for it.Next() {
		a := it.Attr()
		switch {
		case a.Type == typeNull:
			return nil
		case isAggr(a.Type):
			more, err := c.scanAggr(a, expectID, each)
			if err != nil || !more {
				return err
			}
		default:
			c.onUnknown(UnknownAttr{Type: a.Type, Len: len(a.Value)})
		}
	}
	return it.Err()
}

func (c *Client) scanAggr(aggr netlink.Attr, expectID uint16, each func(TaskStats) bool) (bool, error) {
	it := aggr.Nested()
	for it.Next() {
		a := it.Attr()
		switch a.Type {
		case typeStats:
			if len(a.Value) < BaseSize {
				return false, &netlink.ProtocolError{
					Reason:   "stats attribute shorter than struct taskstats",
					Declared: BaseSize,
					Received: len(a.Value),
				}
			}
			if !each(Decode(a.Value)) {
				return false, nil
			}
		case typePID, typeTGID:
			var id uint32
			if len(a.Value) >= 4 {
				id = a.Uint32()
			}
			if expectID != 0 && a.Type != expectID {
				c.log.Warn("unexpected id attribute in aggregate", zap.Uint16("nla_type", a.Type), zap.Uint32("id", id))
			} else {
				c.log.Debug("aggregate id", zap.Uint16("nla_type", a.Type), zap.Uint32("id", id))
			}
		case typeNull:
			// padding between nested records
		default:
			c.onUnknown(UnknownAttr{Nested: true, Type: a.Type, Len: len(a.Value)})
		}
	}
	return true, it.Err()
}
