package endpoint

import (
	"time"

	"github.com/riftnet/riftnet/pkg/channel"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

// connection is one peer's state within an endpoint: its channel map plus
// whatever identity-link status gates its traffic.
type connection struct {
	addr            netaddr.Addr
	channels        map[byte]*channel.Channel
	identityID      uint32
	linked          bool
	lastReceiveTime time.Time
}

func newConnection(addr netaddr.Addr, templates map[byte]channel.Config, linked bool, now time.Time) *connection {
	c := &connection{
		addr:            addr,
		channels:        make(map[byte]*channel.Channel, len(templates)),
		linked:          linked,
		lastReceiveTime: now,
	}
	for id, cfg := range templates {
		c.channels[id] = channel.New(id, addr, cfg)
	}
	return c
}

func (c *connection) channelCount() int {
	return len(c.channels)
}
