package endpoint

import "github.com/riftnet/riftnet/pkg/channel"

// Config carries the per-endpoint knobs from §6: identity gating and test
// loss injection.
type Config struct {
	UseIdentity      bool
	DropPacketChance int // 0-100
	DropReliableOnly bool
}

// reservedOrderedChannel and reservedUnorderedChannel are auto-configured
// on every new connection, per §6: "Channel IDs 1 and 2 are auto-
// configured ordered and unordered respectively."
const (
	reservedOrderedChannel   byte = 1
	reservedUnorderedChannel byte = 2
)

func defaultChannelTemplates() map[byte]channel.Config {
	return map[byte]channel.Config{
		reservedOrderedChannel:   channel.DefaultConfig(true),
		reservedUnorderedChannel: channel.DefaultConfig(false),
	}
}
