package endpoint

import "github.com/riftnet/riftnet/pkg/netaddr"

// EventType enumerates the connection/identity lifecycle events an
// endpoint can emit, replacing the extern function-pointer callbacks of
// the engine this package is modeled on (see the design notes on dynamic
// dispatch via callbacks).
type EventType int

const (
	ConnectionAdded EventType = iota
	ConnectionRemoved
	IdentityLinkRequested
	IdentityUnlinkRequested
	IdentityLinked
	IdentityUnlinked
)

func (t EventType) String() string {
	switch t {
	case ConnectionAdded:
		return "ConnectionAdded"
	case ConnectionRemoved:
		return "ConnectionRemoved"
	case IdentityLinkRequested:
		return "IdentityLinkRequested"
	case IdentityUnlinkRequested:
		return "IdentityUnlinkRequested"
	case IdentityLinked:
		return "IdentityLinked"
	case IdentityUnlinked:
		return "IdentityUnlinked"
	default:
		return "Unknown"
	}
}

// Event is one lifecycle notification, delivered to an application-
// supplied EventSink.
type Event struct {
	Type       EventType
	Addr       netaddr.Addr
	IdentityID uint32
}

// EventSink receives endpoint lifecycle events. Implementations must not
// block: the endpoint calls Emit synchronously from its dispatch path.
type EventSink interface {
	Emit(Event)
}

// discardSink is installed by default so an endpoint with no configured
// sink never has to nil-check before emitting.
type discardSink struct{}

func (discardSink) Emit(Event) {}
