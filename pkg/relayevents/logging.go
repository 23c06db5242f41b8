package relayevents

import (
	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/rlog"
)

// LogAll registers a handler on bus for every event type that logs it via
// rlog at info level, a reasonable default subscriber for a demo or a
// process that has no richer use for lifecycle events.
func LogAll(bus *Bus) {
	for _, t := range []endpoint.EventType{
		endpoint.ConnectionAdded,
		endpoint.ConnectionRemoved,
		endpoint.IdentityLinkRequested,
		endpoint.IdentityUnlinkRequested,
		endpoint.IdentityLinked,
		endpoint.IdentityUnlinked,
	} {
		bus.Register(t, logEvent)
	}
}

func logEvent(e endpoint.Event) {
	rlog.Info(rlog.Fields{
		"addr":        e.Addr.String(),
		"identity_id": e.IdentityID,
	}, e.Type.String())
}
