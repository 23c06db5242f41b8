package relayevents

import (
	"testing"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

func TestBusDispatchesToRegisteredHandler(t *testing.T) {
	bus := NewBus()
	var got []endpoint.Event
	bus.Register(endpoint.ConnectionAdded, func(e endpoint.Event) {
		got = append(got, e)
	})

	addr := netaddr.New(10, 0, 0, 1, 9000)
	bus.Emit(endpoint.Event{Type: endpoint.ConnectionAdded, Addr: addr})
	bus.Emit(endpoint.Event{Type: endpoint.ConnectionRemoved, Addr: addr})

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 (only ConnectionAdded registered)", len(got))
	}
	if got[0].Addr != addr {
		t.Errorf("event addr = %v, want %v", got[0].Addr, addr)
	}
}

func TestBusSupportsMultipleHandlersPerType(t *testing.T) {
	bus := NewBus()
	var firstCalled, secondCalled bool
	bus.Register(endpoint.IdentityLinked, func(endpoint.Event) { firstCalled = true })
	bus.Register(endpoint.IdentityLinked, func(endpoint.Event) { secondCalled = true })

	bus.Emit(endpoint.Event{Type: endpoint.IdentityLinked})

	if !firstCalled || !secondCalled {
		t.Errorf("firstCalled=%v secondCalled=%v, want both true", firstCalled, secondCalled)
	}
}

func TestBusSatisfiesEventSink(t *testing.T) {
	var _ endpoint.EventSink = NewBus()
}
