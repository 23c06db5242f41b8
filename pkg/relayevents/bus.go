// Package relayevents adapts the endpoint package's lifecycle
// notifications (connections, identity links) into a subscriber registry,
// so more than one interested party (a logger, a metrics counter, a game
// layer above the reliability engine) can react to the same Event.
package relayevents

import (
	"sync"

	"github.com/riftnet/riftnet/pkg/endpoint"
)

// Handler reacts to one Event.
type Handler func(endpoint.Event)

// Bus fans an endpoint.Event out to every handler registered for its type.
// It implements endpoint.EventSink, so Bus itself is what gets installed
// with Endpoint.SetEventSink; callers then Register against the bus rather
// than against the endpoint directly.
type Bus struct {
	mu       sync.RWMutex
	handlers map[endpoint.EventType][]Handler
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[endpoint.EventType][]Handler)}
}

// Register subscribes handler to every Event of the given type.
func (b *Bus) Register(eventType endpoint.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit implements endpoint.EventSink: it runs every handler registered for
// event.Type, in registration order.
func (b *Bus) Emit(event endpoint.Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}
