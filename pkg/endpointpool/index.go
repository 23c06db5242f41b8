package endpointpool

import (
	"errors"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

// ErrUnknownTarget is returned by SendByIdentity/SendByAddress when no pool
// member owns a connection matching the requested target.
var ErrUnknownTarget = errors.New("endpointpool: unknown target")

func sendTargetFor(identityID uint32, addr netaddr.Addr) endpoint.SendTarget {
	return endpoint.SendTarget{IdentityID: identityID, Addr: addr}
}

// rebuildIndexLocked recomputes identityIndex and addressIndex from every
// member endpoint's current connection set. Callers must hold p.mu.
func (p *Pool) rebuildIndexLocked() {
	p.identityIndex = make(map[uint32]uint32, len(p.identityIndex))
	p.addressIndex = make(map[netaddr.Addr]uint32, len(p.addressIndex))
	for id, ep := range p.endpoints {
		for _, c := range ep.Connections() {
			p.addressIndex[c.Addr] = id
			if c.Linked && c.IdentityID != 0 {
				p.identityIndex[c.IdentityID] = id
			}
		}
	}
	p.indexStale = false
}

// EndpointForIdentity resolves which pool member owns the connection linked
// to identity id, rebuilding the index first if any endpoint membership has
// changed since the last rebuild.
func (p *Pool) EndpointForIdentity(id uint32) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexStale {
		p.rebuildIndexLocked()
	}
	endpointID, ok := p.identityIndex[id]
	return endpointID, ok
}

// EndpointForAddress resolves which pool member owns a connection to addr.
func (p *Pool) EndpointForAddress(addr netaddr.Addr) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexStale {
		p.rebuildIndexLocked()
	}
	endpointID, ok := p.addressIndex[addr]
	return endpointID, ok
}

// RebuildIndex forces connections_by_identity / connections_by_address to
// be recomputed from every member endpoint's live connection set. It is
// normally unnecessary to call directly since EndpointForIdentity and
// EndpointForAddress rebuild lazily, but a caller that mutated many
// connections in a batch can use it to pay the cost once up front.
func (p *Pool) RebuildIndex() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebuildIndexLocked()
}

// SendByIdentity resolves identity id to its owning endpoint and dispatches
// body to it via SendTo with the given channel.
func (p *Pool) SendByIdentity(id uint32, channelID byte, body []byte) (int, error) {
	endpointID, ok := p.EndpointForIdentity(id)
	if !ok {
		return 0, ErrUnknownTarget
	}
	ep, ok := p.Get(endpointID)
	if !ok {
		return 0, ErrUnknownTarget
	}
	return ep.SendTo(sendTargetFor(id, netaddr.Addr{}), channelID, body)
}

// SendByAddress resolves addr to its owning endpoint and dispatches body to
// it via SendTo with the given channel.
func (p *Pool) SendByAddress(addr netaddr.Addr, channelID byte, body []byte) (int, error) {
	endpointID, ok := p.EndpointForAddress(addr)
	if !ok {
		return 0, ErrUnknownTarget
	}
	ep, ok := p.Get(endpointID)
	if !ok {
		return 0, ErrUnknownTarget
	}
	return ep.SendTo(sendTargetFor(0, addr), channelID, body)
}
