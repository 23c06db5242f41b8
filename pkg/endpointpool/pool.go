// Package endpointpool owns a set of endpoints and parallelizes their
// receive phase across a worker pool: §4.9 of the reliability engine.
package endpointpool

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

// maxDrainPerEndpoint bounds how many messages one endpoint's receive task
// pulls per Receive/FinishReceive cycle.
const maxDrainPerEndpoint = 100000

// drainScratchSize is the per-worker scratch buffer each receive task reads
// into before copying a message out to its own Published entry.
const drainScratchSize = 8192

// ErrReceiveInProgress is returned by Receive when a prior Receive has not
// yet been matched with FinishReceive.
var ErrReceiveInProgress = errors.New("endpointpool: receive already in progress")

// Published is one message drained from a pool member, tagged with the
// endpoint it arrived on.
type Published struct {
	EndpointID uint32
	ChannelID  byte
	From       netaddr.Addr
	Payload    []byte
}

// Pool owns N endpoints and exposes both the non-blocking split
// receive()/finish_receive() pair and the blocking batched
// receive_blocking_out_buffer() path.
type Pool struct {
	mu        sync.Mutex
	endpoints map[uint32]*endpoint.Endpoint
	order     []uint32
	nextID    uint32

	group       *errgroup.Group
	perEndpoint map[uint32][]Published

	identityIndex map[uint32]uint32       // identity id -> endpoint id
	addressIndex  map[netaddr.Addr]uint32 // peer addr -> endpoint id
	indexStale    bool
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		endpoints:     make(map[uint32]*endpoint.Endpoint),
		perEndpoint:   make(map[uint32][]Published),
		identityIndex: make(map[uint32]uint32),
		addressIndex:  make(map[netaddr.Addr]uint32),
	}
}

// Add registers ep under a pool-assigned id and returns it.
func (p *Pool) Add(ep *endpoint.Endpoint) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.endpoints[id] = ep
	p.order = append(p.order, id)
	p.indexStale = true
	return id
}

// Remove drops an endpoint from the pool. It does not close its socket.
func (p *Pool) Remove(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.endpoints, id)
	delete(p.perEndpoint, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.indexStale = true
}

// Get returns the endpoint registered under id.
func (p *Pool) Get(id uint32) (*endpoint.Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	return ep, ok
}

// Len reports the number of endpoints currently owned by the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Receive submits one drain task per endpoint to a work-stealing goroutine
// group and returns immediately; results are collected by FinishReceive. A
// second Receive before the matching FinishReceive is rejected.
func (p *Pool) Receive() error {
	p.mu.Lock()
	if p.group != nil {
		p.mu.Unlock()
		return ErrReceiveInProgress
	}
	g := new(errgroup.Group)
	p.group = g
	ids := make([]uint32, len(p.order))
	copy(ids, p.order)
	endpoints := make(map[uint32]*endpoint.Endpoint, len(ids))
	for _, id := range ids {
		endpoints[id] = p.endpoints[id]
	}
	p.mu.Unlock()

	for _, id := range ids {
		id, ep := id, endpoints[id]
		g.Go(func() error {
			drained := drainEndpoint(id, ep, maxDrainPerEndpoint)
			p.mu.Lock()
			p.perEndpoint[id] = drained
			p.mu.Unlock()
			return nil
		})
	}
	return nil
}

// FinishReceive waits for every task submitted by Receive to complete, then
// drains every per-endpoint queue into one published FIFO in endpoint-
// registration order. The pool is idempotent across Receive/FinishReceive
// pairs: calling FinishReceive without a prior Receive returns an empty
// slice.
func (p *Pool) FinishReceive() []Published {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Published
	for _, id := range p.order {
		out = append(out, p.perEndpoint[id]...)
		delete(p.perEndpoint, id)
	}
	p.group = nil
	return out
}

func drainEndpoint(id uint32, ep *endpoint.Endpoint, budget int) []Published {
	buf := make([]byte, drainScratchSize)
	var out []Published
	for i := 0; i < budget; i++ {
		n, channelID, from, err := ep.ReceiveLoop(buf)
		if err != nil || n == 0 {
			break
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		out = append(out, Published{EndpointID: id, ChannelID: channelID, From: from, Payload: payload})
	}
	return out
}

// UpdateAll drives every member endpoint's periodic obligations (NACKs,
// resends, publish) and stale-connection sweep. It is the caller's
// responsibility to invoke this on a regular tick; the pool does not run
// its own timer.
func (p *Pool) UpdateAll(now time.Time, staleAfter time.Duration) {
	p.mu.Lock()
	endpoints := make([]*endpoint.Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	for _, ep := range endpoints {
		ep.Update(now)
		if staleAfter > 0 {
			ep.CleanupStaleConnections(now, staleAfter)
		}
	}
}
