// Package fragment implements the split/reassemble logic for bodies too
// large for a single datagram: splitting an outbound body into
// ChunkThreshold-sized pieces sharing a fragment group, and reassembling an
// inbound group back into the original bytes once every chunk has arrived.
package fragment

import (
	"container/list"
	"time"

	"github.com/riftnet/riftnet/pkg/seqnum"
	"github.com/riftnet/riftnet/pkg/wire"
)

// ChunkThreshold is the should-fragment threshold and the maximum size of
// any one chunk: bodies of this length or greater are split before send.
const ChunkThreshold = 1200

// GroupTTL is how long an incomplete receive-side group is kept before it is
// dropped as abandoned.
const GroupTTL = 5 * time.Second

// ShouldFragment reports whether a body of the given length must be split
// before it can be handed to a single send buffer.
func ShouldFragment(bodyLen int) bool {
	return bodyLen >= ChunkThreshold
}

// Split divides body into chunks of at most ChunkThreshold bytes each, in
// order. A body shorter than the threshold still yields a single chunk, so
// callers may call Split unconditionally once ShouldFragment has returned
// true.
func Split(body []byte) [][]byte {
	if len(body) == 0 {
		return [][]byte{{}}
	}
	chunks := make([][]byte, 0, (len(body)+ChunkThreshold-1)/ChunkThreshold)
	for len(body) > 0 {
		n := ChunkThreshold
		if n > len(body) {
			n = len(body)
		}
		chunks = append(chunks, body[:n])
		body = body[n:]
	}
	return chunks
}

// group tracks the chunks seen so far for one inbound fragment group.
type group struct {
	id         uint16
	startSeq   uint16
	count      uint16
	chunks     map[uint16][]byte
	receivedAt time.Time
	elem       *list.Element // position in the expiry queue
}

// Reassembler tracks in-flight inbound fragment groups and assembles them
// once complete. It is not safe for concurrent use; callers (normally a
// single channel's receive path) must serialize access.
type Reassembler struct {
	groups  map[uint16]*group
	expiry  *list.List // front = oldest group, ordered by receivedAt of creation
	nowFunc func() time.Time
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{
		groups:  make(map[uint16]*group),
		expiry:  list.New(),
		nowFunc: time.Now,
	}
}

// Add records one fragment datagram's payload under its group. It returns
// the assembled body and true once every chunk named by the header has
// arrived; otherwise it returns (nil, false). Duplicate chunks (same
// group, same sequence) are ignored. now is the time to stamp newly
// created groups with, for GroupTTL bookkeeping.
func (r *Reassembler) Add(h wire.FragmentHeader, payload []byte, now time.Time) ([]byte, bool) {
	g, ok := r.groups[h.FragmentGroup]
	if !ok {
		g = &group{
			id:         h.FragmentGroup,
			startSeq:   h.FragmentStartSequence,
			count:      h.FragmentCount,
			chunks:     make(map[uint16][]byte),
			receivedAt: now,
		}
		g.elem = r.expiry.PushBack(g)
		r.groups[h.FragmentGroup] = g
	}

	if _, dup := g.chunks[h.Sequence]; dup {
		return nil, false
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	g.chunks[h.Sequence] = body

	if uint16(len(g.chunks)) < g.count {
		return nil, false
	}

	assembled, ok := assemble(g)
	r.remove(g)
	if !ok {
		return nil, false
	}
	return assembled, true
}

// assemble concatenates g's chunks in sequence order, starting at
// g.startSeq and advancing g.count times with wraparound. It fails (false)
// if, despite the chunk count matching g.count, a sequence in that range
// was never recorded -- which should not happen in practice but is checked
// rather than assumed.
func assemble(g *group) ([]byte, bool) {
	total := 0
	seq := g.startSeq
	order := make([]uint16, g.count)
	for i := uint16(0); i < g.count; i++ {
		chunk, ok := g.chunks[seq]
		if !ok {
			return nil, false
		}
		order[i] = seq
		total += len(chunk)
		seq = seqnum.Next(seq)
	}

	out := make([]byte, 0, total)
	for _, s := range order {
		out = append(out, g.chunks[s]...)
	}
	return out, true
}

func (r *Reassembler) remove(g *group) {
	r.expiry.Remove(g.elem)
	delete(r.groups, g.id)
}

// ExpireGroups drops any incomplete group older than GroupTTL as of now. It
// stops at the first group that is not yet expired: groups are queued in
// creation order, so every later group is at least as young and nothing
// further back in the queue can be expired either. It returns the number
// of groups dropped.
func (r *Reassembler) ExpireGroups(now time.Time) int {
	dropped := 0
	for e := r.expiry.Front(); e != nil; {
		g := e.Value.(*group)
		if now.Sub(g.receivedAt) < GroupTTL {
			break
		}
		next := e.Next()
		r.remove(g)
		dropped++
		e = next
	}
	return dropped
}

// Pending returns the number of fragment groups currently awaiting
// completion, for diagnostics and tests.
func (r *Reassembler) Pending() int {
	return len(r.groups)
}

// GroupAllocator hands out fragment group ids for outbound sends. It is a
// plain wrapping counter: group ids have no ordering semantics, unlike
// reliable sequence numbers, so no half-span comparison is needed. 0 and
// 65535 are reserved and never handed out, so next wraps 65534 -> 1.
type GroupAllocator struct {
	next uint16
}

// Next returns the next fragment group id.
func (a *GroupAllocator) Next() uint16 {
	if a.next == 0 {
		a.next = 1
	}
	id := a.next
	if id == 65534 {
		a.next = 1
	} else {
		a.next = id + 1
	}
	return id
}
