// Package sendbuf manages the outbound frames a channel keeps in flight for
// possible retransmission: one entry per unacknowledged reliable sequence,
// stored in a fixed-capacity ring so memory stays bounded regardless of how
// fast sequences are produced.
package sendbuf

import (
	"sync"
	"time"

	"github.com/riftnet/riftnet/pkg/bufpool"
	"github.com/riftnet/riftnet/pkg/seqbuf"
	"github.com/riftnet/riftnet/pkg/seqnum"
)

// DefaultCapacity is the ring capacity used by a channel's send-buffer
// manager.
const DefaultCapacity = 1024

// Entry is one buffered outbound frame awaiting acknowledgment.
type Entry struct {
	Buf    *bufpool.Buffer
	SentAt time.Time
	Nacked bool
}

// Manager tracks in-flight outbound frames by reliable sequence and hands
// out the next sequence to use. It is safe for concurrent use: the receive
// path acks/nacks entries while a retransmit timer or the send path reads
// and stores them.
type Manager struct {
	mu   sync.RWMutex
	ring *seqbuf.Buffer[Entry]
	pool *bufpool.Pool
	next uint16
}

// NewManager returns a Manager with DefaultCapacity slots, returning
// evicted and acknowledged buffers to pool.
func NewManager(pool *bufpool.Pool) *Manager {
	return &Manager{
		ring: seqbuf.New[Entry](DefaultCapacity),
		pool: pool,
	}
}

// NextSequence returns the next reliable sequence number to use and
// advances the counter, wrapping per seqnum's 16-bit space.
func (m *Manager) NextSequence() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.next
	m.next = seqnum.Next(seq)
	return seq
}

// Store records buf as the in-flight frame for seq, sent at now. Any prior
// occupant of seq's ring slot (a stale entry the ring capacity forced out,
// or -- across the 65535-sequence space -- a genuine reuse) is returned to
// the pool first.
func (m *Manager) Store(seq uint16, buf *bufpool.Buffer, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if priorSeq, occupied := m.ring.SlotSequence(seq); occupied {
		if prior, ok := m.ring.Take(priorSeq); ok {
			m.pool.Return(prior.Buf)
		}
	}
	m.ring.Insert(seq, Entry{Buf: buf, SentAt: now})
}

// Get returns the buffered entry for seq, if its slot is still occupied by
// that exact sequence.
func (m *Manager) Get(seq uint16) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ring.Get(seq)
}

// MarkNacked flags seq's entry as nacked (eligible for the frame-rewrite
// retransmit path), returning false if seq is no longer buffered.
func (m *Manager) MarkNacked(seq uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ring.Get(seq)
	if !ok {
		return false
	}
	entry.Nacked = true
	m.ring.Insert(seq, entry)
	return true
}

// Ack removes seq's entry, returning its buffer to the pool. It is a no-op
// if seq is not buffered (already acked, evicted, or never sent).
func (m *Manager) Ack(seq uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ring.Take(seq)
	if !ok {
		return
	}
	m.pool.Return(entry.Buf)
}

// Capacity returns the ring's fixed capacity.
func (m *Manager) Capacity() uint32 {
	return m.ring.Capacity()
}
