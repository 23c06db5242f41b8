// Package receiver implements one channel's reception window: acceptance
// of incoming reliable sequences, missing-sequence tracking, NACK
// generation and piggyback rotation, and ordered-or-unordered publication
// to the application.
package receiver

import (
	"container/list"

	"github.com/riftnet/riftnet/pkg/bufpool"
	"github.com/riftnet/riftnet/pkg/seqnum"
	"github.com/riftnet/riftnet/pkg/wire"
)

// DefaultWindowSize is the receive window used when a channel does not
// configure one explicitly.
const DefaultWindowSize = 512

// maxNackSpan is the farthest a sequence may lie behind a NACK record's
// start_sequence and still be named by one of its 32 flag bits; a record
// names at most maxNackSpan+1 sequences (start_sequence plus 32 bits).
const maxNackSpan = 32

// Published is one payload released to the application, still tagged with
// its wire message type so the channel's drain loop can recognize and skip
// NONE placeholders.
type Published struct {
	Sequence    uint16
	MessageType byte
	Payload     []byte
}

type slot struct {
	sequence    uint16
	buf         *bufpool.Buffer // nil for NONE placeholders, which carry no payload
	messageType byte
}

func (s slot) payloadBytes() []byte {
	if s.buf == nil {
		return nil
	}
	return s.buf.Bytes()
}

type queuedNack struct {
	nack      wire.Nack
	sentCount uint32
}

// Receiver is one channel's receive-side state. It is not safe for
// concurrent use; a channel serializes access from its single dispatch
// goroutine.
type Receiver struct {
	ordered    bool
	windowSize uint32
	slots      []slot
	occupied   []bool

	started         bool
	currentSequence uint16
	lastSequence    uint16

	nackList         []wire.Nack
	nackQueue        *list.List // of *queuedNack
	resendList       []uint16
	skippedSequences uint64
	published        []Published

	pool *bufpool.Pool
}

// New returns a Receiver for one channel with the given ordering policy and
// window size (0 selects DefaultWindowSize). pool supplies the buffers a
// received payload is copied into before it is stored in the window
// (nil selects a default-sized pool); this is the receive-side counterpart
// of the pooled buffers a channel's send-buffer manager already owns.
func New(ordered bool, windowSize uint32, pool *bufpool.Pool) *Receiver {
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	if pool == nil {
		pool = bufpool.NewDefault()
	}
	return &Receiver{
		ordered:    ordered,
		windowSize: windowSize,
		slots:      make([]slot, windowSize),
		occupied:   make([]bool, windowSize),
		nackQueue:  list.New(),
		pool:       pool,
	}
}

func (r *Receiver) index(seq uint16) uint32 {
	return uint32(seq) % r.windowSize
}

func (r *Receiver) slotAt(seq uint16) (slot, bool) {
	i := r.index(seq)
	if !r.occupied[i] || r.slots[i].sequence != seq {
		return slot{}, false
	}
	return r.slots[i], true
}

// SkippedSequences returns the number of sequences permanently abandoned
// because they fell out the back of the window.
func (r *Receiver) SkippedSequences() uint64 { return r.skippedSequences }

// CurrentSequence returns the highest sequence ever accepted.
func (r *Receiver) CurrentSequence() uint16 { return r.currentSequence }

// LastSequence returns the contiguous-prefix watermark.
func (r *Receiver) LastSequence() uint16 { return r.lastSequence }

// accept is the shared acceptance-policy implementation for both real
// payloads (Accept) and NONE placeholders (RecordPlaceholder). payload is
// caller-owned and may alias a shared receive buffer reused on the next
// datagram, so it is always copied into a pool-owned buffer before being
// held in the window; the copy is returned to the pool once this slot is
// overwritten by a later sequence sharing the same window index.
func (r *Receiver) accept(seq uint16, payload []byte, messageType byte) bool {
	if r.started {
		if seqnum.IsGreater(subWindow(r.currentSequence, r.windowSize), seq) {
			return false
		}
		if existing, ok := r.slotAt(seq); ok && existing.sequence == seq {
			return false // duplicate
		}
	}

	i := r.index(seq)
	if r.occupied[i] {
		prior := r.slots[i].sequence
		lowWatermark := subWindow(r.lastSequence, r.windowSize)
		if prior != seq && seqnum.IsLess(prior, lowWatermark) {
			r.skippedSequences++
		}
		if r.slots[i].buf != nil {
			r.pool.Return(r.slots[i].buf)
		}
	}

	var buf *bufpool.Buffer
	if payload != nil {
		buf = r.pool.Get(len(payload))
		copy(buf.Bytes(), payload)
	}
	r.slots[i] = slot{sequence: seq, buf: buf, messageType: messageType}
	r.occupied[i] = true

	if !r.started {
		r.started = true
		r.currentSequence = seq
		r.lastSequence = seqnum.Prev(seq)
		return true
	}

	if !r.ordered && seqnum.IsEqualOrLess(seq, r.lastSequence) {
		// The watermark has already moved past seq, so Publish will not
		// visit it again; an unordered channel releases it now.
		r.published = append(r.published, Published{Sequence: seq, MessageType: messageType, Payload: r.slots[i].payloadBytes()})
		return true
	}

	if seqnum.IsGreater(seq, r.currentSequence) {
		for q := seqnum.Next(r.currentSequence); q != seq; q = seqnum.Next(q) {
			if _, ok := r.slotAt(q); !ok {
				r.resendList = append(r.resendList, q)
			}
		}
		r.currentSequence = seq
	}
	return true
}

// subWindow returns seq - window, wraparound-aware, used to compute the
// low edge of the receive window.
func subWindow(seq uint16, window uint32) uint16 {
	s := seq
	for i := uint32(0); i < window; i++ {
		s = seqnum.Prev(s)
	}
	return s
}

// Accept applies the acceptance policy (§4.4) to an incoming reliable
// sequence carrying payload. It returns false if the sequence was dropped
// (out of window, or a duplicate).
func (r *Receiver) Accept(seq uint16, payload []byte) bool {
	return r.accept(seq, payload, wire.Reliable)
}

// RecordPlaceholder records a NONE frame's sequence: it fills the window
// slot (so publication can advance past it) without carrying a payload.
func (r *Receiver) RecordPlaceholder(seq uint16) bool {
	return r.accept(seq, nil, wire.None)
}

// AcceptTagged is Accept generalized to a caller-chosen message type, used
// by the channel to record a completed fragment reassembly (tagged
// wire.Fragment, carrying the reassembled body) under the sequence of the
// chunk that completed the group.
func (r *Receiver) AcceptTagged(seq uint16, payload []byte, messageType byte) bool {
	return r.accept(seq, payload, messageType)
}

// Publish moves newly-deliverable payloads from the window into the
// published FIFO and returns how many were moved.
//
// Ordered channels publish contiguously starting at last_sequence+1,
// stopping at the first gap. Unordered channels publish every occupied
// slot immediately and advance last_sequence the same way, without
// holding payloads back for ordering.
func (r *Receiver) Publish() int {
	if !r.started {
		return 0
	}
	n := 0
	for {
		next := seqnum.Next(r.lastSequence)
		if seqnum.IsGreater(next, r.currentSequence) {
			break
		}
		s, ok := r.slotAt(next)
		if !ok {
			if r.ordered {
				break
			}
			// Unordered: still advance past a genuinely absent slot so the
			// watermark does not stall forever behind current_sequence.
			r.lastSequence = next
			continue
		}
		r.published = append(r.published, Published{Sequence: s.sequence, MessageType: s.messageType, Payload: s.payloadBytes()})
		r.lastSequence = next
		n++
	}
	return n
}

// TakePublished drains and returns every payload currently in the
// published FIFO.
func (r *Receiver) TakePublished() []Published {
	out := r.published
	r.published = nil
	return out
}

// PopPublished removes and returns the front of the published FIFO, if
// any.
func (r *Receiver) PopPublished() (Published, bool) {
	if len(r.published) == 0 {
		return Published{}, false
	}
	p := r.published[0]
	r.published = r.published[1:]
	return p, true
}

// CreateNacks scans the window from last_sequence+1 up to
// current_sequence-1, descending, for missing sequences, groups them into
// NACK records of at most 33 sequences (one start_sequence plus 32 bits),
// and appends the records to both nack_list and nack_queue. It returns the
// total count of sequences encoded across all new records.
func (r *Receiver) CreateNacks() int {
	if !r.started || !seqnum.IsGreater(r.currentSequence, seqnum.Next(r.lastSequence)) {
		r.resendList = nil
		return 0
	}

	total := 0
	var current *wire.Nack
	upper := seqnum.Prev(r.currentSequence)
	lower := seqnum.Next(r.lastSequence)

	for s := upper; ; s = seqnum.Prev(s) {
		if _, ok := r.slotAt(s); !ok {
			if current == nil {
				current = &wire.Nack{StartSequence: s}
			} else if k := seqnum.Diff(current.StartSequence, s); k >= 1 && k <= maxNackSpan {
				current.SetBit(int(k - 1))
			} else {
				r.emitNack(*current)
				total += len(current.Sequences())
				current = &wire.Nack{StartSequence: s}
			}
		}
		if s == lower {
			break
		}
	}
	if current != nil {
		r.emitNack(*current)
		total += len(current.Sequences())
	}
	r.resendList = nil
	return total
}

func (r *Receiver) emitNack(n wire.Nack) {
	r.nackList = append(r.nackList, n)
	r.nackQueue.PushBack(&queuedNack{nack: n})
}

// PendingNacks returns the dedicated-frame NACK queue (nack_list) and
// clears it; callers send these as a single NACK datagram.
func (r *Receiver) PendingNacks() []wire.Nack {
	out := r.nackList
	r.nackList = nil
	return out
}

// HasPendingNacks reports whether a dedicated NACK frame should be sent.
func (r *Receiver) HasPendingNacks() bool {
	return len(r.nackList) > 0
}

// NextPiggyback pops the front of nack_queue; if its sent_count is still
// below redundancy it is returned for piggybacking and its sent_count is
// incremented. The entry is pushed back to the rear only while its
// sent_count is still below redundancy; once it reaches redundancy it is
// dropped from the queue rather than left to rotate forever.
func (r *Receiver) NextPiggyback(redundancy uint32) (wire.Nack, bool) {
	if redundancy == 0 || r.nackQueue.Len() == 0 {
		return wire.Nack{}, false
	}
	front := r.nackQueue.Front()
	qn := front.Value.(*queuedNack)
	r.nackQueue.Remove(front)

	if qn.sentCount >= redundancy {
		return wire.Nack{}, false
	}
	qn.sentCount++
	if qn.sentCount < redundancy {
		r.nackQueue.PushBack(qn)
	}
	return qn.nack, true
}
