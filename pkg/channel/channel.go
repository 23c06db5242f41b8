// Package channel composes a receiver, a send-buffer manager, and a
// fragmenter into one logical stream within an endpoint: §4.5 of the
// reliability engine.
package channel

import (
	"fmt"
	"time"

	"github.com/riftnet/riftnet/pkg/bufpool"
	"github.com/riftnet/riftnet/pkg/fragment"
	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/receiver"
	"github.com/riftnet/riftnet/pkg/sendbuf"
	"github.com/riftnet/riftnet/pkg/wire"
)

// DefaultNackRedundancy is how many times a pending NACK may be piggybacked
// on outbound reliable frames before it is dropped from the queue.
const DefaultNackRedundancy = 1

// publishRetryBudget bounds ReceivePublished's internal retry loop so a run
// of NONE placeholders can never spin unboundedly.
const publishRetryBudget = 1000

// Sender is the subset of a socket a channel needs to transmit frames. It
// is satisfied by *socket.Socket; tests may supply a fake.
type Sender interface {
	SendTo(addr netaddr.Addr, data []byte) (int, error)
}

// Stats counts per-channel activity for diagnostics and metrics export.
type Stats struct {
	Sent                  uint64
	Resent                uint64
	NonesSent             uint64
	NacksSent             uint64
	Received              uint64
	FragmentGroupsDropped uint64
}

// Config carries the per-channel knobs exposed in the external configuration
// surface (§6): window size, NACK redundancy, and ordering.
type Config struct {
	ReceiveWindowSize uint32
	NackRedundancy    uint32
	Ordered           bool
}

// DefaultConfig returns the configuration auto-assigned to channel IDs 1
// (ordered) and 2 (unordered).
func DefaultConfig(ordered bool) Config {
	return Config{
		ReceiveWindowSize: receiver.DefaultWindowSize,
		NackRedundancy:    DefaultNackRedundancy,
		Ordered:           ordered,
	}
}

// Channel is one logical stream between an endpoint and one peer.
type Channel struct {
	ID     byte
	Peer   netaddr.Addr
	Config Config

	recv     *receiver.Receiver
	sendBuf  *sendbuf.Manager
	reassm   *fragment.Reassembler
	groupIDs fragment.GroupAllocator
	pool     *bufpool.Pool

	resendSet map[uint16]struct{}
	scratch   []byte

	Stats Stats
}

// New creates a channel for one peer with its own per-channel buffer pool,
// matching the data model's "byte-buffer pool is per-channel and not
// shared".
func New(id byte, peer netaddr.Addr, cfg Config) *Channel {
	return &Channel{
		ID:        id,
		Peer:      peer,
		Config:    cfg,
		recv:      receiver.New(cfg.Ordered, cfg.ReceiveWindowSize, bufpool.NewDefault()),
		sendBuf:   sendbuf.NewManager(bufpool.NewDefault()),
		reassm:    fragment.NewReassembler(),
		pool:      bufpool.NewDefault(),
		resendSet: make(map[uint16]struct{}),
		scratch:   make([]byte, bufpool.DefaultBufferSize),
	}
}

// SendReliable allocates one or more send buffers for body (fragmenting if
// it meets the should-fragment threshold), writes the header(s), and
// transmits. A pending NACK is piggybacked only when body goes out as a
// single frame; fragment chunks carry none. It returns the reliable
// sequence(s) used.
func (c *Channel) SendReliable(sender Sender, body []byte) ([]uint16, error) {
	if !fragment.ShouldFragment(len(body)) {
		seq, err := c.sendOneFrame(sender, body)
		if err != nil {
			return nil, err
		}
		return []uint16{seq}, nil
	}
	return c.sendFragmented(sender, body)
}

func (c *Channel) sendOneFrame(sender Sender, body []byte) (uint16, error) {
	seq := c.sendBuf.NextSequence()
	nack, piggyback := c.recv.NextPiggyback(c.Config.NackRedundancy)

	headerLen := wire.BaseHeaderSize
	if piggyback {
		headerLen = wire.NackedHeaderSize
	}

	buf := c.pool.Get(headerLen + len(body))
	out := buf.Bytes()
	if piggyback {
		wire.PutNacked(out, wire.NackedHeader{
			Base:          wire.Base{MessageType: wire.ReliableWithNack, ChannelID: c.ID, Sequence: seq},
			StartSequence: nack.StartSequence,
			Flags:         nack.Flags,
		})
		c.Stats.NacksSent += uint64(len(nack.Sequences()))
	} else {
		wire.PutBase(out, wire.Base{MessageType: wire.Reliable, ChannelID: c.ID, Sequence: seq})
	}
	copy(out[headerLen:], body)

	c.sendBuf.Store(seq, buf, time.Now())
	if _, err := sender.SendTo(c.Peer, out); err != nil {
		return seq, fmt.Errorf("channel: send reliable frame: %w", err)
	}
	c.Stats.Sent++
	return seq, nil
}

// sendFragmented splits body into chunks and sends each with its own
// sequence under a shared fragment group. If any step fails the whole send
// is aborted and an empty sequence list is returned, per §4.3.
func (c *Channel) sendFragmented(sender Sender, body []byte) ([]uint16, error) {
	chunks := fragment.Split(body)
	group := c.groupIDs.Next()
	seqs := make([]uint16, 0, len(chunks))

	startSeq := c.sendBuf.NextSequence()
	seqs = append(seqs, startSeq)
	if err := c.sendFragmentChunk(sender, chunks[0], startSeq, group, startSeq, uint16(len(chunks))); err != nil {
		return nil, err
	}
	for _, chunk := range chunks[1:] {
		seq := c.sendBuf.NextSequence()
		seqs = append(seqs, seq)
		if err := c.sendFragmentChunk(sender, chunk, seq, group, startSeq, uint16(len(chunks))); err != nil {
			return nil, err
		}
	}
	return seqs, nil
}

func (c *Channel) sendFragmentChunk(sender Sender, chunk []byte, seq, group, startSeq, count uint16) error {
	buf := c.pool.Get(wire.FragmentHeaderSize + len(chunk))
	out := buf.Bytes()
	wire.PutFragment(out, wire.FragmentHeader{
		Base:                  wire.Base{MessageType: wire.Fragment, ChannelID: c.ID, Sequence: seq},
		FragmentGroup:         group,
		FragmentStartSequence: startSeq,
		FragmentCount:         count,
	})
	copy(out[wire.FragmentHeaderSize:], chunk)

	c.sendBuf.Store(seq, buf, time.Now())
	if _, err := sender.SendTo(c.Peer, out); err != nil {
		return fmt.Errorf("channel: send fragment chunk: %w", err)
	}
	c.Stats.Sent++
	return nil
}

// HandleReliable records an incoming RELIABLE frame's payload and refreshes
// the channel's NACKs. RELIABLE_WITH_NACK frames go through
// HandleReliableWithNack, which also queues the piggybacked NACK's
// sequences for resend.
func (c *Channel) HandleReliable(h wire.Base, payload []byte) {
	c.Stats.Received++
	c.recv.Accept(h.Sequence, payload)
	c.recv.CreateNacks()
}

// HandleReliableWithNack is HandleReliable for the extended header: it
// also enqueues the piggybacked NACK's sequences for resend.
func (c *Channel) HandleReliableWithNack(h wire.NackedHeader, payload []byte) {
	c.enqueueResend(wire.Nack{StartSequence: h.StartSequence, Flags: h.Flags})
	c.Stats.Received++
	c.recv.Accept(h.Sequence, payload)
	c.recv.CreateNacks()
}

// HandlePlaceholder records an incoming NONE frame's sequence.
func (c *Channel) HandlePlaceholder(sequence uint16) {
	c.recv.RecordPlaceholder(sequence)
}

// HandleNackFrame decodes a dedicated NACK frame's varint payload and
// enqueues every named sequence for resend.
func (c *Channel) HandleNackFrame(payload []byte) error {
	nacks, err := wire.DecodeNackPayload(payload)
	for _, n := range nacks {
		c.enqueueResend(n)
	}
	if err != nil {
		return fmt.Errorf("channel: decode nack payload: %w", err)
	}
	return nil
}

func (c *Channel) enqueueResend(n wire.Nack) {
	for _, seq := range n.Sequences() {
		c.resendSet[seq] = struct{}{}
	}
}

// HandleFragment hands an incoming FRAGMENT frame to the reassembler. If it
// completes the group, the reassembled body is recorded in the receive
// window under this chunk's sequence, tagged wire.Fragment; otherwise the
// chunk's sequence is recorded as a placeholder so window bookkeeping
// advances without publishing a partial body.
func (c *Channel) HandleFragment(h wire.FragmentHeader, payload []byte, now time.Time) {
	c.Stats.Received++
	assembled, done := c.reassm.Add(h, payload, now)
	if done {
		c.recv.AcceptTagged(h.Sequence, assembled, wire.Fragment)
	} else {
		c.recv.RecordPlaceholder(h.Sequence)
	}
	c.recv.CreateNacks()
}

// ExpireFragmentGroups drops fragment groups that have sat incomplete past
// their TTL. It is not called from Update (see the design notes on
// fragment-group expiry); callers invoke it on their own schedule.
func (c *Channel) ExpireFragmentGroups(now time.Time) int {
	dropped := c.reassm.ExpireGroups(now)
	c.Stats.FragmentGroupsDropped += uint64(dropped)
	return dropped
}

// Update services the channel's periodic obligations: sending any pending
// dedicated NACK frame, resending frames named by peer NACKs, and
// publishing newly-deliverable payloads.
func (c *Channel) Update(sender Sender) error {
	if c.recv.HasPendingNacks() {
		if err := c.sendNackFrame(sender); err != nil {
			return err
		}
	}
	c.serviceResends(sender)
	c.recv.Publish()
	return nil
}

func (c *Channel) sendNackFrame(sender Sender) error {
	nacks := c.recv.PendingNacks()
	payload := wire.EncodeNackPayload(nacks)

	buf := c.pool.Get(wire.BaseHeaderSize + len(payload))
	out := buf.Bytes()
	wire.PutBase(out, wire.Base{MessageType: wire.NackFrame, ChannelID: c.ID})
	copy(out[wire.BaseHeaderSize:], payload)

	_, err := sender.SendTo(c.Peer, out)
	c.pool.Return(buf)
	if err != nil {
		return fmt.Errorf("channel: send nack frame: %w", err)
	}
	return nil
}

// serviceResends retransmits, or replaces with a NONE frame, every
// sequence named by a peer NACK since the last Update.
func (c *Channel) serviceResends(sender Sender) {
	for seq := range c.resendSet {
		entry, ok := c.sendBuf.Get(seq)
		if ok {
			frame := entry.Buf.Bytes()
			if frame[0] == wire.ReliableWithNack {
				n := wire.RewriteReliableWithNack(c.scratch, frame)
				frame = c.scratch[:n]
			}
			if _, err := sender.SendTo(c.Peer, frame); err == nil {
				c.Stats.Resent++
			}
			continue
		}

		none := c.scratch[:wire.BaseHeaderSize]
		wire.PutBase(none, wire.Base{MessageType: wire.None, ChannelID: c.ID, Sequence: seq})
		if _, err := sender.SendTo(c.Peer, none); err == nil {
			c.Stats.NonesSent++
		}
	}
	c.resendSet = make(map[uint16]struct{})
}

// ReceivePublished first moves any newly-deliverable payloads from the
// receive window into the published FIFO, then drains one message from
// that FIFO into out, returning the number of bytes written. It
// transparently skips NONE placeholders, retrying up to publishRetryBudget
// times to avoid pathological spinning on a long run of holes.
func (c *Channel) ReceivePublished(out []byte) (int, bool) {
	c.recv.Publish()
	for i := 0; i < publishRetryBudget; i++ {
		p, ok := c.recv.PopPublished()
		if !ok {
			return 0, false
		}
		if p.MessageType == wire.None {
			continue
		}
		return copy(out, p.Payload), true
	}
	return 0, false
}
