package endpointpool

import (
	"encoding/binary"

	"golang.org/x/sync/errgroup"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

// addrEncodedSize is the fixed width the blocking batched path reserves per
// message for the sender address: 4 octets + 2-byte port, padded to 10
// bytes for a future address family extension without a wire-format
// change.
const addrEncodedSize = 10

// entryHeaderSize is channel id (1) + address (addrEncodedSize) + payload
// length (2, u16).
const entryHeaderSize = 1 + addrEncodedSize + 2

// OutBuffer is a preallocated, length-prefixed record stream one endpoint's
// drain cycle writes into: zero per-message heap allocation on the hot
// path, at the cost of a bound on total bytes drained per cycle.
type OutBuffer struct {
	buf []byte
	n   int
}

// NewOutBuffer allocates an OutBuffer with the given byte capacity.
func NewOutBuffer(capacity int) *OutBuffer {
	return &OutBuffer{buf: make([]byte, capacity)}
}

// Bytes returns the records written since the last Reset.
func (o *OutBuffer) Bytes() []byte { return o.buf[:o.n] }

// Reset empties the buffer for reuse on the next drain cycle.
func (o *OutBuffer) Reset() { o.n = 0 }

func (o *OutBuffer) append(channelID byte, from netaddr.Addr, payload []byte) bool {
	need := entryHeaderSize + len(payload)
	if o.n+need > len(o.buf) {
		return false
	}
	rec := o.buf[o.n : o.n+need]
	rec[0] = channelID
	rec[1] = from.A
	rec[2] = from.B
	rec[3] = from.C
	rec[4] = from.D
	binary.LittleEndian.PutUint16(rec[5:7], from.Port)
	// rec[7:11] reserved, left zero.
	binary.LittleEndian.PutUint16(rec[11:13], uint16(len(payload)))
	copy(rec[13:], payload)
	o.n += need
	return true
}

// Entry is one decoded record from an OutBuffer's Bytes.
type Entry struct {
	ChannelID byte
	From      netaddr.Addr
	Payload   []byte
}

// DecodeEntries parses every record out of an OutBuffer's Bytes. It is the
// consumer-side counterpart to append, used by a caller that pulled the raw
// buffer across a boundary (e.g. a different goroutine or process) rather
// than reading Entry values directly.
func DecodeEntries(data []byte) []Entry {
	var out []Entry
	for len(data) >= entryHeaderSize {
		channelID := data[0]
		from := netaddr.New(data[1], data[2], data[3], data[4], binary.LittleEndian.Uint16(data[5:7]))
		length := int(binary.LittleEndian.Uint16(data[11:13]))
		if len(data) < entryHeaderSize+length {
			break
		}
		payload := data[entryHeaderSize : entryHeaderSize+length]
		out = append(out, Entry{ChannelID: channelID, From: from, Payload: payload})
		data = data[entryHeaderSize+length:]
	}
	return out
}

// ReceiveBlockingOutBuffer drains every member endpoint in parallel
// straight into its caller-supplied OutBuffer (indexed by endpoint id),
// blocking until every endpoint has completed one drain cycle. A message
// that would overflow its endpoint's OutBuffer is dropped; the caller
// should size buffers generously for its expected per-tick volume.
func (p *Pool) ReceiveBlockingOutBuffer(buffers map[uint32]*OutBuffer) error {
	p.mu.Lock()
	ids := make([]uint32, len(p.order))
	copy(ids, p.order)
	endpoints := make(map[uint32]*endpoint.Endpoint, len(ids))
	for _, id := range ids {
		endpoints[id] = p.endpoints[id]
	}
	p.mu.Unlock()

	g := new(errgroup.Group)
	for _, id := range ids {
		ep, out := endpoints[id], buffers[id]
		if out == nil {
			continue
		}
		g.Go(func() error {
			drainIntoOutBuffer(ep, out, maxDrainPerEndpoint)
			return nil
		})
	}
	return g.Wait()
}

// drainIntoOutBuffer reads each message into a per-call scratch buffer and
// appends a copy of it to out as a length-prefixed record: each worker
// owns its endpoint's OutBuffer exclusively, so no cross-goroutine
// synchronization is needed.
func drainIntoOutBuffer(ep *endpoint.Endpoint, out *OutBuffer, budget int) {
	scratch := make([]byte, drainScratchSize)
	for i := 0; i < budget; i++ {
		n, channelID, from, err := ep.ReceiveLoop(scratch)
		if err != nil || n == 0 {
			return
		}
		if !out.append(channelID, from, scratch[:n]) {
			return
		}
	}
}
