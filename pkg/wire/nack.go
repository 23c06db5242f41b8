package wire

import (
	"encoding/binary"
	"errors"

	"github.com/riftnet/riftnet/pkg/seqnum"
)

// ErrShortNackPayload is returned when a NACK payload ends before a field
// it promised (via its count or Uvarint continuation bit) actually appears.
// Per §7, a corrupt NACK is tolerated: decoders read what they can and
// return the sequences decoded so far alongside this error.
var ErrShortNackPayload = errors.New("wire: short nack payload")

// MaxNackBits is the number of bits in a Nack's Flags field: one request
// per bit, each standing for a sequence behind StartSequence.
const MaxNackBits = 32

// MaxNackSequences is the most sequences a single Nack record can describe:
// StartSequence itself plus up to MaxNackBits older sequences.
const MaxNackSequences = MaxNackBits + 1

// Nack is a compact negative-acknowledgment record: StartSequence plus up to
// 32 older sequences named by the bits of Flags. Bit i (0-indexed) being set
// means sequence StartSequence-(i+1) (wraparound) is also missing.
type Nack struct {
	StartSequence uint16
	Flags         uint32
}

// Sequences expands n into the individual sequence numbers it names, most
// recent first.
func (n Nack) Sequences() []uint16 {
	out := make([]uint16, 0, MaxNackSequences)
	out = append(out, n.StartSequence)
	s := n.StartSequence
	for i := 0; i < MaxNackBits; i++ {
		s = seqnum.Prev(s)
		if n.Flags&(1<<uint(i)) != 0 {
			out = append(out, s)
		}
	}
	return out
}

// SetBit marks sequence StartSequence-(i+1) as also missing, where i is
// 0-indexed (i.e. SetBit(0, ...) marks StartSequence-1).
func (n *Nack) SetBit(i int) {
	n.Flags |= 1 << uint(i)
}

// EncodeNackPayload writes the varint-encoded NACK payload (count followed
// by count pairs of start_sequence/flags) used by dedicated NACK frames,
// after the caller has already written the four-byte base header.
func EncodeNackPayload(nacks []Nack) []byte {
	buf := make([]byte, 0, 3+len(nacks)*8)
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(tmp[:], uint64(len(nacks)))
	buf = append(buf, tmp[:n]...)

	for _, nk := range nacks {
		n = binary.PutUvarint(tmp[:], uint64(nk.StartSequence))
		buf = append(buf, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(nk.Flags))
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

// DecodeNackPayload reads back a NACK payload written by EncodeNackPayload.
// It tolerates a truncated/corrupt payload by returning whatever complete
// records it managed to read alongside ErrShortNackPayload, per §7's "bounded
// reads and proceeds" policy.
func DecodeNackPayload(payload []byte) ([]Nack, error) {
	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, ErrShortNackPayload
	}
	payload = payload[n:]

	// count is an attacker-controlled varint read straight off the wire;
	// a crafted 9-byte payload can claim an enormous count, so the
	// preallocation is capped by what the remaining bytes could possibly
	// hold (each record needs at least 2 bytes) rather than trusted outright.
	prealloc := count
	if maxPossible := uint64(len(payload) / 2); prealloc > maxPossible {
		prealloc = maxPossible
	}
	nacks := make([]Nack, 0, prealloc)
	for i := uint64(0); i < count; i++ {
		start, n := binary.Uvarint(payload)
		if n <= 0 {
			return nacks, ErrShortNackPayload
		}
		payload = payload[n:]

		flags, n := binary.Uvarint(payload)
		if n <= 0 {
			return nacks, ErrShortNackPayload
		}
		payload = payload[n:]

		nacks = append(nacks, Nack{StartSequence: uint16(start), Flags: uint32(flags)})
	}
	return nacks, nil
}
