package wire

import (
	"encoding/binary"
	"testing"
)

func TestBaseHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, BaseHeaderSize)
	want := Base{MessageType: Reliable, ChannelID: 7, Sequence: 1234}
	PutBase(buf, want)
	got := GetBase(buf)
	if got != want {
		t.Errorf("GetBase(PutBase(%+v)) = %+v", want, got)
	}
}

func TestNackedHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, NackedHeaderSize)
	want := NackedHeader{
		Base:          Base{MessageType: ReliableWithNack, ChannelID: 13, Sequence: 200},
		StartSequence: 12345,
		Flags:         99,
	}
	PutNacked(buf, want)
	got := GetNacked(buf)
	if got != want {
		t.Errorf("GetNacked(PutNacked(%+v)) = %+v", want, got)
	}
}

func TestFragmentHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, FragmentHeaderSize)
	want := FragmentHeader{
		Base:                  Base{MessageType: Fragment, ChannelID: 2, Sequence: 5},
		FragmentGroup:         9,
		FragmentStartSequence: 3,
		FragmentCount:         4,
	}
	PutFragment(buf, want)
	got := GetFragment(buf)
	if got != want {
		t.Errorf("GetFragment(PutFragment(%+v)) = %+v", want, got)
	}
}

func TestIdentityHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, IdentityHeaderSize)
	want := IdentityHeader{MessageType: LinkIdentity, ID: 1, Session: 10}
	PutIdentity(buf, want)
	got := GetIdentity(buf)
	if got != want {
		t.Errorf("GetIdentity(PutIdentity(%+v)) = %+v", want, got)
	}
}

func TestNackBitfieldRoundTrip(t *testing.T) {
	n := Nack{StartSequence: 1000}
	n.SetBit(0) // 999
	n.SetBit(2) // 997
	n.SetBit(4) // 995

	seqs := n.Sequences()
	want := map[uint16]bool{1000: true, 999: true, 997: true, 995: true}
	if len(seqs) != len(want) {
		t.Fatalf("Sequences() = %v, want %d entries", seqs, len(want))
	}
	for _, s := range seqs {
		if !want[s] {
			t.Errorf("unexpected sequence %d in %v", s, seqs)
		}
	}
}

func TestNackPayloadEncodeDecode(t *testing.T) {
	in := []Nack{
		{StartSequence: 100, Flags: 0b101},
		{StartSequence: 65000, Flags: 0xFFFFFFFF},
	}
	payload := EncodeNackPayload(in)
	out, err := DecodeNackPayload(payload)
	if err != nil {
		t.Fatalf("DecodeNackPayload: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d nacks, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("nack %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestNackPayloadDecodeTruncated(t *testing.T) {
	in := []Nack{{StartSequence: 5, Flags: 1}}
	payload := EncodeNackPayload(in)
	_, err := DecodeNackPayload(payload[:len(payload)-1])
	if err != ErrShortNackPayload {
		t.Errorf("DecodeNackPayload(truncated) error = %v, want %v", err, ErrShortNackPayload)
	}
}

func TestNackPayloadDecodeRejectsBogusCountWithoutPanicking(t *testing.T) {
	// A 9-byte varint can claim a count in the billions despite the
	// payload holding no actual records; decoding must not try to
	// preallocate that many Nacks up front.
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], 1<<62)
	out, err := DecodeNackPayload(tmp[:n])
	if err != ErrShortNackPayload {
		t.Errorf("DecodeNackPayload(bogus count) error = %v, want %v", err, ErrShortNackPayload)
	}
	if len(out) != 0 {
		t.Errorf("DecodeNackPayload(bogus count) = %v, want no records", out)
	}
}

func TestRewriteReliableWithNackReclaimsSixBytes(t *testing.T) {
	src := make([]byte, 1200)
	PutNacked(src, NackedHeader{
		Base:          Base{MessageType: ReliableWithNack, ChannelID: 13, Sequence: 200},
		StartSequence: 12345,
		Flags:         99,
	})
	src[10] = 3
	src[1199] = 7

	dst := make([]byte, len(src))
	n := RewriteReliableWithNack(dst, src)

	if n != len(src)-NackedHeaderSize+BaseHeaderSize {
		t.Fatalf("rewritten length = %d, want %d", n, len(src)-NackedHeaderSize+BaseHeaderSize)
	}
	if n != 1194 {
		t.Fatalf("rewritten length = %d, want 1194", n)
	}

	got := GetBase(dst[:BaseHeaderSize])
	want := Base{MessageType: Reliable, ChannelID: 13, Sequence: 200}
	if got != want {
		t.Errorf("rewritten header = %+v, want %+v", got, want)
	}
	if dst[4] != 3 {
		t.Errorf("dst[4] = %d, want 3", dst[4])
	}
	if dst[n-1] != 7 {
		t.Errorf("dst[%d] = %d, want 7", n-1, dst[n-1])
	}
}
