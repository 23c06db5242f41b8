// Package wire defines the on-the-wire frame headers for every message type
// the protocol exchanges, and the varint-encoded NACK payload format. All
// multi-byte fields are little-endian.
package wire

import "encoding/binary"

// Message types, one byte each.
const (
	Unreliable        byte = 0
	Reliable          byte = 1
	Fragment          byte = 2
	None              byte = 3
	NackFrame         byte = 4
	ReliableWithNack  byte = 5
	LinkIdentity      byte = 6
	UnlinkIdentity    byte = 7
	IdentityLinked    byte = 8
	IdentityUnlinked  byte = 9
)

// Header sizes in bytes.
const (
	BaseHeaderSize       = 4  // type, channel, sequence
	NackedHeaderSize     = 10 // base + start_sequence + flags
	FragmentHeaderSize   = 10 // base + group + fragment_start_sequence + fragment_count
	IdentityHeaderSize   = 9  // type, id, session
	UnreliableHeaderSize = 1  // type only
)

// Base is the four-byte header shared by RELIABLE, NONE, and (as a prefix)
// every extended header.
type Base struct {
	MessageType byte
	ChannelID   byte
	Sequence    uint16
}

// PutBase writes h into buf[0:4]. buf must have length >= BaseHeaderSize.
func PutBase(buf []byte, h Base) {
	buf[0] = h.MessageType
	buf[1] = h.ChannelID
	binary.LittleEndian.PutUint16(buf[2:4], h.Sequence)
}

// GetBase reads a Base header from buf[0:4].
func GetBase(buf []byte) Base {
	return Base{
		MessageType: buf[0],
		ChannelID:   buf[1],
		Sequence:    binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// NackedHeader is the ten-byte header used by RELIABLE_WITH_NACK: a base
// header extended with the piggybacked NACK's start sequence and bitfield.
type NackedHeader struct {
	Base
	StartSequence uint16
	Flags         uint32
}

// PutNacked writes h into buf[0:10].
func PutNacked(buf []byte, h NackedHeader) {
	PutBase(buf, h.Base)
	binary.LittleEndian.PutUint16(buf[4:6], h.StartSequence)
	binary.LittleEndian.PutUint32(buf[6:10], h.Flags)
}

// GetNacked reads a NackedHeader from buf[0:10].
func GetNacked(buf []byte) NackedHeader {
	return NackedHeader{
		Base:          GetBase(buf),
		StartSequence: binary.LittleEndian.Uint16(buf[4:6]),
		Flags:         binary.LittleEndian.Uint32(buf[6:10]),
	}
}

// FragmentHeader is the ten-byte header used by FRAGMENT frames.
type FragmentHeader struct {
	Base
	FragmentGroup         uint16
	FragmentStartSequence uint16
	FragmentCount         uint16
}

// PutFragment writes h into buf[0:10].
func PutFragment(buf []byte, h FragmentHeader) {
	PutBase(buf, h.Base)
	binary.LittleEndian.PutUint16(buf[4:6], h.FragmentGroup)
	binary.LittleEndian.PutUint16(buf[6:8], h.FragmentStartSequence)
	binary.LittleEndian.PutUint16(buf[8:10], h.FragmentCount)
}

// GetFragment reads a FragmentHeader from buf[0:10].
func GetFragment(buf []byte) FragmentHeader {
	return FragmentHeader{
		Base:                  GetBase(buf),
		FragmentGroup:         binary.LittleEndian.Uint16(buf[4:6]),
		FragmentStartSequence: binary.LittleEndian.Uint16(buf[6:8]),
		FragmentCount:         binary.LittleEndian.Uint16(buf[8:10]),
	}
}

// IdentityHeader is the nine-byte header shared by the four identity-linking
// message types.
type IdentityHeader struct {
	MessageType byte
	ID          uint32
	Session     uint32
}

// PutIdentity writes h into buf[0:9].
func PutIdentity(buf []byte, h IdentityHeader) {
	buf[0] = h.MessageType
	binary.LittleEndian.PutUint32(buf[1:5], h.ID)
	binary.LittleEndian.PutUint32(buf[5:9], h.Session)
}

// GetIdentity reads an IdentityHeader from buf[0:9].
func GetIdentity(buf []byte) IdentityHeader {
	return IdentityHeader{
		MessageType: buf[0],
		ID:          binary.LittleEndian.Uint32(buf[1:5]),
		Session:     binary.LittleEndian.Uint32(buf[5:9]),
	}
}
