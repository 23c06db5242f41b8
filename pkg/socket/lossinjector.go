package socket

import (
	"math/rand"

	"github.com/riftnet/riftnet/pkg/wire"
)

// LossInjector simulates network loss for test harnesses: DropPercent out
// of 100 received datagrams are silently discarded before the reliability
// engine ever sees them. When DropReliableOnly is set, only UNRELIABLE and
// identity-handshake frames always pass through untouched; NACK and NONE
// frames are subject to loss like reliable data.
type LossInjector struct {
	DropPercent      int
	DropReliableOnly bool
	rng              *rand.Rand
}

// NewLossInjector returns a LossInjector with its own random source, so
// multiple sockets in one test process don't share (and contend on) the
// global math/rand state.
func NewLossInjector(dropPercent int, dropReliableOnly bool, seed int64) LossInjector {
	return LossInjector{
		DropPercent:      dropPercent,
		DropReliableOnly: dropReliableOnly,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// ShouldDrop reports whether a just-received datagram should be discarded.
func (l LossInjector) ShouldDrop(isReliable bool) bool {
	if l.DropPercent <= 0 {
		return false
	}
	if l.DropReliableOnly && !isReliable {
		return false
	}
	if l.rng == nil {
		return false
	}
	return l.rng.Intn(100) < l.DropPercent
}

// isReliableFrame reports whether buf's leading message-type byte is one
// of the frame types that participate in the reliability engine (as
// opposed to UNRELIABLE, which bypasses it entirely).
func isReliableFrame(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	switch buf[0] {
	case wire.Reliable, wire.ReliableWithNack, wire.Fragment, wire.NackFrame, wire.None:
		return true
	default:
		return false
	}
}
