package endpoint

import (
	"time"

	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/wire"
)

// ReceiveLoop implements §4.7's bounded dispatch loop: it reads and
// processes up to maxReceiveIterations datagrams, returning as soon as one
// yields an application-visible message (unreliable data, or a published
// reliable/fragment payload). If no datagram yields one -- because the
// socket has nothing more to read, or every iteration was consumed by
// control traffic (NACKs, placeholders, gated-out identity frames) -- a
// final sweep of every channel's publish queue is made before giving up,
// so messages queued by an earlier call are not stranded.
func (e *Endpoint) ReceiveLoop(out []byte) (n int, channelID byte, from netaddr.Addr, err error) {
	now := time.Now()
	for i := 0; i < maxReceiveIterations; i++ {
		read, addr, ok, rerr := e.sock.ReceiveFrom(e.recvBuf)
		if rerr != nil {
			return 0, 0, netaddr.Addr{}, rerr
		}
		if !ok {
			break
		}
		e.stats.BytesReceived += uint64(read)
		buf := e.recvBuf[:read]

		n, channelID, from, err, handled := e.dispatch(buf, addr, out, now)
		if err != nil {
			return 0, 0, addr, err
		}
		if handled {
			return n, channelID, from, nil
		}
	}
	return e.sweepPublished(out)
}

// dispatch processes one datagram. handled reports whether it produced an
// application-visible message (n, channelID, from are only meaningful
// then); err is a fatal-to-this-call error (ChannelError).
func (e *Endpoint) dispatch(buf []byte, addr netaddr.Addr, out []byte, now time.Time) (n int, channelID byte, from netaddr.Addr, err error, handled bool) {
	if len(buf) == 0 {
		return 0, 0, addr, nil, false
	}
	msgType := buf[0]

	if conn, known := e.connections[addr]; known {
		conn.lastReceiveTime = now
	} else if e.server && !e.cfg.UseIdentity {
		e.addConnection(addr, true, now)
	}

	switch msgType {
	case wire.Unreliable:
		if e.gatedOut(addr) {
			return 0, 0, addr, nil, false
		}
		written := copy(out, buf[wire.UnreliableHeaderSize:])
		return written, 0, addr, nil, true

	case wire.LinkIdentity:
		if e.server && len(buf) >= wire.IdentityHeaderSize {
			e.handleLinkIdentity(addr, wire.GetIdentity(buf), now)
		}
		return 0, 0, addr, nil, false

	case wire.UnlinkIdentity:
		if e.server && len(buf) >= wire.IdentityHeaderSize {
			e.handleUnlinkIdentity(addr, wire.GetIdentity(buf))
		}
		return 0, 0, addr, nil, false

	case wire.IdentityLinked:
		if !e.server && len(buf) >= wire.IdentityHeaderSize {
			e.handleIdentityLinked(wire.GetIdentity(buf))
		}
		return 0, 0, addr, nil, false

	case wire.IdentityUnlinked:
		if !e.server && len(buf) >= wire.IdentityHeaderSize {
			e.handleIdentityUnlinked(wire.GetIdentity(buf))
		}
		return 0, 0, addr, nil, false
	}

	if e.gatedOut(addr) {
		return 0, 0, addr, nil, false
	}
	if len(buf) < wire.BaseHeaderSize {
		return 0, 0, addr, nil, false
	}

	base := wire.GetBase(buf)
	conn, ok := e.connections[addr]
	if !ok {
		e.stats.ChannelErrors++
		return 0, 0, addr, ErrChannel, false
	}
	ch, ok := conn.channels[base.ChannelID]
	if !ok {
		e.stats.ChannelErrors++
		return 0, 0, addr, ErrChannel, false
	}
	conn.lastReceiveTime = now

	switch msgType {
	case wire.None:
		ch.HandlePlaceholder(base.Sequence)
		return 0, 0, addr, nil, false

	case wire.NackFrame:
		ch.HandleNackFrame(buf[wire.BaseHeaderSize:])
		return 0, 0, addr, nil, false

	case wire.Fragment:
		h := wire.GetFragment(buf)
		ch.HandleFragment(h, buf[wire.FragmentHeaderSize:], now)

	case wire.Reliable:
		ch.HandleReliable(base, buf[wire.BaseHeaderSize:])

	case wire.ReliableWithNack:
		h := wire.GetNacked(buf)
		ch.HandleReliableWithNack(h, buf[wire.NackedHeaderSize:])

	default:
		return 0, 0, addr, nil, false
	}

	if written, ok := ch.ReceivePublished(out); ok {
		return written, base.ChannelID, addr, nil, true
	}
	return 0, 0, addr, nil, false
}

// gatedOut reports whether a non-identity datagram from addr must be
// dropped because identity linking is required and not yet established.
func (e *Endpoint) gatedOut(addr netaddr.Addr) bool {
	if !e.cfg.UseIdentity {
		return false
	}
	conn, ok := e.connections[addr]
	return !ok || !conn.linked
}

// sweepPublished drains the first available published message across
// every channel of every connection, used when ReceiveLoop's reads (cut
// short by an empty socket or by its iteration budget) yield none directly.
func (e *Endpoint) sweepPublished(out []byte) (int, byte, netaddr.Addr, error) {
	for addr, conn := range e.connections {
		for id, ch := range conn.channels {
			if n, ok := ch.ReceivePublished(out); ok {
				return n, id, addr, nil
			}
		}
	}
	return 0, 0, netaddr.Addr{}, nil
}
