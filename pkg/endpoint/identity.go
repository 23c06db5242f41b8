package endpoint

import (
	"time"

	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/rlog"
	"github.com/riftnet/riftnet/pkg/wire"
)

// maybeRetryLink sends (or resends) a LINK_IDENTITY attempt for the
// client's implicit connection, rate-limited to linkRetryInterval.
func (e *Endpoint) maybeRetryLink(now time.Time) {
	conn, ok := e.connections[e.localAddr]
	if !ok || conn.linked {
		return
	}
	if now.Sub(e.lastLinkAttempt) < linkRetryInterval {
		return
	}
	e.lastLinkAttempt = now
	e.sendIdentityFrame(e.localAddr, wire.LinkIdentity, conn.identityID, e.clientSessionID)
}

// SetClientIdentity configures the (id, session_id) pair a client presents
// during the LINK_IDENTITY handshake.
func (e *Endpoint) SetClientIdentity(id, sessionID uint32) {
	e.clientSessionID = sessionID
	if conn, ok := e.connections[e.localAddr]; ok {
		conn.identityID = id
	}
}

func (e *Endpoint) sendIdentityFrame(addr netaddr.Addr, messageType byte, id, session uint32) {
	var buf [wire.IdentityHeaderSize]byte
	wire.PutIdentity(buf[:], wire.IdentityHeader{MessageType: messageType, ID: id, Session: session})
	e.sock.SendTo(addr, buf[:])
}

// handleLinkIdentity is the server-side half of §4.8: validate session_id
// against the identities table, then either create/move a connection and
// reply IDENTITY_LINKED, or silently ignore an invalid attempt.
func (e *Endpoint) handleLinkIdentity(addr netaddr.Addr, h wire.IdentityHeader, now time.Time) {
	e.events.Emit(Event{Type: IdentityLinkRequested, Addr: addr, IdentityID: h.ID})

	wantSession, known := e.identities[h.ID]
	if !known || wantSession != h.Session {
		e.stats.IdentityErrors++
		rlog.Warn(rlog.Fields{"endpoint_id": e.id, "addr": addr.String(), "identity_id": h.ID}, "rejected link attempt with unknown or mismatched session")
		return
	}

	if prior, linked := e.addrByIdentity[h.ID]; linked && prior != addr {
		rlog.Info(rlog.Fields{"endpoint_id": e.id, "identity_id": h.ID, "from": prior.String(), "to": addr.String()}, "identity moved to a new address")
		e.removeConnection(prior)
	}

	conn, exists := e.connections[addr]
	if !exists {
		conn = e.addConnection(addr, true, now)
	}
	conn.linked = true
	conn.identityID = h.ID
	conn.lastReceiveTime = now
	e.addrByIdentity[h.ID] = addr
	e.identityByAddr[addr] = h.ID

	e.sendIdentityFrame(addr, wire.IdentityLinked, h.ID, h.Session)
	e.events.Emit(Event{Type: IdentityLinked, Addr: addr, IdentityID: h.ID})
	rlog.Success(rlog.Fields{"endpoint_id": e.id, "addr": addr.String(), "identity_id": h.ID}, "identity linked")
}

// handleUnlinkIdentity is the reverse of handleLinkIdentity.
func (e *Endpoint) handleUnlinkIdentity(addr netaddr.Addr, h wire.IdentityHeader) {
	e.events.Emit(Event{Type: IdentityUnlinkRequested, Addr: addr, IdentityID: h.ID})

	conn, ok := e.connections[addr]
	if !ok || conn.identityID != h.ID {
		e.stats.IdentityErrors++
		return
	}

	e.removeConnection(addr)
	e.sendIdentityFrame(addr, wire.IdentityUnlinked, h.ID, h.Session)
	e.events.Emit(Event{Type: IdentityUnlinked, Addr: addr, IdentityID: h.ID})
}

// handleIdentityLinked is the client-side reaction to the server's
// IDENTITY_LINKED reply: it marks the implicit connection linked so
// CanSend starts permitting application traffic.
func (e *Endpoint) handleIdentityLinked(h wire.IdentityHeader) {
	conn, ok := e.connections[e.localAddr]
	if !ok {
		return
	}
	conn.linked = true
	conn.identityID = h.ID
	e.events.Emit(Event{Type: IdentityLinked, Addr: e.localAddr, IdentityID: h.ID})
}

// handleIdentityUnlinked is the client-side reaction to IDENTITY_UNLINKED.
func (e *Endpoint) handleIdentityUnlinked(h wire.IdentityHeader) {
	conn, ok := e.connections[e.localAddr]
	if !ok {
		return
	}
	conn.linked = false
	e.events.Emit(Event{Type: IdentityUnlinked, Addr: e.localAddr, IdentityID: h.ID})
}
