// Package endpoint implements the per-process multiplexer that owns one
// UDP socket, every peer connection, and the channels within each: §4.7
// and §4.8 of the reliability engine.
package endpoint

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/riftnet/riftnet/pkg/channel"
	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/rlog"
	"github.com/riftnet/riftnet/pkg/socket"
	"github.com/riftnet/riftnet/pkg/wire"
)

// maxReceiveIterations bounds the work done by one ReceiveLoop call.
const maxReceiveIterations = 100

// linkRetryInterval is the minimum gap between a client's successive
// LINK_IDENTITY attempts.
const linkRetryInterval = 300 * time.Millisecond

// unreliableScratchSize is the endpoint-owned scratch an oversize
// unreliable send is truncated into, per §7: "a single oversize
// unreliable payload truncates silently rather than aborting."
const unreliableScratchSize = 16 * 1024

// SendTarget names a destination either by identity id (resolved through
// the endpoint's identity map) or by address directly.
type SendTarget struct {
	IdentityID uint32
	Addr       netaddr.Addr
}

// Stats counts endpoint-level activity.
type Stats struct {
	BytesSent      uint64
	BytesReceived  uint64
	ChannelErrors  uint64
	IdentityErrors uint64
}

// Endpoint is one UDP socket plus all per-peer connection and channel
// state: the multiplexer described in §3 and §4.7.
type Endpoint struct {
	id        string
	sock      *socket.Socket
	server    bool
	cfg       Config
	templates map[byte]channel.Config

	connections map[netaddr.Addr]*connection
	localAddr   netaddr.Addr // client-mode implicit connection key

	identities      map[uint32]uint32 // server: id -> required session_id
	identityByAddr  map[netaddr.Addr]uint32
	addrByIdentity  map[uint32]netaddr.Addr
	lastLinkAttempt time.Time // client: rate limit on LINK_IDENTITY resend
	clientSessionID uint32    // client: session id presented on LINK_IDENTITY

	events EventSink
	stats  Stats

	unreliableScratch []byte
	recvBuf           []byte
}

// New returns an unbound Endpoint. Call Bind for server mode or Connect
// for client mode before using it.
func New(cfg Config) *Endpoint {
	return &Endpoint{
		id:                xid.New().String(),
		sock:              socket.New(),
		cfg:               cfg,
		templates:         defaultChannelTemplates(),
		connections:       make(map[netaddr.Addr]*connection),
		identities:        make(map[uint32]uint32),
		identityByAddr:    make(map[netaddr.Addr]uint32),
		addrByIdentity:    make(map[uint32]netaddr.Addr),
		events:            discardSink{},
		unreliableScratch: make([]byte, unreliableScratchSize),
		recvBuf:           make([]byte, socket.ReceiveBufferSize/256),
	}
}

// SetEventSink installs the sink notified of connection/identity lifecycle
// events. Passing nil restores the no-op default.
func (e *Endpoint) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = discardSink{}
	}
	e.events = sink
}

// ConfigureChannel registers the configuration template applied to
// channel id on every connection created after this call. IDs 1 and 2 are
// reserved for the auto-configured ordered/unordered channels.
func (e *Endpoint) ConfigureChannel(id byte, cfg channel.Config) {
	if id == reservedOrderedChannel || id == reservedUnorderedChannel {
		return
	}
	e.templates[id] = cfg
}

// SetIdentity registers id as valid with the given session id, for server-
// side handshake validation.
func (e *Endpoint) SetIdentity(id, sessionID uint32) {
	e.identities[id] = sessionID
}

// Bind opens a server-mode endpoint listening at addr.
func (e *Endpoint) Bind(addr netaddr.Addr) error {
	e.server = true
	if e.cfg.DropPacketChance > 0 {
		e.sock.SetLossInjector(socket.NewLossInjector(e.cfg.DropPacketChance, e.cfg.DropReliableOnly, int64(addr.Port)))
	}
	if err := e.sock.Bind(addr); err != nil {
		return fmt.Errorf("endpoint: bind: %w", err)
	}
	return nil
}

// Connect opens a client-mode endpoint with a single implicit connection
// to remote.
func (e *Endpoint) Connect(remote netaddr.Addr) error {
	e.server = false
	if e.cfg.DropPacketChance > 0 {
		e.sock.SetLossInjector(socket.NewLossInjector(e.cfg.DropPacketChance, e.cfg.DropReliableOnly, int64(remote.Port)))
	}
	if err := e.sock.Connect(remote); err != nil {
		return fmt.Errorf("endpoint: connect: %w", err)
	}
	e.localAddr = remote
	linked := !e.cfg.UseIdentity
	e.addConnection(remote, linked, time.Now())
	return nil
}

func (e *Endpoint) addConnection(addr netaddr.Addr, linked bool, now time.Time) *connection {
	c := newConnection(addr, e.templates, linked, now)
	e.connections[addr] = c
	e.events.Emit(Event{Type: ConnectionAdded, Addr: addr})
	return c
}

func (e *Endpoint) removeConnection(addr netaddr.Addr) {
	c, ok := e.connections[addr]
	if !ok {
		return
	}
	if c.identityID != 0 {
		delete(e.addrByIdentity, c.identityID)
		delete(e.identityByAddr, addr)
	}
	delete(e.connections, addr)
	e.events.Emit(Event{Type: ConnectionRemoved, Addr: addr, IdentityID: c.identityID})
}

// CanSend reports whether the endpoint may currently send application
// data to addr: servers may always send; clients may only send once
// linked (or when identity gating is disabled).
func (e *Endpoint) CanSend(addr netaddr.Addr) bool {
	if e.server {
		return true
	}
	c, ok := e.connections[addr]
	return ok && c.linked
}

// resolveTarget turns a SendTarget into a concrete address, consulting the
// identity map when an identity id is given.
func (e *Endpoint) resolveTarget(target SendTarget) (netaddr.Addr, bool) {
	if target.IdentityID == 0 {
		if target.Addr.IsZero() && !e.server {
			return e.localAddr, true
		}
		return target.Addr, true
	}
	addr, ok := e.addrByIdentity[target.IdentityID]
	return addr, ok
}

// SendTo dispatches body to target on channelID: channel 0 is unreliable,
// any other configured channel is reliable.
func (e *Endpoint) SendTo(target SendTarget, channelID byte, body []byte) (int, error) {
	if !e.sock.Bound() {
		return 0, ErrSocket
	}
	if len(body) == 0 {
		return 0, ErrLength
	}
	addr, ok := e.resolveTarget(target)
	if !ok {
		return 0, ErrIdentity
	}
	if !e.CanSend(addr) {
		return 0, ErrIdentity
	}

	if channelID == 0 {
		return e.sendUnreliable(addr, body)
	}

	conn, ok := e.connections[addr]
	if !ok {
		return 0, ErrChannel
	}
	ch, ok := conn.channels[channelID]
	if !ok {
		return 0, ErrChannel
	}
	seqs, err := ch.SendReliable(e.sock, body)
	if err != nil || len(seqs) == 0 {
		return 0, ErrFragment
	}
	e.stats.BytesSent += uint64(len(body))
	return len(body), nil
}

func (e *Endpoint) sendUnreliable(addr netaddr.Addr, body []byte) (int, error) {
	n := copy(e.unreliableScratch[wire.UnreliableHeaderSize:], body)
	frame := e.unreliableScratch[:wire.UnreliableHeaderSize+n]
	frame[0] = wire.Unreliable
	sent, err := e.sock.SendTo(addr, frame)
	if err != nil {
		return 0, fmt.Errorf("endpoint: %w", err)
	}
	e.stats.BytesSent += uint64(sent)
	return sent, nil
}

// Update drives every connection's channels and, on a client not yet
// linked, retries the identity-link handshake.
func (e *Endpoint) Update(now time.Time) {
	if !e.server && e.cfg.UseIdentity {
		e.maybeRetryLink(now)
	}
	for _, conn := range e.connections {
		for _, ch := range conn.channels {
			ch.Update(e.sock)
		}
	}
}

// CleanupStaleConnections drops server-side connections that have not
// received a datagram in longer than staleAfter, a supplement to the
// reliability engine's own TTL-bounded state (send buffers, fragment
// groups): without it, an abandoned client's connection and channels
// would live for the life of the process.
func (e *Endpoint) CleanupStaleConnections(now time.Time, staleAfter time.Duration) int {
	if !e.server {
		return 0
	}
	dropped := 0
	for addr, conn := range e.connections {
		if now.Sub(conn.lastReceiveTime) > staleAfter {
			rlog.Warn(rlog.Fields{"endpoint_id": e.id, "addr": addr.String(), "idle": now.Sub(conn.lastReceiveTime).String()}, "dropping stale connection")
			e.removeConnection(addr)
			dropped++
		}
	}
	return dropped
}

// Stats returns a snapshot of the endpoint's cumulative counters, for
// diagnostics and metrics export.
func (e *Endpoint) Stats() Stats { return e.stats }

// LocalAddr returns the endpoint's bound or connected local address.
func (e *Endpoint) LocalAddr() netaddr.Addr { return e.sock.LocalAddr() }

// ID returns the endpoint's process-unique instance id, generated once at
// construction and attached to its log lines and metric labels.
func (e *Endpoint) ID() string { return e.id }

// ConnectionInfo summarizes one peer connection for index-building by a
// pool that owns several endpoints.
type ConnectionInfo struct {
	Addr       netaddr.Addr
	IdentityID uint32
	Linked     bool
}

// Connections returns a snapshot of every connection this endpoint
// currently holds, for building connections_by_identity /
// connections_by_address indices across a pool of endpoints.
func (e *Endpoint) Connections() []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(e.connections))
	for addr, c := range e.connections {
		out = append(out, ConnectionInfo{Addr: addr, IdentityID: c.identityID, Linked: c.linked})
	}
	return out
}

// ChannelStat pairs one connection's channel with its current counters, for
// metrics export.
type ChannelStat struct {
	Addr      netaddr.Addr
	ChannelID byte
	Stats     channel.Stats
}

// ChannelStats returns a snapshot of every channel's counters across every
// connection this endpoint holds.
func (e *Endpoint) ChannelStats() []ChannelStat {
	var out []ChannelStat
	for addr, conn := range e.connections {
		for id, ch := range conn.channels {
			out = append(out, ChannelStat{Addr: addr, ChannelID: id, Stats: ch.Stats})
		}
	}
	return out
}
