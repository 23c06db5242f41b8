// Package socket wraps a UDP connection in the non-blocking, poll-once
// style the endpoint's receive loop needs, plus a loss-injection hook for
// exercising the reliability engine under test.
package socket

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/riftnet/riftnet/pkg/netaddr"
)

// ReceiveBufferSize is the kernel socket receive buffer requested on bind,
// sized generously so bursts of datagrams do not get dropped before the
// receive loop drains them.
const ReceiveBufferSize = 8192 * 256

// ErrNotBound is returned by SendTo/ReceiveFrom before Bind or Connect has
// been called.
var ErrNotBound = errors.New("socket: not bound")

// Socket is a thin, non-blocking wrapper over *net.UDPConn. Server
// endpoints Bind to a local address and exchange datagrams with many
// peers via SendTo/ReceiveFrom's explicit address. Client endpoints
// Connect to a single remote address instead.
type Socket struct {
	conn *net.UDPConn
	loss LossInjector
}

// New returns an unbound Socket.
func New() *Socket {
	return &Socket{}
}

// Bind opens a non-blocking UDP listening socket at addr.
func (s *Socket) Bind(addr netaddr.Addr) error {
	udpAddr := &net.UDPAddr{IP: addr.IP(), Port: int(addr.Port)}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("socket: bind: %w", err)
	}
	if err := conn.SetReadBuffer(ReceiveBufferSize); err != nil {
		return fmt.Errorf("socket: set read buffer: %w", err)
	}
	s.conn = conn
	return nil
}

// Connect opens a client-side UDP socket with its default peer set to
// remote, so Write-style sends never need an explicit address.
func (s *Socket) Connect(remote netaddr.Addr) error {
	udpAddr := &net.UDPAddr{IP: remote.IP(), Port: int(remote.Port)}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("socket: connect: %w", err)
	}
	if err := conn.SetReadBuffer(ReceiveBufferSize); err != nil {
		return fmt.Errorf("socket: set read buffer: %w", err)
	}
	s.conn = conn
	return nil
}

// Bound reports whether Bind or Connect has succeeded.
func (s *Socket) Bound() bool {
	return s.conn != nil
}

// LocalAddr returns the socket's local address, including the OS-assigned
// port when Bind or Connect was given port 0. The zero Addr is returned if
// the socket is not yet bound.
func (s *Socket) LocalAddr() netaddr.Addr {
	if s.conn == nil {
		return netaddr.Addr{}
	}
	udpAddr, ok := s.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netaddr.Addr{}
	}
	return netaddr.FromSlice(udpAddr.IP.To4(), uint16(udpAddr.Port))
}

// SetLossInjector installs a loss injector used by ReceiveFrom to
// optionally discard an otherwise-valid datagram, simulating network loss
// for tests. The zero LossInjector (drop chance 0) never drops anything.
func (s *Socket) SetLossInjector(l LossInjector) {
	s.loss = l
}

// SendTo writes data to addr. On a connected (client) socket, addr is
// ignored in favor of the connected peer.
func (s *Socket) SendTo(addr netaddr.Addr, data []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotBound
	}
	var n int
	var err error
	if s.conn.RemoteAddr() != nil {
		n, err = s.conn.Write(data)
	} else {
		udpAddr := &net.UDPAddr{IP: addr.IP(), Port: int(addr.Port)}
		n, err = s.conn.WriteToUDP(data, udpAddr)
	}
	if err != nil {
		return n, fmt.Errorf("socket: send: %w", err)
	}
	return n, nil
}

// ReceiveFrom performs one poll-style read: a datagram already queued is
// returned at once, and if none arrives within about a millisecond it
// returns ok=false rather than blocking the caller. Each datagram read is offered to the loss injector, which is told
// whether the datagram's leading message-type byte names a frame type of
// the reliability engine, matching §4.7's "honor the loss-injection hook"
// as the very first step of each receive iteration.
func (s *Socket) ReceiveFrom(buf []byte) (n int, from netaddr.Addr, ok bool, err error) {
	if s.conn == nil {
		return 0, netaddr.Addr{}, false, ErrNotBound
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, netaddr.Addr{}, false, fmt.Errorf("socket: set read deadline: %w", err)
	}
	n, udpAddr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, netaddr.Addr{}, false, nil
		}
		return 0, netaddr.Addr{}, false, fmt.Errorf("socket: receive: %w", err)
	}
	if s.loss.ShouldDrop(isReliableFrame(buf[:n])) {
		return 0, netaddr.Addr{}, false, nil
	}
	return n, netaddr.FromSlice(udpAddr.IP.To4(), uint16(udpAddr.Port)), true, nil
}

// Close releases the underlying UDP connection.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
