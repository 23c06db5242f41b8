// Package netaddr provides a small value-type network address suitable for
// use as a map key, independent of net.UDPAddr's pointer identity.
package netaddr

import (
	"fmt"
	"net"
)

// Addr is an IPv4 address plus port, compared and hashed by value.
type Addr struct {
	A, B, C, D byte
	Port       uint16
}

// New builds an Addr from four octets and a port.
func New(a, b, c, d byte, port uint16) Addr {
	return Addr{A: a, B: b, C: c, D: d, Port: port}
}

// FromSlice builds an Addr from a 4-byte IPv4 slice and a port. Only the
// first four bytes of ip are read; it panics if ip is shorter than that.
func FromSlice(ip []byte, port uint16) Addr {
	return Addr{A: ip[0], B: ip[1], C: ip[2], D: ip[3], Port: port}
}

// String renders the address as "a.b.c.d:port".
func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.A, a.B, a.C, a.D, a.Port)
}

// IsZero reports whether a is the zero-value address, used as the implicit
// "local" connection on client endpoints.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// IP returns a as a net.IP, for use with net package APIs.
func (a Addr) IP() net.IP {
	return net.IPv4(a.A, a.B, a.C, a.D)
}
