// Package raddr provides address comparison and inspection helpers shared
// across the per-peer client table, the reply writer, and the outbound
// socket pool.
package raddr

import "net"

// Equal reports whether a and b identify the same IPv4 or IPv6 endpoint:
// same address family, same address bytes, and same port. Any other
// address family compares unequal.
func Equal(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Port != b.Port {
		return false
	}
	aIP, bIP := a.IP.To4(), b.IP.To4()
	if aIP != nil && bIP != nil {
		return aIP.Equal(bIP)
	}
	aIP16, bIP16 := a.IP.To16(), b.IP.To16()
	if aIP16 == nil || bIP16 == nil {
		return false
	}
	// Reject a v4-mapped address compared against a true v6 address.
	if (a.IP.To4() == nil) != (b.IP.To4() == nil) {
		return false
	}
	return aIP16.Equal(bIP16)
}

// Port returns the host-order port of addr, or 0 if addr is nil.
func Port(addr *net.UDPAddr) int {
	if addr == nil {
		return 0
	}
	return addr.Port
}

// Copy returns a deep copy of addr so a caller can retain it past the
// lifetime of a reused receive buffer or socket control message.
func Copy(addr *net.UDPAddr) *net.UDPAddr {
	if addr == nil {
		return nil
	}
	ip := make(net.IP, len(addr.IP))
	copy(ip, addr.IP)
	return &net.UDPAddr{IP: ip, Port: addr.Port, Zone: addr.Zone}
}
