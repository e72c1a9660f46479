// Package pool implements the outbound UDP socket pool: sockets bound to a
// source address are created once per distinct source and reused by every
// upstream server configuration that wants to send from that address.
package pool

import (
	"fmt"
	"net"
	"sync"
)

// Binder binds a fresh UDP socket to the given local address, standing in
// for the proxy core's bindtoaddr.
type Binder interface {
	Bind(source *net.UDPAddr) (*net.UDPConn, error)
}

// DialBinder is a Binder backed by net.ListenUDP.
type DialBinder struct{}

// Bind opens a UDP socket bound to source.
func (DialBinder) Bind(source *net.UDPAddr) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", source)
	if err != nil {
		return nil, fmt.Errorf("bind outbound socket to %s: %w", source, err)
	}
	return conn, nil
}

// ClientSock is one pooled outbound socket, keyed by its exact source
// address.
type ClientSock struct {
	Source *net.UDPAddr
	Conn   *net.UDPConn
}

// Send implements the clientradputudp send path: one sendto of buf to
// dest, no retry. It returns false for an empty buffer or any send
// failure; retry policy is the caller's responsibility.
func (c *ClientSock) Send(dest *net.UDPAddr, buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	n, err := c.Conn.WriteToUDP(buf, dest)
	return err == nil && n == len(buf)
}

// Pool deduplicates outbound sockets by exact source-bind address. It only
// grows: sockets are never closed or reclaimed for the lifetime of the
// process.
type Pool struct {
	mu      sync.Mutex
	binder  Binder
	sockets []*ClientSock
}

// NewPool creates an empty pool using binder to create new sockets.
func NewPool(binder Binder) *Pool {
	if binder == nil {
		binder = DialBinder{}
	}
	return &Pool{binder: binder}
}

// family classifies an address as IPv4, IPv6, or unspecified (nil IP, which
// matches any destination family).
func family(addr *net.UDPAddr) string {
	if addr == nil || len(addr.IP) == 0 {
		return "unspec"
	}
	if addr.IP.To4() != nil {
		return "ip4"
	}
	if addr.IP.To16() != nil {
		return "ip6"
	}
	return "unspec"
}

func familyMatches(candidateFamily, destFamily string) bool {
	return candidateFamily == "unspec" || candidateFamily == destFamily
}

// Assign iterates candidate source addresses in order and returns a socket
// bound to the first one whose family matches destFamily (or is
// unspecified). An existing pooled socket with an exactly matching source
// is reused; otherwise a fresh socket is bound and added to the pool. The
// first successful candidate wins: no further candidates are tried.
func (p *Pool) Assign(candidates []*net.UDPAddr, destFamily string) (*ClientSock, error) {
	for _, candidate := range candidates {
		if !familyMatches(family(candidate), destFamily) {
			continue
		}

		if sock := p.lookup(candidate); sock != nil {
			return sock, nil
		}

		conn, err := p.binder.Bind(candidate)
		if err != nil {
			continue
		}

		sock := &ClientSock{Source: candidate, Conn: conn}
		p.mu.Lock()
		p.sockets = append(p.sockets, sock)
		p.mu.Unlock()
		return sock, nil
	}

	return nil, fmt.Errorf("pool: no candidate source address could be bound for family %s", destFamily)
}

// lookup returns a pooled socket whose source address byte-for-byte equals
// candidate, or nil.
func (p *Pool) lookup(candidate *net.UDPAddr) *ClientSock {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sock := range p.sockets {
		if sourceEqual(sock.Source, candidate) {
			return sock
		}
	}
	return nil
}

func sourceEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port && a.Zone == b.Zone
}

// Size returns the number of distinct sockets currently pooled.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sockets)
}

// Sockets returns a snapshot of all pooled sockets.
func (p *Pool) Sockets() []*ClientSock {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ClientSock, len(p.sockets))
	copy(out, p.sockets)
	return out
}
