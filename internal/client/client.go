// Package client implements the per-peer client record table: the set of
// addresses a listener socket currently considers live, each carrying an
// idle expiry used to decide whether a later datagram from that address
// should refresh an existing record or is stale enough to be evicted and
// replaced.
package client

import (
	"net"
	"sync"
	"time"

	"github.com/radsecproxy/udpcore/internal/raddr"
)

// IdleTimeout is the duration a client record is kept alive without a
// matching datagram before it becomes eligible for eviction.
const IdleTimeout = 60 * time.Second

// PeerAuthority decides whether an address is an authorized peer for a
// given listener socket, standing in for the proxy core's client/server
// configuration lookup (find_clconf / find_srvconf). It is the one piece
// of policy this package delegates rather than implements.
type PeerAuthority interface {
	// Authorized reports whether addr is a configured peer for socket.
	Authorized(socket string, addr *net.UDPAddr) bool
}

// AllowAll is a PeerAuthority that authorizes every address; useful for
// tests and for upstream sockets where the server set is fixed at
// construction time rather than matched per-datagram.
type AllowAll struct{}

// Authorized always returns true.
func (AllowAll) Authorized(string, *net.UDPAddr) bool { return true }

// Client is a single tracked peer address on one listener socket.
type Client struct {
	mu sync.Mutex

	Socket string
	Addr   *net.UDPAddr

	expiry time.Time
}

// newClient creates a client record expiring IdleTimeout from now.
func newClient(socket string, addr *net.UDPAddr, now time.Time) *Client {
	return &Client{
		Socket: socket,
		Addr:   raddr.Copy(addr),
		expiry: now.Add(IdleTimeout),
	}
}

// Refresh pushes the expiry forward to now+IdleTimeout.
func (c *Client) Refresh(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry = now.Add(IdleTimeout)
}

// Expired reports whether the client's idle timeout has passed as of now.
func (c *Client) Expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.After(c.expiry)
}

// Table tracks the live clients for one listener socket under a single
// mutex, matching the peer-config lock spec.md describes guarding both the
// client list walk and (by nested-lock-ordering convention) anything that
// subsequently touches a reply queue on behalf of an evicted client.
type Table struct {
	mu        sync.Mutex
	authority PeerAuthority
	socket    string
	clients   []*Client

	onEvict  func(*Client)
	onCreate func(*Client)
}

// NewTable creates an empty client table for the given socket name.
func NewTable(socket string, authority PeerAuthority) *Table {
	if authority == nil {
		authority = AllowAll{}
	}
	return &Table{authority: authority, socket: socket}
}

// OnEvict registers a callback invoked (under the table's lock) whenever a
// client is evicted for idle expiry. The listener server uses this hook to
// scrub any queued replies addressed to the evicted client before it is
// forgotten, preserving the peer-config -> replyq lock ordering.
func (t *Table) OnEvict(fn func(*Client)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvict = fn
}

// OnCreate registers a callback invoked (under the table's lock) whenever a
// new client record is created.
func (t *Table) OnCreate(fn func(*Client)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCreate = fn
}

// MatchOrCreate performs the combined match/evict/create walk described for
// the server side of the framed datagram receiver: it walks the client
// list once, refreshing the expiry of any matching client and evicting any
// non-matching client whose expiry has already passed. If no client
// matched, a new one is created (subject to authorization), appended, and
// returned. If addr is not an authorized peer and no existing client
// matches it, ok is false and no record is created.
func (t *Table) MatchOrCreate(addr *net.UDPAddr, now time.Time) (c *Client, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.clients[:0]
	var matched *Client
	for _, existing := range t.clients {
		if raddr.Equal(existing.Addr, addr) {
			existing.Refresh(now)
			matched = existing
			kept = append(kept, existing)
			continue
		}
		if existing.Expired(now) {
			if t.onEvict != nil {
				t.onEvict(existing)
			}
			continue
		}
		kept = append(kept, existing)
	}
	t.clients = kept

	if matched != nil {
		return matched, true
	}

	if !t.authority.Authorized(t.socket, addr) {
		return nil, false
	}

	created := newClient(t.socket, addr, now)
	t.clients = append(t.clients, created)
	if t.onCreate != nil {
		t.onCreate(created)
	}
	return created, true
}

// Len returns the number of client records currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Snapshot returns a copy of the currently tracked clients, for
// diagnostics and tests.
func (t *Table) Snapshot() []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Client, len(t.clients))
	copy(out, t.clients)
	return out
}
