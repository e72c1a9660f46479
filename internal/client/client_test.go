package client

import (
	"net"
	"testing"
	"time"
)

func addr(s string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		panic(err)
	}
	return a
}

type denyAuthority struct{ allow map[string]bool }

func (d denyAuthority) Authorized(_ string, a *net.UDPAddr) bool {
	return d.allow[a.String()]
}

func TestMatchOrCreate_NewClient(t *testing.T) {
	tbl := NewTable("listener0", AllowAll{})
	now := time.Now()

	c, ok := tbl.MatchOrCreate(addr("192.0.2.1:4000"), now)
	if !ok {
		t.Fatal("expected ok=true for authorized new address")
	}
	if c.Addr.String() != "192.0.2.1:4000" {
		t.Errorf("Addr = %v, want 192.0.2.1:4000", c.Addr)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestMatchOrCreate_RefreshesExisting(t *testing.T) {
	tbl := NewTable("listener0", AllowAll{})
	now := time.Now()

	first, _ := tbl.MatchOrCreate(addr("192.0.2.1:4000"), now)

	later := now.Add(30 * time.Second)
	second, ok := tbl.MatchOrCreate(addr("192.0.2.1:4000"), later)
	if !ok {
		t.Fatal("expected ok=true for matching address")
	}
	if second != first {
		t.Error("expected the same client record to be returned on match")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (no duplicate created)", tbl.Len())
	}

	// Refreshed past the original 60s expiry from `now`.
	if first.Expired(now.Add(61 * time.Second)) {
		t.Error("refreshed client should not be expired 61s after its original creation")
	}
}

func TestMatchOrCreate_EvictsExpiredDuringWalk(t *testing.T) {
	tbl := NewTable("listener0", AllowAll{})
	now := time.Now()

	stale, _ := tbl.MatchOrCreate(addr("192.0.2.1:4000"), now)

	var evicted *Client
	tbl.OnEvict(func(c *Client) { evicted = c })

	past60s := now.Add(61 * time.Second)
	_, ok := tbl.MatchOrCreate(addr("192.0.2.2:4000"), past60s)
	if !ok {
		t.Fatal("expected ok=true for new address")
	}

	if evicted != stale {
		t.Error("expected the stale client to be evicted during the walk")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after eviction", tbl.Len())
	}
}

func TestMatchOrCreate_UnauthorizedNewAddress(t *testing.T) {
	tbl := NewTable("listener0", denyAuthority{allow: map[string]bool{}})
	now := time.Now()

	_, ok := tbl.MatchOrCreate(addr("192.0.2.9:4000"), now)
	if ok {
		t.Error("expected ok=false for an unauthorized address")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestMatchOrCreate_OnCreateHook(t *testing.T) {
	tbl := NewTable("listener0", AllowAll{})
	var created *Client
	tbl.OnCreate(func(c *Client) { created = c })

	c, _ := tbl.MatchOrCreate(addr("192.0.2.1:4000"), time.Now())
	if created != c {
		t.Error("OnCreate hook should fire with the newly created client")
	}
}

func TestClientRefreshAndExpired(t *testing.T) {
	now := time.Now()
	c := newClient("listener0", addr("192.0.2.1:4000"), now)

	if c.Expired(now) {
		t.Error("freshly created client should not be expired")
	}
	if !c.Expired(now.Add(IdleTimeout + time.Second)) {
		t.Error("client should be expired after IdleTimeout")
	}

	c.Refresh(now.Add(30 * time.Second))
	if c.Expired(now.Add(IdleTimeout + time.Second)) {
		t.Error("refreshed client should not be expired at the original deadline")
	}
}
