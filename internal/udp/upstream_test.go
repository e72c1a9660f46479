package udp

import (
	"net"
	"testing"
	"time"

	"github.com/radsecproxy/udpcore/internal/framing"
)

type staticServerLookup struct {
	name string
	addr *net.UDPAddr
	ok   bool
}

func (s staticServerLookup) Lookup(*net.UDPAddr) (framing.ServerIdentity, bool) {
	return framing.ServerIdentity{Name: s.name, Addr: s.addr}, s.ok
}

type recordingReplyHandler struct {
	received chan string
}

func (h *recordingReplyHandler) HandleReply(serverName string, addr *net.UDPAddr, payload []byte) error {
	h.received <- serverName
	return nil
}

func TestUpstreamReader_DeliversToHandler(t *testing.T) {
	outConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer outConn.Close()

	lookup := staticServerLookup{name: "aaa1", addr: outConn.LocalAddr().(*net.UDPAddr), ok: true}
	handler := &recordingReplyHandler{received: make(chan string, 1)}

	reader := NewUpstreamReader("out0", outConn, lookup, handler, nil, testMetrics())
	reader.Run()
	defer reader.Stop()

	sendDatagram(t, outConn.LocalAddr().(*net.UDPAddr), radiusPacket(20))

	select {
	case name := <-handler.received:
		if name != "aaa1" {
			t.Errorf("server name = %q, want aaa1", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not receive a reply in time")
	}
}

func TestUpstreamReader_DropsUnmatchedServer(t *testing.T) {
	outConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer outConn.Close()

	lookup := staticServerLookup{ok: false}
	handler := &recordingReplyHandler{received: make(chan string, 1)}

	reader := NewUpstreamReader("out0", outConn, lookup, handler, nil, testMetrics())
	reader.Run()
	defer reader.Stop()

	sendDatagram(t, outConn.LocalAddr().(*net.UDPAddr), radiusPacket(20))

	select {
	case name := <-handler.received:
		t.Fatalf("unexpected reply delivered from unmatched server: %q", name)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUpstreamReader_StopIsIdempotent(t *testing.T) {
	outConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer outConn.Close()

	lookup := staticServerLookup{ok: false}
	handler := &recordingReplyHandler{received: make(chan string, 1)}

	reader := NewUpstreamReader("out0", outConn, lookup, handler, nil, testMetrics())
	reader.Run()
	reader.Stop()
	reader.Stop()
}
