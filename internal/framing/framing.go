// Package framing implements the framed RADIUS datagram receiver: the
// peek-then-receive loop that turns a raw UDP socket into a stream of
// validated, correctly sized RADIUS payloads tagged with their logical
// peer, draining anything that doesn't pass muster along the way.
package framing

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/radsecproxy/udpcore/internal/client"
	"github.com/radsecproxy/udpcore/internal/logging"
	"github.com/radsecproxy/udpcore/internal/metrics"
)

// errShortPeek is returned by a socketIO's peekHeader when the queued
// datagram has fewer bytes than the header it was asked to peek. Since
// MSG_PEEK never dequeues, a caller that doesn't recognize this error and
// drain the datagram will re-peek the same malformed packet forever.
var errShortPeek = errors.New("framing: short peek")

// MinRADIUSLength and MaxRADIUSLength bound the declared length field of a
// RADIUS header; anything outside this window cannot be a valid datagram.
const (
	MinRADIUSLength = 20
	MaxRADIUSLength = 4096
	headerLen       = 4
)

// CheckedLength reads the declared total length from a RADIUS header
// (bytes 3 and 4, big-endian) and returns it only if it falls within the
// valid window; otherwise it returns 0.
func CheckedLength(hdr []byte) int {
	if len(hdr) < headerLen {
		return 0
	}
	length := int(binary.BigEndian.Uint16(hdr[2:4]))
	if length < MinRADIUSLength || length > MaxRADIUSLength {
		return 0
	}
	return length
}

// Mode selects which side of the proxy a Receiver serves: the listener
// socket facing clients, or an outbound socket facing upstream servers.
type Mode int

const (
	// ModeServer identifies peers by client-match against a configured
	// client table, creating or refreshing client records as it goes.
	ModeServer Mode = iota
	// ModeUpstream identifies peers by server-match against a fixed set
	// of configured upstream servers.
	ModeUpstream
)

// ServerIdentity names the upstream server a received reply came from.
type ServerIdentity struct {
	Name string
	Addr *net.UDPAddr
}

// ServerLookup matches an address against the configured upstream servers
// for a socket, standing in for find_srvconf.
type ServerLookup interface {
	Lookup(addr *net.UDPAddr) (ServerIdentity, bool)
}

// Result is one successfully framed datagram.
type Result struct {
	Payload []byte
	Addr    *net.UDPAddr

	// Client is set in ModeServer.
	Client *client.Client
	// Server is set in ModeUpstream.
	Server ServerIdentity
}

// Receiver runs the peek/length/receive/lookup loop for one UDP socket.
type Receiver struct {
	mode   Mode
	socket string
	conn   *net.UDPConn
	io     socketIO

	table   *client.Table
	servers ServerLookup

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewServerReceiver creates a Receiver for a listener socket that resolves
// peers against table.
func NewServerReceiver(socket string, conn *net.UDPConn, table *client.Table, logger *slog.Logger, m *metrics.Metrics) *Receiver {
	return newReceiver(ModeServer, socket, conn, table, nil, logger, m, defaultSocketIO())
}

// NewUpstreamReceiver creates a Receiver for an outbound socket that
// resolves peers against servers.
func NewUpstreamReceiver(socket string, conn *net.UDPConn, servers ServerLookup, logger *slog.Logger, m *metrics.Metrics) *Receiver {
	return newReceiver(ModeUpstream, socket, conn, nil, servers, logger, m, defaultSocketIO())
}

// newReceiver is the shared constructor; tests use it directly to inject a
// fake socketIO instead of a real platform implementation.
func newReceiver(mode Mode, socket string, conn *net.UDPConn, table *client.Table, servers ServerLookup, logger *slog.Logger, m *metrics.Metrics, io socketIO) *Receiver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Receiver{
		mode:    mode,
		socket:  socket,
		conn:    conn,
		io:      io,
		table:   table,
		servers: servers,
		logger:  logger,
		metrics: m,
	}
}

// Receive blocks until a valid framed datagram is available, draining and
// logging anything malformed or unmatched along the way, and returns it.
// Socket errors are counted as drops and retried, so the only error it
// returns is ctx's own once ctx is done.
func (r *Receiver) Receive(ctx context.Context) (*Result, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, drop, err := r.attempt()
		if err != nil {
			return nil, err
		}
		if drop != "" {
			r.metrics.RecordDropped(drop)
			continue
		}
		r.metrics.RecordReceived(len(result.Payload))
		return result, nil
	}
}

// attempt performs one pass of the peek/length/receive/lookup algorithm.
// drop is a non-empty reason when the datagram was discarded rather than
// returned. Socket errors are reported as the "recv_error" drop reason, so
// err is nil on both the peek and the fallback path.
func (r *Receiver) attempt() (result *Result, drop string, err error) {
	if r.io.supportsPeek() {
		return r.attemptPeek()
	}
	return r.attemptFallback()
}

func (r *Receiver) attemptPeek() (*Result, string, error) {
	var hdr [headerLen]byte
	addr, err := r.io.peekHeader(r.conn, hdr[:])
	if err != nil {
		if errors.Is(err, errShortPeek) {
			if derr := r.io.drain(r.conn); derr != nil {
				r.logger.Debug("drain failed", logging.KeySocket, r.socket, logging.KeyError, derr)
			}
			return nil, "bad_length", nil
		}
		r.logger.Debug("peek failed", logging.KeySocket, r.socket, logging.KeyError, err)
		return nil, "recv_error", nil
	}

	declared := CheckedLength(hdr[:])
	if declared == 0 {
		if derr := r.io.drain(r.conn); derr != nil {
			r.logger.Debug("drain failed", logging.KeySocket, r.socket, logging.KeyError, derr)
		}
		return nil, "bad_length", nil
	}

	buf := make([]byte, declared)
	n, truncated, err := r.io.receiveExact(r.conn, buf)
	if err != nil {
		r.logger.Debug("receive failed", logging.KeySocket, r.socket, logging.KeyError, err)
		return nil, "recv_error", nil
	}
	if n < declared {
		return nil, "short_datagram", nil
	}
	if truncated {
		r.logger.Debug("datagram longer than declared length, truncating",
			logging.KeySocket, r.socket, logging.KeyLength, declared)
	}

	// Peer resolution runs only after the datagram has been fully and
	// validly received, so a malformed or unmatched frame never refreshes
	// or creates a client record.
	identity, ok := r.resolvePeer(addr)
	if !ok {
		return nil, "unknown_peer", nil
	}

	return r.buildResult(buf[:declared], addr, identity), "", nil
}

func (r *Receiver) attemptFallback() (*Result, string, error) {
	buf := make([]byte, MaxRADIUSLength)
	n, addr, err := r.io.receiveFull(r.conn, buf)
	if err != nil {
		r.logger.Debug("receive failed", logging.KeySocket, r.socket, logging.KeyError, err)
		return nil, "recv_error", nil
	}
	if n < headerLen {
		return nil, "short_datagram", nil
	}

	declared := CheckedLength(buf[:headerLen])
	if declared == 0 {
		return nil, "bad_length", nil
	}
	if n < declared {
		return nil, "short_datagram", nil
	}
	if n > declared {
		r.logger.Debug("datagram longer than declared length, truncating",
			logging.KeySocket, r.socket, logging.KeyLength, declared)
	}

	identity, ok := r.resolvePeer(addr)
	if !ok {
		return nil, "unknown_peer", nil
	}

	payload := make([]byte, declared)
	copy(payload, buf[:declared])
	return r.buildResult(payload, addr, identity), "", nil
}

// peerIdentity is an internal union of the two peer-resolution outcomes.
type peerIdentity struct {
	clientRec *client.Client
	server    ServerIdentity
}

func (r *Receiver) resolvePeer(addr *net.UDPAddr) (peerIdentity, bool) {
	switch r.mode {
	case ModeServer:
		c, ok := r.table.MatchOrCreate(addr, time.Now())
		return peerIdentity{clientRec: c}, ok
	case ModeUpstream:
		srv, ok := r.servers.Lookup(addr)
		return peerIdentity{server: srv}, ok
	default:
		return peerIdentity{}, false
	}
}

func (r *Receiver) buildResult(payload []byte, addr *net.UDPAddr, id peerIdentity) *Result {
	return &Result{
		Payload: payload,
		Addr:    addr,
		Client:  id.clientRec,
		Server:  id.server,
	}
}

// socketIO abstracts the platform-specific low-level peek/receive/drain
// primitives a Receiver needs.
type socketIO interface {
	// supportsPeek reports whether this platform can inspect a datagram's
	// header without dequeuing it.
	supportsPeek() bool
	// peekHeader copies up to len(hdr) bytes of the next queued datagram
	// into hdr without removing it from the socket, returning the
	// sender's address.
	peekHeader(conn *net.UDPConn, hdr []byte) (addr *net.UDPAddr, err error)
	// receiveExact dequeues the next datagram into buf. truncated is true
	// if more bytes were available than len(buf).
	receiveExact(conn *net.UDPConn, buf []byte) (n int, truncated bool, err error)
	// drain dequeues and discards the next datagram.
	drain(conn *net.UDPConn) error
	// receiveFull dequeues the next datagram into buf in full, for
	// platforms that cannot peek; buf must be sized to MaxRADIUSLength.
	receiveFull(conn *net.UDPConn, buf []byte) (n int, addr *net.UDPAddr, err error)
}
