package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radsecproxy/udpcore/internal/client"
	"github.com/radsecproxy/udpcore/internal/framing"
	"github.com/radsecproxy/udpcore/internal/logging"
	"github.com/radsecproxy/udpcore/internal/metrics"
	"github.com/radsecproxy/udpcore/internal/recovery"
	"github.com/radsecproxy/udpcore/internal/reply"
)

// allocBackoff is how long the listener loop pauses when the dispatcher
// reports it could not accept a request, standing in for the coarse
// back-pressure a C implementation applies on Request allocation failure.
const allocBackoff = 5 * time.Second

// ServerConfig configures one listener socket.
type ServerConfig struct {
	Name      string
	BindAddr  string
	Authority client.PeerAuthority
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Server owns one bound UDP listener socket: its client table, its reply
// queue, and the listener and writer goroutines that serve it.
type Server struct {
	name   string
	conn   *net.UDPConn
	table  *client.Table
	replyq *reply.Queue

	dispatcher Dispatcher
	receiver   *framing.Receiver

	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer binds a UDP socket at cfg.BindAddr and prepares its client
// table and reply queue. The listener and writer goroutines are not
// started until Start is called.
func NewServer(cfg ServerConfig, dispatcher Dispatcher) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", cfg.BindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen on %s: %w", cfg.BindAddr, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Default()
	}

	table := client.NewTable(cfg.Name, cfg.Authority)
	replyq := reply.NewQueue()
	table.OnEvict(func(c *client.Client) {
		replyq.ScrubClient(c)
		m.RecordClientEvicted()
	})
	table.OnCreate(func(*client.Client) {
		m.RecordClientCreated()
	})

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		name:       cfg.Name,
		conn:       conn,
		table:      table,
		replyq:     replyq,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.receiver = framing.NewServerReceiver(cfg.Name, conn, table, logger, m)
	return s, nil
}

// Start spawns the listener and writer goroutines.
func (s *Server) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(2)
	go s.listenLoop()
	go s.writeLoop()
	s.logger.Info("listener started", logging.KeySocket, s.name, logging.KeyLocalAddr, s.conn.LocalAddr().String())
}

// Stop terminates both goroutines and closes the socket. Safe to call more
// than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		s.cancel()
		s.replyq.Close()
		s.conn.Close()
	})
	s.wg.Wait()
}

// Enqueue hands a reply to the writer goroutine for delivery. Callers are
// typically dispatcher implementations responding to a previously
// delivered Request.
func (s *Server) Enqueue(r *reply.Request) {
	s.replyq.Push(r)
	s.metrics.RecordReplyQueued()
}

// Table returns the listener's client table.
func (s *Server) Table() *client.Table { return s.table }

// Name returns the listener's configured name.
func (s *Server) Name() string { return s.name }

// Conn returns the listener's bound socket, for callers that need to
// originate a reply.Request against it.
func (s *Server) Conn() *net.UDPConn { return s.conn }

// listenLoop is the per-listener-socket receive thread (§4.E equivalent):
// frame a datagram, stamp it, and deliver it to the external dispatcher.
func (s *Server) listenLoop() {
	defer s.wg.Done()
	defer recovery.RecoverWithLog(s.logger, "udp.Server.listenLoop:"+s.name)

	for {
		result, err := s.receiver.Receive(s.ctx)
		if err != nil {
			return
		}

		req := &Request{
			Payload:   result.Payload,
			Client:    result.Client,
			Socket:    s.conn,
			CreatedAt: time.Now(),
		}

		if err := s.dispatcher.Dispatch(req); err != nil {
			s.logger.Warn("dispatch rejected request, backing off",
				logging.KeySocket, s.name, logging.KeyError, err)
			select {
			case <-time.After(allocBackoff):
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// writeLoop is the per-listener reply writer thread (§4.G equivalent).
func (s *Server) writeLoop() {
	defer s.wg.Done()
	defer recovery.RecoverWithLog(s.logger, "udp.Server.writeLoop:"+s.name)

	for {
		req, dest, ok := s.replyq.Shift()
		if !ok {
			return
		}

		if dest == nil {
			s.metrics.RecordReplyDropped()
			continue
		}

		n, err := s.conn.WriteToUDP(req.Payload, dest)
		if err != nil {
			s.logger.Debug("reply send failed",
				logging.KeySocket, s.name, logging.KeyPeerAddr, dest.String(), logging.KeyError, err)
			s.metrics.RecordReplyDropped()
			continue
		}
		s.metrics.RecordReplySent(n)
	}
}
