package udp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radsecproxy/udpcore/internal/framing"
	"github.com/radsecproxy/udpcore/internal/logging"
	"github.com/radsecproxy/udpcore/internal/metrics"
	"github.com/radsecproxy/udpcore/internal/recovery"
)

// UpstreamReader is the per-outbound-socket loop (§4.F equivalent) that
// frames datagrams arriving from upstream servers and delivers them to the
// external reply handler.
type UpstreamReader struct {
	name     string
	conn     *net.UDPConn
	receiver *framing.Receiver
	handler  ReplyHandler
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewUpstreamReader creates a reader for one pooled outbound socket, whose
// datagrams are matched against servers via lookup.
func NewUpstreamReader(name string, conn *net.UDPConn, lookup framing.ServerLookup, handler ReplyHandler, logger *slog.Logger, m *metrics.Metrics) *UpstreamReader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UpstreamReader{
		name:     name,
		conn:     conn,
		receiver: framing.NewUpstreamReceiver(name, conn, lookup, logger, m),
		handler:  handler,
		logger:   logger,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run starts the reader's goroutine. Safe to call once.
func (u *UpstreamReader) Run() {
	if !u.running.CompareAndSwap(false, true) {
		return
	}
	u.wg.Add(1)
	go u.readLoop()
}

// Stop cancels the reader's context and waits for its goroutine to exit.
// It does not close the underlying socket, since outbound sockets are
// owned by the socket pool and shared across the process lifetime. readLoop
// is typically parked in a blocking receive that cancellation alone cannot
// interrupt, so Stop also forces a read deadline to unblock it.
func (u *UpstreamReader) Stop() {
	u.stop.Do(func() {
		u.cancel()
		if err := u.conn.SetReadDeadline(time.Now()); err != nil {
			u.logger.Debug("set read deadline failed", logging.KeySocket, u.name, logging.KeyError, err)
		}
	})
	u.wg.Wait()
}

func (u *UpstreamReader) readLoop() {
	defer u.wg.Done()
	defer recovery.RecoverWithLog(u.logger, "udp.UpstreamReader.readLoop:"+u.name)

	for {
		result, err := u.receiver.Receive(u.ctx)
		if err != nil {
			return
		}

		if err := u.handler.HandleReply(result.Server.Name, result.Addr, result.Payload); err != nil {
			u.logger.Debug("reply handler returned an error",
				logging.KeySocket, u.name, logging.KeyReason, result.Server.Name, logging.KeyError, err)
		}
	}
}
