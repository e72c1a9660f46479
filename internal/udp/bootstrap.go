package udp

import (
	"log/slog"

	"github.com/radsecproxy/udpcore/internal/framing"
	"github.com/radsecproxy/udpcore/internal/metrics"
	"github.com/radsecproxy/udpcore/internal/pool"
)

// Bootstrap owns the full set of listeners and upstream readers for one
// transport core instance, mirroring the module-initialization sequence
// that spins up a reader per pooled socket. It binds no outbound sockets
// itself: the pool is populated before Start is called.
type Bootstrap struct {
	Servers   []*Server
	Upstreams []*UpstreamReader
}

// StartUpstreamReaders spawns one UpstreamReader per distinct socket
// already present in the pool, each matching replies against lookup and
// delivering them to handler.
func StartUpstreamReaders(p *pool.Pool, lookup framing.ServerLookup, handler ReplyHandler, logger *slog.Logger, m *metrics.Metrics) []*UpstreamReader {
	sockets := p.Sockets()
	readers := make([]*UpstreamReader, 0, len(sockets))
	for _, sock := range sockets {
		name := "out:" + sock.Source.String()
		reader := NewUpstreamReader(name, sock.Conn, lookup, handler, logger, m)
		reader.Run()
		readers = append(readers, reader)
	}
	return readers
}

// Start brings up every configured listener (each of which owns its own
// client table, reply queue, listener goroutine, and writer goroutine) and
// every upstream reader for the already-populated socket pool.
func Start(listeners []ServerConfig, dispatcher Dispatcher, p *pool.Pool, lookup framing.ServerLookup, handler ReplyHandler, logger *slog.Logger, m *metrics.Metrics) (*Bootstrap, error) {
	b := &Bootstrap{}

	for _, cfg := range listeners {
		s, err := NewServer(cfg, dispatcher)
		if err != nil {
			b.Stop()
			return nil, err
		}
		s.Start()
		b.Servers = append(b.Servers, s)
	}

	b.Upstreams = StartUpstreamReaders(p, lookup, handler, logger, m)

	if logger != nil {
		logger.Info("bootstrap complete",
			"listeners", len(b.Servers),
			"upstream_sockets", len(b.Upstreams))
	}
	return b, nil
}

// Stop terminates every listener and upstream reader.
func (b *Bootstrap) Stop() {
	for _, s := range b.Servers {
		s.Stop()
	}
	for _, u := range b.Upstreams {
		u.Stop()
	}
}
