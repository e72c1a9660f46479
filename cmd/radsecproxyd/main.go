// Package main provides the CLI entry point for the RADIUS UDP transport
// core daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radsecproxy/udpcore/internal/config"
	"github.com/radsecproxy/udpcore/internal/framing"
	"github.com/radsecproxy/udpcore/internal/logging"
	"github.com/radsecproxy/udpcore/internal/metrics"
	"github.com/radsecproxy/udpcore/internal/pool"
	"github.com/radsecproxy/udpcore/internal/udp"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "radsecproxyd",
		Short:   "RADIUS UDP transport core daemon",
		Long:    "radsecproxyd hosts one or more RADIUS listener sockets and the outbound socket pool that forwards datagrams to configured upstream servers.",
		Version: Version,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the transport core daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
			reg := prometheus.NewRegistry()
			m := metrics.NewMetricsWithRegistry(reg)

			socketPool := pool.NewPool(nil)
			lookup, err := newUpstreamLookup(cfg.Upstreams, socketPool)
			if err != nil {
				return fmt.Errorf("prepare upstreams: %w", err)
			}

			listeners := make([]udp.ServerConfig, 0, len(cfg.Listeners))
			for _, l := range cfg.Listeners {
				listeners = append(listeners, udp.ServerConfig{
					Name:      l.Name,
					BindAddr:  withPort(l.BindAddress),
					Authority: newAllowlist(l.Clients),
					Logger:    logger,
					Metrics:   m,
				})
			}

			dispatcher := &forwardingDispatcher{lookup: lookup, logger: logger}
			handler := &loggingReplyHandler{logger: logger}

			b, err := udp.Start(listeners, dispatcher, socketPool, lookup, handler, logger, m)
			if err != nil {
				return fmt.Errorf("start transport core: %w", err)
			}
			m.SetPoolSize(socketPool.Size())

			var metricsSrv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server failed", logging.KeyError, err)
					}
				}()
				logger.Info("metrics server listening", logging.KeyLocalAddr, metricsAddr)
			}

			logger.Info("transport core started",
				"listeners", len(b.Servers),
				"upstream_sockets", len(b.Upstreams))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			b.Stop()
			logger.Info("transport core stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./radsecproxyd.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve Prometheus metrics on (empty to disable)")

	return cmd
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("OK: %d listener(s), %d upstream(s)\n", len(cfg.Listeners), len(cfg.Upstreams))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./radsecproxyd.yaml", "Path to configuration file")
	return cmd
}

func withPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, config.DefaultRADIUSPort)
}

// allowlist is a client.PeerAuthority backed by a fixed set of configured
// client addresses, one per listener. An empty allowlist authorizes every
// peer, matching a listener with no clients configured.
type allowlist struct {
	addrs map[string]bool
}

func newAllowlist(clients []config.ClientConfig) *allowlist {
	a := &allowlist{addrs: make(map[string]bool, len(clients))}
	for _, c := range clients {
		if udpAddr, err := net.ResolveUDPAddr("udp", withPort(c.Address)); err == nil {
			a.addrs[udpAddr.IP.String()] = true
		}
	}
	return a
}

func (a *allowlist) Authorized(socket string, addr *net.UDPAddr) bool {
	if len(a.addrs) == 0 {
		return true
	}
	return a.addrs[addr.IP.String()]
}

// upstreamEntry pairs a configured upstream server with the outbound
// socket the pool assigned it.
type upstreamEntry struct {
	identity framing.ServerIdentity
	sock     *pool.ClientSock
}

// upstreamLookup implements framing.ServerLookup over the configured
// upstream servers, and doubles as the socket directory the dispatcher
// forwards through.
type upstreamLookup struct {
	byAddr  map[string]framing.ServerIdentity
	ordered []upstreamEntry
}

func newUpstreamLookup(upstreams []config.ServerConfig, p *pool.Pool) (*upstreamLookup, error) {
	l := &upstreamLookup{byAddr: make(map[string]framing.ServerIdentity, len(upstreams))}
	for _, u := range upstreams {
		addr, err := net.ResolveUDPAddr("udp", withPort(u.Address))
		if err != nil {
			return nil, fmt.Errorf("upstream %q: resolve %s: %w", u.Name, u.Address, err)
		}

		candidate := &net.UDPAddr{}
		if u.Source != "" {
			src, err := net.ResolveUDPAddr("udp", withPort(u.Source))
			if err != nil {
				return nil, fmt.Errorf("upstream %q: resolve source %s: %w", u.Name, u.Source, err)
			}
			candidate = src
		}

		family := "ip4"
		if addr.IP.To4() == nil {
			family = "ip6"
		}
		sock, err := p.Assign([]*net.UDPAddr{candidate}, family)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", u.Name, err)
		}

		identity := framing.ServerIdentity{Name: u.Name, Addr: addr}
		l.byAddr[addr.String()] = identity
		l.ordered = append(l.ordered, upstreamEntry{identity: identity, sock: sock})
	}
	return l, nil
}

func (l *upstreamLookup) Lookup(addr *net.UDPAddr) (framing.ServerIdentity, bool) {
	id, ok := l.byAddr[addr.String()]
	return id, ok
}

// forwardingDispatcher is an illustrative udp.Dispatcher: it forwards every
// received client datagram to the first configured upstream server over
// the outbound socket pool. Correlating a reply back to the client that
// triggered it is the responsibility of the external proxy core this
// transport layer serves; this daemon only demonstrates wiring the
// transport primitives together, not RADIUS request/response matching.
type forwardingDispatcher struct {
	lookup *upstreamLookup
	logger *slog.Logger
}

func (d *forwardingDispatcher) Dispatch(req *udp.Request) error {
	if len(d.lookup.ordered) == 0 {
		d.logger.Warn("no upstream servers configured, dropping request", logging.KeySocket, req.Client.Socket)
		return nil
	}
	target := d.lookup.ordered[0]
	if !target.sock.Send(target.identity.Addr, req.Payload) {
		d.logger.Debug("forward to upstream failed", logging.KeyServer, target.identity.Name)
	}
	return nil
}

// loggingReplyHandler implements udp.ReplyHandler by logging replies
// received from upstream servers. Routing a reply back to the listener
// and client that originated the corresponding request requires the
// request/response correlation the external proxy core owns.
type loggingReplyHandler struct {
	logger *slog.Logger
}

func (h *loggingReplyHandler) HandleReply(serverName string, serverAddr *net.UDPAddr, payload []byte) error {
	h.logger.Debug("reply received from upstream",
		logging.KeyServer, serverName, logging.KeyPeerAddr, serverAddr.String(), logging.KeyLength, len(payload))
	return nil
}
