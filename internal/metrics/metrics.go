// Package metrics provides Prometheus metrics for the RADIUS UDP transport core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "radsecproxy_udpcore"
)

// Metrics contains all Prometheus metrics exported by the transport core.
type Metrics struct {
	// Datagram reception (component D: framed datagram receiver)
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec // by "reason": unknown_peer, bad_length, short_datagram, recv_error
	BytesReceived     prometheus.Counter

	// Per-peer client table (component D / §3 Client)
	ClientsActive  prometheus.Gauge
	ClientsCreated prometheus.Counter
	ClientsEvicted prometheus.Counter

	// Reply writer (component G)
	RepliesQueued  prometheus.Counter
	RepliesSent    prometheus.Counter
	RepliesDropped prometheus.Counter
	ReplyBytesSent prometheus.Counter

	// Outbound socket pool (component H)
	PoolSockets    prometheus.Gauge
	PoolAssignFail prometheus.Counter

	// Upstream send path (component J / clientradputudp)
	UpstreamSendOK   prometheus.Counter
	UpstreamSendFail prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance, registered against the
// global Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total RADIUS datagrams accepted and framed successfully.",
		}),
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Total datagrams drained and discarded, by reason.",
		}, []string{"reason"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes accepted across all sockets.",
		}),

		ClientsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_active",
			Help:      "Number of per-peer client records currently tracked.",
		}),
		ClientsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_created_total",
			Help:      "Total client records created for newly seen peers.",
		}),
		ClientsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_evicted_total",
			Help:      "Total client records removed due to idle expiry.",
		}),

		RepliesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_queued_total",
			Help:      "Total replies handed to a listener's reply queue.",
		}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Total replies successfully written back to a peer.",
		}),
		RepliesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_dropped_total",
			Help:      "Total replies dropped because the destination client had expired or the send failed.",
		}),
		ReplyBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_bytes_sent_total",
			Help:      "Total reply payload bytes written back to peers.",
		}),

		PoolSockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_sockets",
			Help:      "Number of distinct outbound sockets in the source-address pool.",
		}),
		PoolAssignFail: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_assign_failures_total",
			Help:      "Total failures to bind an outbound socket for an upstream server.",
		}),

		UpstreamSendOK: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_sends_total",
			Help:      "Total proxied requests sent to an upstream server.",
		}),
		UpstreamSendFail: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_send_failures_total",
			Help:      "Total proxied requests that could not be sent to an upstream server.",
		}),
	}
}

// RecordReceived records a successfully framed inbound datagram.
func (m *Metrics) RecordReceived(n int) {
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// RecordDropped records a datagram drained and discarded for the given reason.
func (m *Metrics) RecordDropped(reason string) {
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

// RecordClientCreated records a new client record entering the table.
func (m *Metrics) RecordClientCreated() {
	m.ClientsActive.Inc()
	m.ClientsCreated.Inc()
}

// RecordClientEvicted records a client record leaving the table on idle expiry.
func (m *Metrics) RecordClientEvicted() {
	m.ClientsActive.Dec()
	m.ClientsEvicted.Inc()
}

// RecordReplyQueued records a reply handed to a listener's reply queue.
func (m *Metrics) RecordReplyQueued() {
	m.RepliesQueued.Inc()
}

// RecordReplySent records a reply successfully written back to a peer.
func (m *Metrics) RecordReplySent(n int) {
	m.RepliesSent.Inc()
	m.ReplyBytesSent.Add(float64(n))
}

// RecordReplyDropped records a reply dropped (expired destination or send failure).
func (m *Metrics) RecordReplyDropped() {
	m.RepliesDropped.Inc()
}

// SetPoolSize sets the current number of pooled outbound sockets.
func (m *Metrics) SetPoolSize(n int) {
	m.PoolSockets.Set(float64(n))
}

// RecordPoolAssignFailure records a failed outbound socket bind.
func (m *Metrics) RecordPoolAssignFailure() {
	m.PoolAssignFail.Inc()
}

// RecordUpstreamSend records the outcome of a proxied send to an upstream server.
func (m *Metrics) RecordUpstreamSend(ok bool) {
	if ok {
		m.UpstreamSendOK.Inc()
	} else {
		m.UpstreamSendFail.Inc()
	}
}
