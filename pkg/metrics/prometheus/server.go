// Package prometheus provides the Prometheus-backed implementations of the
// interfaces in pkg/metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hnetwork/hnetd/pkg/metrics"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	activeConnections   prometheus.Gauge
	logins              *prometheus.CounterVec
	packets             *prometheus.CounterVec
	messagesRouted      *prometheus.CounterVec
	pendingDelivered    prometheus.Counter
}

// NewServerMetrics creates a Prometheus-backed ServerMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// callers pass through for zero-overhead disabled collection.
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &serverMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hnetd_connections_accepted_total",
			Help: "Total number of accepted TCP connections",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hnetd_connections_closed_total",
			Help: "Total number of closed TCP connections",
		}),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hnetd_active_connections",
			Help: "Current number of live connections",
		}),
		logins: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "hnetd_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}), // "accepted", "rejected"
		packets: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "hnetd_packets_dispatched_total",
			Help: "Inbound packets dispatched by variant",
		}, []string{"packet"}),
		messagesRouted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "hnetd_messages_routed_total",
			Help: "Routed envelopes by delivery path",
		}, []string{"path"}), // "live", "queued"
		pendingDelivered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hnetd_pending_messages_delivered_total",
			Help: "Queued envelopes drained to recipients on login",
		}),
	}
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *serverMetrics) RecordLogin(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *serverMetrics) RecordPacket(packet string) {
	m.packets.WithLabelValues(packet).Inc()
}

func (m *serverMetrics) RecordMessageRouted(path string) {
	m.messagesRouted.WithLabelValues(path).Inc()
}

func (m *serverMetrics) RecordPendingDelivered(count int) {
	m.pendingDelivered.Add(float64(count))
}
