// Package metrics defines the observability interfaces for the server and
// owns the shared Prometheus registry. Implementations live in
// pkg/metrics/prometheus; a nil interface disables collection with zero
// overhead.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the shared registry with the standard process and Go
// collectors. Safe to call once at startup, before any metrics constructor.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the shared registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// Handler returns the /metrics HTTP handler for the shared registry.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ServerMetrics provides observability for the session and routing
// substrate. All methods must be safe for concurrent use. A nil
// ServerMetrics disables collection; callers check for nil.
type ServerMetrics interface {
	// RecordConnectionAccepted counts an accepted TCP connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a closed connection.
	RecordConnectionClosed()

	// SetActiveConnections updates the live connection gauge.
	SetActiveConnections(count int32)

	// RecordLogin counts a login attempt by outcome.
	RecordLogin(accepted bool)

	// RecordPacket counts one dispatched inbound packet by variant name.
	RecordPacket(packet string)

	// RecordMessageRouted counts a routed envelope by delivery path,
	// "live" or "queued".
	RecordMessageRouted(path string)

	// RecordPendingDelivered counts envelopes drained to a recipient on
	// login.
	RecordPendingDelivered(count int)
}
