// Package metrics exposes the per-phase, per-status request counters
// consumed by external observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the sync server.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_requests_total",
			Help: "Sync requests handled, by handshake phase and HTTP status code",
		}, []string{"phase", "status"}),
	}
	reg.MustRegister(m.RequestsTotal)
	return m
}

// RecordRequest increments the counter for one handled request.
func (m *Metrics) RecordRequest(phase string, status int) {
	m.RequestsTotal.WithLabelValues(phase, strconv.Itoa(status)).Inc()
}
