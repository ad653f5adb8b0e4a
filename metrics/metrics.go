// Package metrics exposes the relay's operational counters over
// Prometheus, wired the way the rest of the retrieval pack wires
// client_golang: a registry of gauges/counters served over HTTP
// alongside a simple health endpoint.
package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's counters/gauges. The relay updates
// Connections and MessagesReceived as it runs; MessagesRelayed,
// FederationLinks and DCCSessions are registered and served but never
// updated, so they stay at zero.
type Metrics struct {
	Connections       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	MessagesRelayed   prometheus.Counter
	FederationLinks   prometheus.Gauge
	DCCSessions       prometheus.Gauge
	registry          *prometheus.Registry
}

// New creates a fresh, independently-registered Metrics instance so
// multiple servers in one process (tests spin up several) don't
// collide on Prometheus's default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections", Help: "Currently connected clients.",
		}),
		MessagesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_received_total", Help: "Frames received from clients.",
		}),
		MessagesRelayed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total", Help: "Frames relayed to other clients or servers.",
		}),
		FederationLinks: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_federation_links", Help: "Directly linked neighbor servers.",
		}),
		DCCSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_dcc_sessions", Help: "Open DCC negotiation/transfer sessions.",
		}),
	}
	return m
}

// Handler returns the HTTP surface (/metrics, /healthz) mounted on a
// gorilla/mux router, ready to be served by the caller.
func (m *Metrics) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
