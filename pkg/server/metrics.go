package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server. Each Metrics carries
// its own registry so multiple server instances (tests) never collide on
// collector registration.
type Metrics struct {
	registry *prometheus.Registry

	activeClients     prometheus.Gauge
	clientsRegistered prometheus.Counter
	connectionsTotal  prometheus.Counter
	commandsReceived  *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	broadcastFanout   prometheus.Histogram
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatserver_active_clients",
				Help: "Current number of registered clients",
			},
		),
		clientsRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_clients_registered_total",
				Help: "Total number of clients that completed name negotiation",
			},
		),
		connectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_connections_total",
				Help: "Total number of accepted connections",
			},
		),
		commandsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatserver_commands_received_total",
				Help: "Total number of protocol commands received by type",
			},
			[]string{"command"},
		),
		broadcastsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_broadcasts_total",
				Help: "Total number of messages broadcast (unique messages, not deliveries)",
			},
		),
		broadcastFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatserver_broadcast_fanout",
				Help:    "Number of clients that received each broadcast message",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			},
		),
	}
}

// RecordActiveClients updates the registered client count
func (m *Metrics) RecordActiveClients(count int) {
	m.activeClients.Set(float64(count))
}

// RecordClientRegistered increments the registration counter
func (m *Metrics) RecordClientRegistered() {
	m.clientsRegistered.Inc()
}

// RecordConnection increments the accepted connection counter
func (m *Metrics) RecordConnection() {
	m.connectionsTotal.Inc()
}

// RecordCommand increments the received command counter for a type
func (m *Metrics) RecordCommand(command string) {
	m.commandsReceived.WithLabelValues(command).Inc()
}

// RecordBroadcast records one broadcast and its fan-out
func (m *Metrics) RecordBroadcast(recipientCount int) {
	m.broadcastsTotal.Inc()
	m.broadcastFanout.Observe(float64(recipientCount))
}

// Handler returns the /metrics HTTP handler for this instance's registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
