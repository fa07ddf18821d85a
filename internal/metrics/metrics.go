// Package metrics exposes Prometheus counters, gauges, and histograms for
// connection lifecycle, command dispatch, and authentication outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric this server exports.
type Collector struct {
	Registry *prometheus.Registry

	connectionsCurrent  *prometheus.GaugeVec
	connectionsTotal    *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	connectionDuration  *prometheus.HistogramVec

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	authOutcomes *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh, independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hchdb_connections_current",
				Help: "Number of currently open connections",
			},
			[]string{"port"},
		),
		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hchdb_connections_total",
				Help: "Total connections admitted",
			},
			[]string{"port"},
		),
		connectionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hchdb_connections_rejected_total",
				Help: "Total connections rejected at the admission cap",
			},
			[]string{"port"},
		),
		connectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hchdb_connection_duration_seconds",
				Help:    "Lifetime of a connection from admission to close",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			},
			[]string{"port"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hchdb_commands_total",
				Help: "Total commands dispatched by kind",
			},
			[]string{"command"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hchdb_command_duration_seconds",
				Help:    "Duration of command handling by kind",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"command"},
		),
		authOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hchdb_auth_outcomes_total",
				Help: "Authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		c.connectionsCurrent,
		c.connectionsTotal,
		c.connectionsRejected,
		c.connectionDuration,
		c.commandsTotal,
		c.commandDuration,
		c.authOutcomes,
	)

	return c
}

// ConnectionAdmitted records a connection admitted on the given port.
func (c *Collector) ConnectionAdmitted(port string) {
	c.connectionsCurrent.WithLabelValues(port).Inc()
	c.connectionsTotal.WithLabelValues(port).Inc()
}

// ConnectionClosed records a connection's close and its lifetime.
func (c *Collector) ConnectionClosed(port string, d time.Duration) {
	c.connectionsCurrent.WithLabelValues(port).Dec()
	c.connectionDuration.WithLabelValues(port).Observe(d.Seconds())
}

// ConnectionRejected records an admission-cap rejection.
func (c *Collector) ConnectionRejected(port string) {
	c.connectionsRejected.WithLabelValues(port).Inc()
}

// CommandCompleted records one command dispatch and its duration.
func (c *Collector) CommandCompleted(command string, d time.Duration) {
	c.commandsTotal.WithLabelValues(command).Inc()
	c.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// AuthOutcome records an authentication attempt's outcome ("ok",
// "denied", or "error").
func (c *Collector) AuthOutcome(outcome string) {
	c.authOutcomes.WithLabelValues(outcome).Inc()
}
