// Package metrics exposes Prometheus counters for task relationship
// transitions, recurrence outcomes and bot commands.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry so that tests and multiple instances do not
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	recurrences *prometheus.CounterVec
	commands    *prometheus.CounterVec
	digests     *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "taskhub"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Core operations by name and outcome (ok or error kind).",
		},
		[]string{"op", "outcome"},
	)
	c.recurrences = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurrences_total",
			Help:      "Recurrence engine runs by outcome (spawned, exhausted, failed).",
		},
		[]string{"outcome"},
	)
	c.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Telegram commands by name and result (ok, error, throttled).",
		},
		[]string{"command", "result"},
	)
	c.digests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "digests_total",
			Help:      "Digest deliveries by result (sent, skipped, failed).",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.transitions,
		c.recurrences,
		c.commands,
		c.digests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveTransition(op, outcome string) {
	c.transitions.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) ObserveRecurrence(outcome string) {
	c.recurrences.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveCommand(command, result string) {
	c.commands.WithLabelValues(command, result).Inc()
}

func (c *Collector) ObserveDigest(result string) {
	c.digests.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
