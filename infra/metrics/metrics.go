// Package metrics holds the Prometheus instruments of the delivery pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pin_delivery"

type Metrics struct {
	registry *prometheus.Registry

	Published       *prometheus.CounterVec // topic, result: queued | dropped | acked | failed
	Consumed        *prometheus.CounterVec // topic, outcome: ok | malformed | unrouted | failed
	Pushed          *prometheus.CounterVec // kind, result: routed | failed
	CounterRetries  prometheus.Counter
	ConsumerHealthy prometheus.Gauge
	Connections     prometheus.Gauge
}

// New registers every instrument on a dedicated registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Envelopes handed to the broker producer, by outcome.",
		}, []string{"topic", "result"}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Envelopes read from the broker, by processing outcome.",
		}, []string{"topic", "outcome"}),
		Pushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Real-time pushes handed to the pusher, by outcome.",
		}, []string{"kind", "result"}),
		CounterRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_retries_total",
			Help:      "Retried unread counter increments.",
		}),
		ConsumerHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_healthy",
			Help:      "1 while the counter maintainer can reach the counter store.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open real-time sessions on this node.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
