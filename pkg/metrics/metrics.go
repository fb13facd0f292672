// Package metrics exposes the identity sync counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fintherapy-backend/internal/domain"
)

// Collector implements domain.MetricsRecorder
type Collector struct {
	events        *prometheus.CounterVec
	compensations *prometheus.CounterVec
	enrichment    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_webhook_events_total",
			Help: "Webhook events handled, by type and result",
		}, []string{"type", "result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_compensations_total",
			Help: "Remote account deletions after a rolled back signup",
		}, []string{"outcome"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_enrichment_failures_total",
			Help: "Non-blocking sync steps that failed",
		}, []string{"step"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_event_duration_seconds",
			Help:    "Time spent handling one webhook event",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}

	reg.MustRegister(c.events, c.compensations, c.enrichment, c.duration)
	return c
}

func (c *Collector) ObserveEvent(eventType domain.EventType, status domain.ResultStatus, elapsed time.Duration) {
	c.events.WithLabelValues(string(eventType), string(status)).Inc()
	c.duration.WithLabelValues(string(eventType)).Observe(elapsed.Seconds())
}

func (c *Collector) IncCompensation(outcome string) {
	c.compensations.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncEnrichmentFailure(step string) {
	c.enrichment.WithLabelValues(step).Inc()
}

// Handler serves the registry in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
