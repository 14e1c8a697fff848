package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/reply"
)

const metricsNamespace = "chatrelay"

// Guard label values for the reply guard counter.
const (
	guardDepth    = "depth"
	guardCycle    = "cycle"
	guardFallback = "fallback"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	replies         *prometheus.CounterVec
	guards          *prometheus.CounterVec
	webhookRequests *prometheus.CounterVec
	webhookLatency  prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		replies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replies_total",
			Help:      "Rendered replies by resolution strategy.",
		}, []string{"strategy"}),
		guards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reply_guard_total",
			Help:      "Replies that tripped a resolution guard or fell back.",
		}, []string{"guard"}),
		webhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook round trips by outcome.",
		}, []string{"outcome"}),
		webhookLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_request_duration_seconds",
			Help:      "Webhook round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveRequest records one webhook round trip.
func (m *Metrics) ObserveRequest(outcome string, duration time.Duration) {
	m.webhookRequests.WithLabelValues(outcome).Inc()
	m.webhookLatency.Observe(duration.Seconds())
}

// ObserveTrace records how a reply was resolved.
func (m *Metrics) ObserveTrace(trace reply.Trace) {
	m.observeResolution(trace.Strategy(), trace.DepthExceeded, trace.CycleDetected, trace.Fallback)
}

// ObserveEvent records reply_rendered events published by conversations.
func (m *Metrics) ObserveEvent(event bus.Event) {
	if event.Type != bus.EventReplyRendered {
		return
	}

	m.observeResolution(
		event.Payload[bus.PayloadStrategy],
		event.Payload[bus.PayloadDepthExceeded] == "true",
		event.Payload[bus.PayloadCycleDetected] == "true",
		event.Payload[bus.PayloadFallback] == "true",
	)
}

func (m *Metrics) observeResolution(strategy string, depthExceeded, cycleDetected, fallback bool) {
	if strategy == "" {
		strategy = "none"
	}
	m.replies.WithLabelValues(strategy).Inc()

	if depthExceeded {
		m.guards.WithLabelValues(guardDepth).Inc()
	}
	if cycleDetected {
		m.guards.WithLabelValues(guardCycle).Inc()
	}
	if fallback {
		m.guards.WithLabelValues(guardFallback).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
