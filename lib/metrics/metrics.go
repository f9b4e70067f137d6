// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes prololo's Prometheus instrumentation.
//
// A Metrics value owns its own registry so tests can create as many
// instances as they want without colliding on the global default
// registerer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds prololo's collectors.
type Metrics struct {
	registry *prometheus.Registry

	// WebhooksReceived counts inbound webhook requests by source and
	// outcome (accepted, ignored, unauthorized, malformed,
	// unknown_source).
	WebhooksReceived *prometheus.CounterVec

	// MessagesDelivered counts chat sends by outcome (sent, failed,
	// duplicate).
	MessagesDelivered *prometheus.CounterVec

	// DeliveryRetries counts transient send failures that were
	// retried.
	DeliveryRetries prometheus.Counter

	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prololo",
			Name:      "webhooks_received_total",
			Help:      "Inbound webhook requests by source and outcome.",
		}, []string{"source", "outcome"}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prololo",
			Name:      "messages_delivered_total",
			Help:      "Matrix message sends by outcome.",
		}, []string{"outcome"}),
		DeliveryRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prololo",
			Name:      "delivery_retries_total",
			Help:      "Transient Matrix send failures that were retried.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "prololo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Webhook request processing latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "prololo",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Webhook requests currently being processed.",
		}),
	}
}

// Handler returns the /metrics endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Wrap instruments an HTTP handler with request duration observation.
func (m *Metrics) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.requestDuration.
			WithLabelValues(r.Method, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
