// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Auth event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics contains the service's custom Prometheus metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	AuthEvents         *prometheus.CounterVec
	GateRejections     *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	RateLimiterClients prometheus.Gauge
}

// NewMetrics creates and registers the custom metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorhub_auth_events_total",
				Help: "Account operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		GateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorhub_gate_rejections_total",
				Help: "Requests refused by the access gate by reason",
			},
			[]string{"reason"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorhub_http_requests_total",
				Help: "HTTP requests by route pattern and status code",
			},
			[]string{"route", "status"},
		),
		RateLimiterClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mentorhub_ratelimiter_clients",
				Help: "Client addresses currently tracked by the rate limiter",
			},
		),
	}

	reg.MustRegister(m.AuthEvents, m.GateRejections, m.HTTPRequests, m.RateLimiterClients)
	return m
}

// RecordAuthEvent counts one account operation.
func (m *Metrics) RecordAuthEvent(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.AuthEvents.WithLabelValues(operation, outcome).Inc()
}

// RecordGateRejection counts one request refused by the gate.
func (m *Metrics) RecordGateRejection(reason string) {
	if m == nil {
		return
	}
	m.GateRejections.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest counts one served request. route is the mux pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SetRateLimiterClients reports the limiter's tracked client count.
func (m *Metrics) SetRateLimiterClients(n int) {
	if m == nil {
		return
	}
	m.RateLimiterClients.Set(float64(n))
}
