package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate decision labels.
const (
	ResultPublic        = "public"
	ResultAuthenticated = "authenticated"
	ResultNoCredential  = "no_credential"
	ResultMalformed     = "malformed_header"
	ResultInvalidToken  = "invalid_token"
)

// Metrics holds Prometheus metrics for gate decisions.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
}

// NewMetrics creates gate metrics registered with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates gate metrics registered with the given
// registerer.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_gate_decisions_total",
				Help: "Total number of gate decisions by result and credential kind.",
			},
			[]string{"result", "credential"},
		),
		decisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_gate_decision_duration_seconds",
				Help:    "Gate decision duration in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"result"},
		),
	}
}

// RecordDecision records the outcome of one gate pass.
func (m *Metrics) RecordDecision(result, credential string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(result, credential).Inc()
	m.decisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}
