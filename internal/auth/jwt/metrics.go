package jwt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for token verification and key set fetches.
type Metrics struct {
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	keySetFetchesTotal   *prometheus.CounterVec
	keySetFetchDuration  *prometheus.HistogramVec
}

// NewMetrics creates verification metrics registered with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates verification metrics registered with the
// given registerer.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_token_verifications_total",
				Help: "Total number of token verifications by provider and result.",
			},
			[]string{"provider", "result"},
		),
		verificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_token_verification_duration_seconds",
				Help:    "Token verification duration in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"provider"},
		),
		keySetFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_keyset_fetches_total",
				Help: "Total number of key set fetches by provider and result.",
			},
			[]string{"provider", "result"},
		),
		keySetFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_keyset_fetch_duration_seconds",
				Help:    "Key set fetch duration in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
	}
}

// RecordVerification records the outcome of a token verification.
func (m *Metrics) RecordVerification(provider, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(provider, result).Inc()
	m.verificationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordKeySetFetch records the outcome of a key set fetch.
func (m *Metrics) RecordKeySetFetch(provider, result string) {
	if m == nil {
		return
	}
	m.keySetFetchesTotal.WithLabelValues(provider, result).Inc()
}

// ObserveKeySetFetchDuration records the duration of a key set fetch.
func (m *Metrics) ObserveKeySetFetchDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	m.keySetFetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
