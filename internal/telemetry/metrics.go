package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the api and the worker.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	CheckDuration    *prometheus.HistogramVec
	ProviderFailures *prometheus.CounterVec
	SweepClaimed     prometheus.Counter
	SweepRateLimited *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil reg means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ChecksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackrisk_checks_total",
				Help: "Tracking checks by provider, normalized status and risk level",
			},
			[]string{"provider", "status", "risk"},
		),
		CheckDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trackrisk_check_duration_seconds",
				Help:    "Tracking check duration in seconds by provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		ProviderFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackrisk_provider_failures_total",
				Help: "Tracking provider failures by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		SweepClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "trackrisk_sweep_claimed_total",
			Help: "Orders claimed by the sweep worker",
		}),
		SweepRateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackrisk_sweep_rate_limited_total",
				Help: "Sweep checks postponed by the provider rate limit",
			},
			[]string{"provider"},
		),
		PublishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackrisk_publish_failures_total",
				Help: "Kafka publish failures by topic",
			},
			[]string{"topic"},
		),
	}
}

// RecordCheck records a completed check.
func (m *Metrics) RecordCheck(provider, status, risk string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(provider, status, risk).Inc()
	m.CheckDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordFailure records a provider error.
func (m *Metrics) RecordFailure(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderFailures.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordClaimed(n int) {
	if m == nil {
		return
	}
	m.SweepClaimed.Add(float64(n))
}

func (m *Metrics) RecordRateLimited(provider string) {
	if m == nil {
		return
	}
	m.SweepRateLimited.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordPublishFailure(topic string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(topic).Inc()
}
