package migration

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a migration run.
type Metrics struct {
	callsTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the migration metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraxmig_calls_total",
			Help: "Contract calls sent by the migration, labeled by stage, method and result.",
		}, []string{"stage", "method", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraxmig_stage_duration_seconds",
			Help:    "Wall time of each migration stage.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.callsTotal, m.stageDuration)
	return m
}

func (m *Metrics) observeCall(stage, method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.callsTotal.WithLabelValues(stage, method, result).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
