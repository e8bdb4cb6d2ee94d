package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records deployment outcomes. A nil *Metrics records nothing.
type Metrics struct {
	deploys  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the deployment collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deployhub",
				Name:      "deploys_total",
				Help:      "Deployment attempts by project type and final status.",
			},
			[]string{"kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deployhub",
				Name:      "deploy_duration_seconds",
				Help:      "Wall time of deployment attempts.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.deploys, m.duration)
	return m
}

func (m *Metrics) observe(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.deploys.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
