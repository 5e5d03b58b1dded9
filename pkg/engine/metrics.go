package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Metrics holds the runner's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	strategyWins *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	active       prometheus.Gauge
}

// NewMetrics registers the runner collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uirun",
			Name:      "runs_total",
			Help:      "Runs by terminal status.",
		}, []string{"status"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uirun",
			Name:      "steps_total",
			Help:      "Steps by action and final status.",
		}, []string{"action", "status"}),
		strategyWins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uirun",
			Name:      "resolver_strategy_wins_total",
			Help:      "Targets resolved, by action and winning strategy.",
		}, []string{"action", "strategy"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uirun",
			Name:      "step_duration_seconds",
			Help:      "Step execution time, excluding the screenshot.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"action"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "uirun",
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
	}
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) runFinished(status schema.RunStatus) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.runs.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) step(action schema.Action, status schema.StepStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(action), string(status)).Inc()
	if status != schema.StepSkipped {
		m.stepDuration.WithLabelValues(string(action)).Observe(d.Seconds())
	}
}

func (m *Metrics) strategyWon(action schema.Action, strategy string) {
	if m != nil && strategy != "" {
		m.strategyWins.WithLabelValues(string(action), strategy).Inc()
	}
}
