package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes run outcomes to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	rowsLoaded     prometheus.Gauge
	nullQuantities prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onhand",
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "onhand",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		rowsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "onhand",
			Name:      "rows_loaded",
			Help:      "Rows ingested into staging by the last successful run.",
		}),
		nullQuantities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "onhand",
			Name:      "null_quantities",
			Help:      "Rows loaded with a NULL quantity by the last successful run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "onhand",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
	}
	reg.MustRegister(m.runs, m.stageDuration, m.rowsLoaded, m.nullQuantities, m.lastSuccess)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(rec *RunRecord) {
	if m == nil {
		return
	}

	m.runs.WithLabelValues(string(rec.Status)).Inc()
	for _, s := range rec.Stages {
		if s.Status == StatusSkipped {
			continue
		}
		m.stageDuration.WithLabelValues(string(s.Stage)).Observe(s.Duration.Seconds())
	}

	if rec.Status == RunSucceeded {
		m.rowsLoaded.Set(float64(rec.RowsLoaded))
		m.nullQuantities.Set(float64(rec.NullQuantities))
		m.lastSuccess.Set(float64(rec.FinishedAt.Unix()))
	}
}
