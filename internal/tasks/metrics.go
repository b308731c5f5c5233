package tasks

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the worker's Prometheus collectors.
type Metrics struct {
	Tasks    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	BootWait prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vlab_avamar",
			Name:      "tasks_total",
			Help:      "Tasks run, by task name and outcome.",
		}, []string{"task", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vlab_avamar",
			Name:      "task_duration_seconds",
			Help:      "Task run time.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 600, 1200, 2400, 3600},
		}, []string{"task"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vlab_avamar",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently running.",
		}),
		BootWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vlab_avamar",
			Name:      "boot_wait_seconds",
			Help:      "Time spent waiting for a new appliance's guest agent, including the grace delay.",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 8),
		}),
	}
	reg.MustRegister(m.Tasks, m.Duration, m.InFlight, m.BootWait)
	return m
}

// ObserveBoot records one boot-gate wait.
func (m *Metrics) ObserveBoot(d time.Duration) {
	m.BootWait.Observe(d.Seconds())
}

func (m *Metrics) taskStarted() {
	m.InFlight.Inc()
}

func (m *Metrics) taskFinished(name string, failed bool, d time.Duration) {
	m.InFlight.Dec()
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.Tasks.WithLabelValues(name, outcome).Inc()
	m.Duration.WithLabelValues(name).Observe(d.Seconds())
}

// MetricsHandler serves the metrics gathered by g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
