// Package telemetry exposes Prometheus metrics for the simulation engine
// and the sweep orchestrator.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for sweeps and runs.
type Metrics struct {
	RunsTotal     prometheus.Counter
	RunFailures   *prometheus.CounterVec // labels: reason
	RunDuration   prometheus.Histogram
	TradesTotal   *prometheus.CounterVec // labels: symbol, strategy
	SweepsTotal   prometheus.Counter
	SweepCells    prometheus.Gauge
	ActiveWorkers prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers and returns all metrics on a private registry, so
// that independent sweeps never collide on registration.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_runs_total",
			Help: "Total backtest runs completed",
		}),
		RunFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_run_failures_total",
			Help: "Backtest runs that returned an error, by reason",
		}, []string{"reason"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meridian_run_duration_seconds",
			Help:    "Wall-clock duration of a single backtest run",
			Buckets: prometheus.DefBuckets,
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_trades_total",
			Help: "Closed trades recorded across runs",
		}, []string{"symbol", "strategy"}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_sweeps_total",
			Help: "Total sweeps executed",
		}),
		SweepCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meridian_sweep_cells",
			Help: "Number of cells in the most recent sweep",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meridian_sweep_active_workers",
			Help: "Workers currently executing a run",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunFailures,
		m.RunDuration,
		m.TradesTotal,
		m.SweepsTotal,
		m.SweepCells,
		m.ActiveWorkers,
	)

	return m
}

// Handler returns an HTTP handler serving this registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
