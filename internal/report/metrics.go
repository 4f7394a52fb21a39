package report

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the supervisor's counters and gauges. Every exit counter can
// be traced back to a single Exit record.
type Metrics struct {
	WorkersDesired prometheus.Gauge
	WorkersActive  prometheus.Gauge
	Spawns         prometheus.Counter
	Exits          *prometheus.CounterVec
	Timeouts       prometheus.Counter
	BootFailures   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkersDesired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dockerapp_workers_desired",
			Help: "Number of workers the supervisor is trying to keep running",
		}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dockerapp_workers_active",
			Help: "Number of worker processes currently alive",
		}),
		Spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dockerapp_worker_spawns_total",
			Help: "Total worker processes started",
		}),
		Exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dockerapp_worker_exits_total",
			Help: "Total worker exits by reason",
		}, []string{"reason"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dockerapp_worker_timeouts_total",
			Help: "Total workers killed by the heartbeat watchdog",
		}),
		BootFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dockerapp_worker_boot_failures_total",
			Help: "Total workers that failed before serving",
		}),
	}

	reg.MustRegister(
		m.WorkersDesired,
		m.WorkersActive,
		m.Spawns,
		m.Exits,
		m.Timeouts,
		m.BootFailures,
	)
	return m
}

// RecordExit updates counters from a finished worker.
func (m *Metrics) RecordExit(e *Exit) {
	m.Exits.WithLabelValues(string(e.Reason)).Inc()
	switch e.Reason {
	case ReasonTimeout:
		m.Timeouts.Inc()
	case ReasonBootFailure:
		m.BootFailures.Inc()
	}
}
