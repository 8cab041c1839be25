package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycle metrics
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_cycles_total",
			Help: "Polling cycles by outcome",
		},
		[]string{"status"}, // status: success|error|skipped
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optionwatch_cycle_duration_seconds",
			Help:    "Wall time of one polling cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_fetch_total",
			Help: "Option chain fetches by symbol and outcome",
		},
		[]string{"symbol", "status"},
	)

	// Persistence metrics
	SnapshotsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_snapshots_persisted_total",
			Help: "Contract snapshots written to the snapshot log",
		},
		[]string{"symbol"},
	)

	SnapshotFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_snapshot_failures_total",
			Help: "Contract snapshots that failed to persist",
		},
		[]string{"symbol"},
	)

	// Alert metrics
	AlertsDecided = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_alerts_decided_total",
			Help: "Contracts that cleared the alert decision",
		},
		[]string{"symbol", "option_type"},
	)

	AlertsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_alerts_dispatched_total",
			Help: "Alert deliveries by outcome",
		},
		[]string{"status"}, // status: sent|failed
	)

	// Chain summary gauges
	PutCallRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optionwatch_put_call_ratio",
			Help: "Put/call open interest ratio of the latest chain",
		},
		[]string{"symbol"},
	)

	MaxPainStrike = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optionwatch_max_pain_strike",
			Help: "Max pain strike of the latest chain",
		},
		[]string{"symbol"},
	)

	DirectionalSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionwatch_directional_signals_total",
			Help: "Directional open interest signals",
		},
		[]string{"symbol", "direction"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Cycles,
		CycleDuration,
		Fetches,
		SnapshotsPersisted,
		SnapshotFailures,
		AlertsDecided,
		AlertsDispatched,
		PutCallRatio,
		MaxPainStrike,
		DirectionalSignals,
	}
}

// Register adds every collector to reg. Collectors already present are left as is.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler returns the HTTP handler exposing gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordCycle records the outcome of one polling cycle.
func RecordCycle(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Cycles.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordFetch records one option chain fetch.
func RecordFetch(symbol string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Fetches.WithLabelValues(symbol, status).Inc()
}
