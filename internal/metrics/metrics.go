package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/retry"
)

// Metrics exposes the Prometheus instruments for the order sync pipeline.
type Metrics struct {
	OrdersPolled  prometheus.Counter
	OrdersCreated prometheus.Counter
	OrdersUpdated prometheus.Counter
	SyncErrors    prometheus.Counter
	CycleDuration prometheus.Histogram
	CyclesTotal   *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
	RetryAttempts *prometheus.GaugeVec
}

// New registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersPolled: factory.NewCounter(prometheus.CounterOpts{
			Name: "rms_connector_orders_polled_total",
			Help: "Storefront orders returned by poll cycles.",
		}),
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rms_connector_orders_created_total",
			Help: "RMS orders created by the sync.",
		}),
		OrdersUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rms_connector_orders_updated_total",
			Help: "RMS orders updated by the sync.",
		}),
		SyncErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rms_connector_order_sync_errors_total",
			Help: "Orders that failed to sync after retries.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rms_connector_poll_cycle_duration_seconds",
			Help:    "Wall-clock duration of poll cycles.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rms_connector_poll_cycles_total",
			Help: "Poll cycles by outcome status.",
		}, []string{"status"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rms_connector_circuit_breaker_state",
			Help: "Circuit breaker state per executor (0 closed, 1 half-open, 2 open).",
		}, []string{"executor"}),
		RetryAttempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rms_connector_retry_attempts",
			Help: "Cumulative retry executor attempts per executor.",
		}, []string{"executor"}),
	}
}

// RecordCycle folds one poll report into the counters.
func (m *Metrics) RecordCycle(report *models.PollReport) {
	m.OrdersPolled.Add(float64(report.Statistics.TotalPolled))
	m.OrdersCreated.Add(float64(report.Statistics.NewlySynced))
	m.OrdersUpdated.Add(float64(report.Statistics.Updated))
	m.SyncErrors.Add(float64(report.Statistics.SyncErrors))
	m.CycleDuration.Observe(report.DurationSeconds)
	m.CyclesTotal.WithLabelValues(string(report.Status)).Inc()
}

// ObserveFabric snapshots the retry fabric into the gauges.
func (m *Metrics) ObserveFabric(fabric *retry.Fabric) {
	for _, executor := range []*retry.Executor{fabric.Storefront, fabric.Rms, fabric.Sync} {
		snapshot := executor.Metrics()
		m.RetryAttempts.WithLabelValues(executor.Name()).Set(float64(snapshot.Attempts))
		if breaker := executor.Breaker(); breaker != nil {
			m.BreakerState.WithLabelValues(executor.Name()).Set(breakerStateValue(breaker.State()))
		}
	}
}

func breakerStateValue(state retry.CircuitState) float64 {
	switch state {
	case retry.CircuitOpen:
		return 2
	case retry.CircuitHalfOpen:
		return 1
	default:
		return 0
	}
}
