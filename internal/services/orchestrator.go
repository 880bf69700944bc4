package services

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/metrics"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/retry"
)

// Statistics is the cumulative view across all cycles since startup or the
// last reset.
type Statistics struct {
	TotalPolled   int                      `json:"totalPolled"`
	AlreadySynced int                      `json:"alreadySynced"`
	NewlySynced   int                      `json:"newlySynced"`
	Updated       int                      `json:"updated"`
	SyncErrors    int                      `json:"syncErrors"`
	LastPollTime  *time.Time               `json:"lastPollTime,omitempty"`
	ErrorSummary  errs.Summary             `json:"errorSummary"`
	Executors     map[string]retry.Metrics `json:"executors"`
}

// Orchestrator owns the polling lifecycle: it serializes cycles, keeps
// cumulative statistics and the long-lived error aggregator, and feeds the
// Prometheus instruments.
type Orchestrator struct {
	poller  *OrderPoller
	fabric  *retry.Fabric
	metrics *metrics.Metrics
	logger  *log.Entry

	cycleMu sync.Mutex // serializes cycles, single-flight

	mu          sync.Mutex
	initialized bool
	closed      bool
	stats       Statistics
	aggregator  *errs.Aggregator
	lastReport  *models.PollReport
}

// NewOrchestrator creates the orchestrator. Call Initialize before the
// first cycle.
func NewOrchestrator(poller *OrderPoller, fabric *retry.Fabric, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		poller:     poller,
		fabric:     fabric,
		metrics:    m,
		logger:     log.WithField("component", "polling_orchestrator"),
		aggregator: errs.NewAggregator(),
	}
}

// Initialize marks the orchestrator ready. Calling it twice is harmless.
func (o *Orchestrator) Initialize() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return
	}
	o.initialized = true
	o.closed = false
	o.logger.Info("Polling orchestrator initialized")
}

// Close stops accepting cycles. In-flight cycles finish normally.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.logger.Info("Polling orchestrator closed")
}

// PollAndSync runs one cycle. Concurrent callers are serialized: a second
// call blocks until the running cycle finishes. The returned report is
// never nil.
func (o *Orchestrator) PollAndSync(ctx context.Context, opts models.PollOptions) *models.PollReport {
	o.mu.Lock()
	ready := o.initialized && !o.closed
	o.mu.Unlock()
	if !ready {
		return &models.PollReport{
			Status:    models.ReportError,
			Timestamp: time.Now().UTC(),
			Message:   "orchestrator is not running",
			Error:     "orchestrator is not running",
		}
	}

	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	report, cycleAgg := o.poller.Poll(ctx, opts)
	o.fold(report, cycleAgg)

	if o.metrics != nil {
		o.metrics.RecordCycle(report)
		o.metrics.ObserveFabric(o.fabric)
	}
	return report
}

// fold merges one cycle's outcome into the cumulative state.
func (o *Orchestrator) fold(report *models.PollReport, cycleAgg *errs.Aggregator) {
	summary := cycleAgg.Summary()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.TotalPolled += report.Statistics.TotalPolled
	o.stats.AlreadySynced += report.Statistics.AlreadySynced
	o.stats.NewlySynced += report.Statistics.NewlySynced
	o.stats.Updated += report.Statistics.Updated
	o.stats.SyncErrors += report.Statistics.SyncErrors
	now := report.Timestamp
	o.stats.LastPollTime = &now
	o.lastReport = report

	for _, entry := range summary.Errors {
		o.aggregator.AddError(entry.Context, errs.New(entry.Kind, entry.Message, nil))
	}
	for _, entry := range summary.Warnings {
		o.aggregator.AddWarning(entry.Context, errs.New(entry.Kind, entry.Message, nil))
	}
}

// Statistics snapshots the cumulative counters, the error summary and the
// executor metrics.
func (o *Orchestrator) Statistics() Statistics {
	o.mu.Lock()
	stats := o.stats
	o.mu.Unlock()

	stats.ErrorSummary = o.aggregator.Summary()
	stats.Executors = map[string]retry.Metrics{
		o.fabric.Storefront.Name(): o.fabric.Storefront.Metrics(),
		o.fabric.Rms.Name():        o.fabric.Rms.Metrics(),
		o.fabric.Sync.Name():       o.fabric.Sync.Metrics(),
	}
	return stats
}

// LastReport returns the most recent cycle report, or nil before the first
// cycle.
func (o *Orchestrator) LastReport() *models.PollReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// ResetStatistics clears the cumulative counters and the aggregator.
func (o *Orchestrator) ResetStatistics() {
	o.mu.Lock()
	o.stats = Statistics{}
	o.lastReport = nil
	o.mu.Unlock()
	o.aggregator.Reset()
	o.logger.Info("Cumulative statistics reset")
}
