package errs

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one recorded error or warning with its context.
type Entry struct {
	Kind     Kind      `json:"kind"`
	Severity string    `json:"severity"`
	Context  string    `json:"context,omitempty"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Summary is the aggregate view over one batch.
type Summary struct {
	Processed       int     `json:"processed"`
	ErrorCount      int     `json:"errorCount"`
	WarningCount    int     `json:"warningCount"`
	SuccessCount    int     `json:"successCount"`
	DurationSeconds float64 `json:"durationSeconds"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Errors          []Entry `json:"errors"`
	Warnings        []Entry `json:"warnings"`
}

// Aggregator collects typed errors and warnings across one batch. LOW and
// MEDIUM severities are recorded as warnings, HIGH and CRITICAL as errors.
type Aggregator struct {
	mu        sync.Mutex
	start     time.Time
	processed int
	errors    []Entry
	warnings  []Entry
	critical  bool
}

// NewAggregator creates an empty aggregator; the batch clock starts now.
func NewAggregator() *Aggregator {
	return &Aggregator{start: time.Now().UTC()}
}

// Add records err under the given context, routed by severity.
func (a *Aggregator) Add(context string, err error) {
	if err == nil {
		return
	}
	entry := Entry{
		Kind:     KindOf(err),
		Severity: SeverityOf(err).String(),
		Context:  context,
		Message:  err.Error(),
		Time:     time.Now().UTC(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if SeverityOf(err) >= SeverityHigh {
		a.errors = append(a.errors, entry)
		if SeverityOf(err) == SeverityCritical {
			a.critical = true
		}
	} else {
		a.warnings = append(a.warnings, entry)
	}
}

// AddError records err in the error buffer regardless of severity.
func (a *Aggregator) AddError(context string, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, Entry{
		Kind:     KindOf(err),
		Severity: SeverityOf(err).String(),
		Context:  context,
		Message:  err.Error(),
		Time:     time.Now().UTC(),
	})
	if SeverityOf(err) == SeverityCritical {
		a.critical = true
	}
}

// AddWarning records err in the warning buffer regardless of severity.
func (a *Aggregator) AddWarning(context string, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, Entry{
		Kind:     KindOf(err),
		Severity: SeverityOf(err).String(),
		Context:  context,
		Message:  err.Error(),
		Time:     time.Now().UTC(),
	})
}

// IncrementProcessed counts one processed unit of work.
func (a *Aggregator) IncrementProcessed() {
	a.mu.Lock()
	a.processed++
	a.mu.Unlock()
}

// HasCritical reports whether any recorded error was critical.
func (a *Aggregator) HasCritical() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.critical
}

// RaiseIfCritical returns a SyncError when any stored error is critical.
func (a *Aggregator) RaiseIfCritical() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.critical {
		return nil
	}
	for _, e := range a.errors {
		if e.Severity == SeverityCritical.String() {
			return New(e.Kind, fmt.Sprintf("critical error in batch: %s", e.Message), nil)
		}
	}
	return nil
}

// Summary snapshots the aggregate state. The batch clock stops at call time.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	end := time.Now().UTC()
	errorsCopy := make([]Entry, len(a.errors))
	copy(errorsCopy, a.errors)
	warningsCopy := make([]Entry, len(a.warnings))
	copy(warningsCopy, a.warnings)
	// Batch-level errors are recorded without a processed unit; the
	// success count never goes negative because of them.
	success := a.processed - len(a.errors)
	if success < 0 {
		success = 0
	}
	return Summary{
		Processed:       a.processed,
		ErrorCount:      len(a.errors),
		WarningCount:    len(a.warnings),
		SuccessCount:    success,
		DurationSeconds: end.Sub(a.start).Seconds(),
		Start:           a.start,
		End:             end,
		Errors:          errorsCopy,
		Warnings:        warningsCopy,
	}
}

// Reset clears all buffers and restarts the batch clock.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.start = time.Now().UTC()
	a.processed = 0
	a.errors = nil
	a.warnings = nil
	a.critical = false
}
