package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and reporting decisions. Every error
// crossing a module boundary is reclassified into one of these kinds.
type Kind string

const (
	KindRateLimited         Kind = "RATE_LIMITED"
	KindTransientAPI        Kind = "TRANSIENT_API"
	KindPermanentAPI        Kind = "PERMANENT_API"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindConnectionLost      Kind = "CONNECTION_LOST"
	KindQueryTimeout        Kind = "QUERY_TIMEOUT"
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"
	KindValidation          Kind = "VALIDATION"
	KindSkuUnresolved       Kind = "SKU_UNRESOLVED"
	KindCircuitOpen         Kind = "CIRCUIT_OPEN"
	KindOperationTimeout    Kind = "OPERATION_TIMEOUT"
	KindUnknown             Kind = "UNKNOWN"
)

// Severity drives where an error lands in the aggregator: LOW/MEDIUM become
// warnings, HIGH/CRITICAL become errors.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// SyncError is the typed error used across the sync pipeline.
type SyncError struct {
	Kind       Kind
	Severity   Severity
	Retryable  bool
	RetryAfter time.Duration // rate-limit hint, zero when absent
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// New creates a SyncError with the defaults for its kind.
func New(kind Kind, message string, cause error) *SyncError {
	e := &SyncError{Kind: kind, Message: message, Err: cause}
	switch kind {
	case KindRateLimited:
		e.Severity, e.Retryable = SeverityLow, true
	case KindTransientAPI:
		e.Severity, e.Retryable = SeverityMedium, true
	case KindPermanentAPI:
		e.Severity, e.Retryable = SeverityHigh, false
	case KindUnauthorized:
		e.Severity, e.Retryable = SeverityCritical, false
	case KindConnectionLost:
		e.Severity, e.Retryable = SeverityCritical, true
	case KindQueryTimeout:
		e.Severity, e.Retryable = SeverityHigh, true
	case KindConstraintViolation:
		e.Severity, e.Retryable = SeverityMedium, false
	case KindValidation:
		e.Severity, e.Retryable = SeverityMedium, false
	case KindSkuUnresolved:
		e.Severity, e.Retryable = SeverityLow, false
	case KindCircuitOpen:
		e.Severity, e.Retryable = SeverityHigh, false
	case KindOperationTimeout:
		e.Severity, e.Retryable = SeverityHigh, true
	case KindUnknown:
		e.Severity, e.Retryable = SeverityHigh, false
	default:
		e.Severity, e.Retryable = SeverityMedium, false
	}
	return e
}

// RateLimited creates a rate-limit error carrying the server's retry hint.
func RateLimited(retryAfter time.Duration, cause error) *SyncError {
	e := New(KindRateLimited, "rate limited by remote service", cause)
	e.RetryAfter = retryAfter
	return e
}

// Validation creates a non-retryable validation error.
func Validation(format string, args ...interface{}) *SyncError {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

// KindOf extracts the Kind from err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// SeverityOf extracts the Severity from err. Untyped errors rank HIGH so
// they land in the error buffer rather than being downgraded silently.
func SeverityOf(err error) Severity {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Severity
	}
	return SeverityHigh
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// RetryAfterOf returns the rate-limit hint attached to err, if any.
func RetryAfterOf(err error) time.Duration {
	var se *SyncError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
