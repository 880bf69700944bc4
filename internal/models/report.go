package models

import "time"

// ReportStatus is the outcome of one poll cycle.
type ReportStatus string

const (
	ReportSuccess ReportStatus = "success"
	ReportDryRun  ReportStatus = "dry_run"
	ReportError   ReportStatus = "error"
)

// PollOptions configures a single poll cycle.
type PollOptions struct {
	LookbackMinutes     int               `json:"lookbackMinutes,omitempty"`
	BatchSize           int               `json:"batchSize,omitempty"`
	MaxPages            int               `json:"maxPages,omitempty"`
	DryRun              bool              `json:"dryRun,omitempty"`
	IncludeTestOrders   bool              `json:"includeTestOrders,omitempty"`
	FinancialStatuses   []FinancialStatus `json:"financialStatuses,omitempty"`
	FulfillmentStatuses []string          `json:"fulfillmentStatuses,omitempty"`
}

// PollStatistics is the per-cycle tally included in a report.
type PollStatistics struct {
	TotalPolled   int     `json:"totalPolled"`
	AlreadySynced int     `json:"alreadySynced"`
	NewlySynced   int     `json:"newlySynced"`
	Updated       int     `json:"updated"`
	SyncErrors    int     `json:"syncErrors"`
	SuccessRate   float64 `json:"successRate"` // percent, 2 decimals
}

// PollReport is returned by every poll cycle. A cycle never raises; failures
// surface through Status and Error.
type PollReport struct {
	Status          ReportStatus           `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
	DurationSeconds float64                `json:"durationSeconds"`
	Message         string                 `json:"message"`
	Statistics      PollStatistics         `json:"statistics"`
	NewOrderIDs     []string               `json:"newOrderIds,omitempty"` // dry run only
	Error           string                 `json:"error,omitempty"`
	SyncDetails     map[string]interface{} `json:"syncDetails,omitempty"`
}
