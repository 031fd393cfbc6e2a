package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReportStatus string

const (
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// ReconciliationReport summarises one reconciliation run. One report per
// run; it owns its discrepancy set through the run id.
type ReconciliationReport struct {
	ID                 string          `json:"id"`
	DateRangeStart     time.Time       `json:"date_range_start"`
	DateRangeEnd       time.Time       `json:"date_range_end"`
	Status             ReportStatus    `json:"status"`
	TotalTransactions  int             `json:"total_transactions"`
	MatchedCount       int             `json:"matched_count"`
	DiscrepancyCount   int             `json:"discrepancy_count"`
	MissingCount       int             `json:"missing_count"`
	TotalImpactUSD     decimal.Decimal `json:"total_impact_usd"`
	UnknownImpactCount int             `json:"unknown_impact_count"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}
