package domain

import "github.com/shopspring/decimal"

type DiscrepancyType string

const (
	DiscrepancyAmountMismatch    DiscrepancyType = "amount_mismatch"
	DiscrepancyExcessiveFee      DiscrepancyType = "excessive_fee"
	DiscrepancyMissingSettlement DiscrepancyType = "missing_settlement"
	DiscrepancyDuplicate         DiscrepancyType = "duplicate"
	DiscrepancyFXRateDeviation   DiscrepancyType = "fx_rate_deviation"
)

// DiscrepancyTypes lists every type in its fixed evaluation order. Summary
// maps include all of these even when the count is zero.
func DiscrepancyTypes() []DiscrepancyType {
	return []DiscrepancyType{
		DiscrepancyMissingSettlement,
		DiscrepancyDuplicate,
		DiscrepancyAmountMismatch,
		DiscrepancyExcessiveFee,
		DiscrepancyFXRateDeviation,
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// Discrepancy is a detected divergence between an expected transaction and
// what the processor settled. Produced only by a reconciliation run,
// immutable, and owned by that run via DetectedInRunID. ImpactUSD is null
// when no USD rate was available for the transaction currency — the
// mismatch is still a fact, the dollar magnitude just is not known.
type Discrepancy struct {
	ID              string              `json:"id"`
	Type            DiscrepancyType     `json:"type"`
	TransactionID   string              `json:"transaction_id"`
	ProcessorName   string              `json:"processor_name"`
	Severity        Severity            `json:"severity"`
	ExpectedAmount  decimal.Decimal     `json:"expected_amount"`
	ActualAmount    decimal.NullDecimal `json:"actual_amount"`
	ImpactUSD       decimal.NullDecimal `json:"impact_usd"`
	Currency        string              `json:"currency"`
	Description     string              `json:"description"`
	DetectedInRunID string              `json:"detected_in_run_id"`
}
