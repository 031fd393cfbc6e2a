package recon

import (
	"github.com/shopspring/decimal"

	"github.com/fleximarket/reconciler/internal/domain"
)

// CurrencyImpact breaks discrepancy impact down by the original
// transaction currency.
type CurrencyImpact struct {
	Count     int             `json:"count"`
	ImpactUSD decimal.Decimal `json:"impact_usd"`
}

// Summary is the grouped view of one run's discrepancy set. Every
// enumerated key is present even when its count is zero, so consumers
// never need existence checks.
type Summary struct {
	TotalCount         int                             `json:"total_count"`
	ByType             map[domain.DiscrepancyType]int  `json:"by_type"`
	BySeverity         map[domain.Severity]int         `json:"by_severity"`
	ByProcessor        map[string]int                  `json:"by_processor"`
	ByCurrency         map[string]CurrencyImpact       `json:"by_currency"`
	TotalImpactUSD     decimal.Decimal                 `json:"total_impact_usd"`
	UnknownImpactCount int                             `json:"unknown_impact_count"`
}

// Aggregate builds a Summary from one run's discrepancies. processors is
// the run universe (every processor seen in the snapshot); each appears in
// ByProcessor even with zero discrepancies. Aggregation is
// order-independent and does not mutate the input.
//
// Null impacts are excluded from TotalImpactUSD and surfaced through
// UnknownImpactCount for diagnostics.
func Aggregate(discs []domain.Discrepancy, processors []string) Summary {
	s := Summary{
		ByType:         make(map[domain.DiscrepancyType]int, 5),
		BySeverity:     make(map[domain.Severity]int, 4),
		ByProcessor:    make(map[string]int, len(processors)),
		ByCurrency:     make(map[string]CurrencyImpact),
		TotalImpactUSD: decimal.Zero,
	}

	for _, t := range domain.DiscrepancyTypes() {
		s.ByType[t] = 0
	}
	for _, sev := range domain.Severities() {
		s.BySeverity[sev] = 0
	}
	for _, p := range processors {
		s.ByProcessor[p] = 0
	}

	for _, d := range discs {
		s.TotalCount++
		s.ByType[d.Type]++
		s.BySeverity[d.Severity]++
		s.ByProcessor[d.ProcessorName]++

		ci := s.ByCurrency[d.Currency]
		ci.Count++
		if d.ImpactUSD.Valid {
			impact := d.ImpactUSD.Decimal.Abs()
			ci.ImpactUSD = ci.ImpactUSD.Add(impact)
			s.TotalImpactUSD = s.TotalImpactUSD.Add(impact)
		} else {
			s.UnknownImpactCount++
		}
		s.ByCurrency[d.Currency] = ci
	}

	return s
}
