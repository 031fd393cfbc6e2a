package recon

import (
	"github.com/shopspring/decimal"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/domain"
)

// ClassifySeverity maps a candidate's magnitude to a severity bracket.
//
// fx_rate_deviation is classified by its relative deviation regardless of
// absolute amount; every other type by absolute USD impact. Brackets are
// inclusive lower bounds checked from critical down, so a magnitude
// sitting exactly on a boundary takes the higher severity. Classification
// is monotonic: a larger magnitude never yields a lower severity under the
// same thresholds.
//
// A null impact (unknown FX rate for the currency) cannot place the
// discrepancy in a USD bracket and classifies as low.
func ClassifySeverity(c Candidate, th config.SeverityThresholds) domain.Severity {
	if c.Type == domain.DiscrepancyFXRateDeviation && c.RelativeMagnitude.Valid {
		return bracket(c.RelativeMagnitude.Decimal.Abs(), th.FXCriticalPct, th.FXHighPct, th.FXMediumPct)
	}
	if !c.ImpactUSD.Valid {
		return domain.SeverityLow
	}
	return bracket(c.ImpactUSD.Decimal.Abs(), th.CriticalUSD, th.HighUSD, th.MediumUSD)
}

func bracket(magnitude, critical, high, medium decimal.Decimal) domain.Severity {
	switch {
	case magnitude.Cmp(critical) >= 0:
		return domain.SeverityCritical
	case magnitude.Cmp(high) >= 0:
		return domain.SeverityHigh
	case magnitude.Cmp(medium) >= 0:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
