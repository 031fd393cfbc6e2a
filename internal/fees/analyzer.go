// Package fees learns fee patterns from historical settlement data and
// flags entries whose fee percentage deviates significantly from the norm
// for their processor+currency combination.
package fees

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fleximarket/reconciler/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Stats describe the observed fee percentage for one processor+currency.
type Stats struct {
	AvgFeePct   float64 `json:"avg_fee_pct"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

// UnusualFee is a settlement entry whose fee percentage sits further from
// the group mean than the deviation threshold allows.
type UnusualFee struct {
	TransactionID  string  `json:"transaction_id"`
	Processor      string  `json:"processor"`
	Currency       string  `json:"currency"`
	ActualFeePct   float64 `json:"actual_fee_pct"`
	AvgFeePct      float64 `json:"avg_fee_pct"`
	StdDev         float64 `json:"std_dev"`
	DeviationScore float64 `json:"deviation_score"`
}

// Report bundles patterns and anomalies for the API.
type Report struct {
	FeePatterns      map[string]map[string]Stats `json:"fee_patterns"`
	UnusualFees      []UnusualFee                `json:"unusual_fees"`
	ThresholdStdDevs float64                     `json:"threshold_std_devs"`
}

type Analyzer struct {
	logger zerolog.Logger
}

func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With().Str("component", "fees").Logger()}
}

// Patterns computes the mean and sample standard deviation of the fee
// percentage per processor+currency. Entries without a positive gross
// amount are skipped: a fee percentage is undefined for them.
func (a *Analyzer) Patterns(entries []domain.SettlementEntry) map[string]map[string]Stats {
	type key struct{ processor, currency string }
	grouped := make(map[key][]float64)

	for _, e := range entries {
		if e.GrossAmount.Sign() <= 0 || e.ProcessorName == "" || e.Currency == "" {
			continue
		}
		feePct, _ := e.ActualFee().Div(e.GrossAmount).Mul(hundred).Float64()
		k := key{e.ProcessorName, e.Currency}
		grouped[k] = append(grouped[k], feePct)
	}

	result := make(map[string]map[string]Stats, len(grouped))
	for k, pcts := range grouped {
		n := len(pcts)
		var sum float64
		for _, p := range pcts {
			sum += p
		}
		avg := sum / float64(n)

		stdDev := 0.0
		if n >= 2 {
			var variance float64
			for _, p := range pcts {
				variance += (p - avg) * (p - avg)
			}
			stdDev = math.Sqrt(variance / float64(n-1))
		}

		if result[k.processor] == nil {
			result[k.processor] = make(map[string]Stats)
		}
		result[k.processor][k.currency] = Stats{
			AvgFeePct:   round4(avg),
			StdDev:      round4(stdDev),
			SampleCount: n,
		}
	}

	a.logger.Info().
		Int("groups", len(grouped)).
		Int("entries", len(entries)).
		Msg("computed fee patterns")
	return result
}

// UnusualFees flags entries whose fee percentage is more than threshold
// standard deviations from their group mean. Groups with zero spread are
// skipped — no deviation score exists without one.
func (a *Analyzer) UnusualFees(entries []domain.SettlementEntry, threshold float64) []UnusualFee {
	patterns := a.Patterns(entries)
	if len(patterns) == 0 {
		return nil
	}

	var unusual []UnusualFee
	for _, e := range entries {
		if e.GrossAmount.Sign() <= 0 || e.ProcessorName == "" || e.Currency == "" {
			continue
		}
		stats, ok := patterns[e.ProcessorName][e.Currency]
		if !ok || stats.StdDev == 0 {
			continue
		}

		actualFeePct, _ := e.ActualFee().Div(e.GrossAmount).Mul(hundred).Float64()
		score := math.Abs(actualFeePct-stats.AvgFeePct) / stats.StdDev
		if score > threshold {
			unusual = append(unusual, UnusualFee{
				TransactionID:  e.TransactionID,
				Processor:      e.ProcessorName,
				Currency:       e.Currency,
				ActualFeePct:   round4(actualFeePct),
				AvgFeePct:      stats.AvgFeePct,
				StdDev:         stats.StdDev,
				DeviationScore: round4(score),
			})
		}
	}

	sort.Slice(unusual, func(i, j int) bool {
		return unusual[i].DeviationScore > unusual[j].DeviationScore
	})

	a.logger.Info().
		Int("anomalies", len(unusual)).
		Int("entries", len(entries)).
		Float64("threshold_std_devs", threshold).
		Msg("unusual fee detection complete")
	return unusual
}

// GetReport returns patterns plus anomalies in one payload.
func (a *Analyzer) GetReport(entries []domain.SettlementEntry, threshold float64) Report {
	return Report{
		FeePatterns:      a.Patterns(entries),
		UnusualFees:      a.UnusualFees(entries, threshold),
		ThresholdStdDevs: threshold,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
