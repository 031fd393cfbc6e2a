package recon

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/domain"
	"github.com/fleximarket/reconciler/internal/fx"
)

// Candidate is a discrepancy before it gets a severity, an id, and a run
// id. Rules emit candidates; the engine finalises them.
type Candidate struct {
	Type           domain.DiscrepancyType
	TransactionID  string
	ProcessorName  string
	Currency       string
	ExpectedAmount decimal.Decimal
	ActualAmount   decimal.NullDecimal
	ImpactUSD      decimal.NullDecimal
	// RelativeMagnitude carries the relative deviation (a fraction) for
	// types classified by percentage rather than absolute USD impact.
	RelativeMagnitude decimal.NullDecimal
	Description       string
}

// Rule inspects one expected transaction and its primary settlement entry
// (nil when none matched) and emits zero or more candidates. Rules are
// pure: thresholds come from the per-run config, conversion from the
// per-run FX table, and nothing is mutated.
type Rule interface {
	Type() domain.DiscrepancyType
	Evaluate(txn domain.ExpectedTransaction, entry *domain.SettlementEntry, cfg config.Config, conv *fx.Converter) []Candidate
}

// RuleEngine evaluates a static, ordered rule list. The order is fixed so
// the output sequence is auditable: missing_settlement, duplicate (from
// the match outcome, not a rule), amount_mismatch, excessive_fee,
// fx_rate_deviation.
type RuleEngine struct {
	rules []Rule
}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{
		rules: []Rule{
			missingSettlementRule{},
			amountMismatchRule{},
			excessiveFeeRule{},
			fxRateDeviationRule{},
		},
	}
}

// Evaluate runs every rule exactly once against the transaction and its
// settlement entries. Duplicate candidates are emitted for every entry
// beyond the first, in insertion order, without suppressing the
// amount/fee/FX checks on the first entry.
func (re *RuleEngine) Evaluate(txn domain.ExpectedTransaction, entries []domain.SettlementEntry, cfg config.Config, conv *fx.Converter) []Candidate {
	var primary *domain.SettlementEntry
	if len(entries) > 0 {
		primary = &entries[0]
	}

	var out []Candidate
	for i, rule := range re.rules {
		out = append(out, rule.Evaluate(txn, primary, cfg, conv)...)
		if i == 0 && len(entries) > 1 {
			out = append(out, duplicateCandidates(txn, entries[1:], conv)...)
		}
	}
	return out
}

// usdImpact converts an impact amount to USD, degrading to null when the
// currency has no supplied rate. The discrepancy still fires either way.
func usdImpact(conv *fx.Converter, amount decimal.Decimal, currency string) decimal.NullDecimal {
	usd, err := conv.ToUSD(amount, currency)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: usd, Valid: true}
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// --- missing_settlement ---

type missingSettlementRule struct{}

func (missingSettlementRule) Type() domain.DiscrepancyType { return domain.DiscrepancyMissingSettlement }

func (missingSettlementRule) Evaluate(txn domain.ExpectedTransaction, entry *domain.SettlementEntry, _ config.Config, conv *fx.Converter) []Candidate {
	if entry != nil {
		return nil
	}
	return []Candidate{{
		Type:           domain.DiscrepancyMissingSettlement,
		TransactionID:  txn.TransactionID,
		ProcessorName:  txn.ProcessorName,
		Currency:       txn.Currency,
		ExpectedAmount: txn.Amount,
		ImpactUSD:      usdImpact(conv, txn.Amount, txn.Currency),
		Description: fmt.Sprintf("no settlement entry found for %s: expected %s %s from %s",
			txn.TransactionID, txn.Amount, txn.Currency, txn.ProcessorName),
	}}
}

// --- amount_mismatch ---

type amountMismatchRule struct{}

func (amountMismatchRule) Type() domain.DiscrepancyType { return domain.DiscrepancyAmountMismatch }

func (amountMismatchRule) Evaluate(txn domain.ExpectedTransaction, entry *domain.SettlementEntry, cfg config.Config, conv *fx.Converter) []Candidate {
	if entry == nil {
		return nil
	}

	diff := txn.Amount.Sub(entry.NetAmount).Abs()

	// A difference exactly at the tolerance is not a discrepancy.
	tolerance := cfg.AmountTolerance
	if cfg.ToleranceMode == config.TolerancePercent {
		tolerance = txn.Amount.Abs().Mul(cfg.AmountTolerancePct)
	}
	if diff.Cmp(tolerance) <= 0 {
		return nil
	}

	return []Candidate{{
		Type:           domain.DiscrepancyAmountMismatch,
		TransactionID:  txn.TransactionID,
		ProcessorName:  txn.ProcessorName,
		Currency:       txn.Currency,
		ExpectedAmount: txn.Amount,
		ActualAmount:   nullDecimal(entry.NetAmount),
		ImpactUSD:      usdImpact(conv, diff, txn.Currency),
		Description: fmt.Sprintf("net amount mismatch for %s: expected %s vs settled %s (%s), diff %s",
			txn.TransactionID, txn.Amount, entry.NetAmount, txn.Currency, diff),
	}}
}

// --- excessive_fee ---

type excessiveFeeRule struct{}

func (excessiveFeeRule) Type() domain.DiscrepancyType { return domain.DiscrepancyExcessiveFee }

func (excessiveFeeRule) Evaluate(txn domain.ExpectedTransaction, entry *domain.SettlementEntry, cfg config.Config, conv *fx.Converter) []Candidate {
	if entry == nil {
		return nil
	}

	expectedFee := txn.Amount.Mul(txn.ExpectedFeeRate)
	actualFee := entry.ActualFee()

	limit := expectedFee.Mul(decimal.NewFromInt(1).Add(cfg.FeeTolerancePct))
	if actualFee.Cmp(limit) <= 0 {
		return nil
	}

	excess := actualFee.Sub(expectedFee)
	return []Candidate{{
		Type:           domain.DiscrepancyExcessiveFee,
		TransactionID:  txn.TransactionID,
		ProcessorName:  txn.ProcessorName,
		Currency:       txn.Currency,
		ExpectedAmount: expectedFee,
		ActualAmount:   nullDecimal(actualFee),
		ImpactUSD:      usdImpact(conv, excess, txn.Currency),
		Description: fmt.Sprintf("excessive fee for %s: expected %s vs charged %s (%s), excess %s",
			txn.TransactionID, expectedFee, actualFee, txn.Currency, excess),
	}}
}

// --- fx_rate_deviation ---

type fxRateDeviationRule struct{}

func (fxRateDeviationRule) Type() domain.DiscrepancyType { return domain.DiscrepancyFXRateDeviation }

func (fxRateDeviationRule) Evaluate(txn domain.ExpectedTransaction, entry *domain.SettlementEntry, cfg config.Config, conv *fx.Converter) []Candidate {
	// Only cross-currency transactions carry an expected rate.
	if entry == nil || !txn.ExpectedFXRate.Valid || !entry.FXRate.Valid {
		return nil
	}
	expected := txn.ExpectedFXRate.Decimal
	if expected.IsZero() {
		return nil
	}

	actual := entry.FXRate.Decimal
	deviation := actual.Sub(expected).Abs().Div(expected)
	if deviation.Cmp(cfg.FXTolerancePct) <= 0 {
		return nil
	}

	// Impact: the rate gap applied to the transaction notional.
	notionalImpact := actual.Sub(expected).Abs().Mul(txn.Amount)
	return []Candidate{{
		Type:              domain.DiscrepancyFXRateDeviation,
		TransactionID:     txn.TransactionID,
		ProcessorName:     txn.ProcessorName,
		Currency:          txn.Currency,
		ExpectedAmount:    expected,
		ActualAmount:      nullDecimal(actual),
		ImpactUSD:         usdImpact(conv, notionalImpact, txn.Currency),
		RelativeMagnitude: nullDecimal(deviation),
		Description: fmt.Sprintf("fx rate deviation for %s: expected %s vs settled %s (%s%% off)",
			txn.TransactionID, expected, actual,
			deviation.Mul(decimal.NewFromInt(100)).Round(2)),
	}}
}

// --- duplicate (emitted from the match outcome) ---

// duplicateCandidates produces one candidate per extra settlement entry,
// entries beyond the first, in insertion order. The extra entry's net
// amount is the potential double payout, hence the impact.
func duplicateCandidates(txn domain.ExpectedTransaction, extras []domain.SettlementEntry, conv *fx.Converter) []Candidate {
	out := make([]Candidate, 0, len(extras))
	for _, e := range extras {
		out = append(out, Candidate{
			Type:           domain.DiscrepancyDuplicate,
			TransactionID:  txn.TransactionID,
			ProcessorName:  e.ProcessorName,
			Currency:       e.Currency,
			ExpectedAmount: txn.Amount,
			ActualAmount:   nullDecimal(e.NetAmount),
			ImpactUSD:      usdImpact(conv, e.NetAmount, e.Currency),
			Description: fmt.Sprintf("duplicate settlement entry %s for %s: net %s %s",
				e.ID, txn.TransactionID, e.NetAmount, e.Currency),
		})
	}
	return out
}
