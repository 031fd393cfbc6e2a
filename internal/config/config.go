package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// ToleranceMode selects how the amount tolerance is interpreted. A
// deployment picks exactly one; the two are never combined.
type ToleranceMode string

const (
	ToleranceAbsolute ToleranceMode = "absolute"
	TolerancePercent  ToleranceMode = "percent"
)

// SeverityThresholds define the severity brackets. The USD thresholds are
// inclusive lower bounds checked top-down (impact >= CriticalUSD is
// critical, and so on); the FX thresholds bracket the relative rate
// deviation the same way.
type SeverityThresholds struct {
	CriticalUSD decimal.Decimal `json:"critical_usd"`
	HighUSD     decimal.Decimal `json:"high_usd"`
	MediumUSD   decimal.Decimal `json:"medium_usd"`

	FXCriticalPct decimal.Decimal `json:"fx_critical_pct"`
	FXHighPct     decimal.Decimal `json:"fx_high_pct"`
	FXMediumPct   decimal.Decimal `json:"fx_medium_pct"`
}

// Config carries everything a reconciliation run reads at start: detection
// tolerances, severity brackets, and the FX-to-USD reference table. It is
// passed into the engine explicitly so concurrent runs can use different
// thresholds and tests can inject arbitrary sets.
//
// Percentage tolerances are fractions: 0.05 means 5%.
type Config struct {
	ToleranceMode      ToleranceMode   `json:"tolerance_mode"`
	AmountTolerance    decimal.Decimal `json:"amount_tolerance"`
	AmountTolerancePct decimal.Decimal `json:"amount_tolerance_pct"`
	FeeTolerancePct    decimal.Decimal `json:"fee_tolerance_pct"`
	FXTolerancePct     decimal.Decimal `json:"fx_tolerance_pct"`

	Severity SeverityThresholds `json:"severity"`

	// FXRatesToUSD maps a currency code to the USD value of one unit of
	// that currency. Supplied, not fetched; used only for impact_usd.
	FXRatesToUSD map[string]decimal.Decimal `json:"fx_rates_to_usd"`

	// FeeStdDevThreshold is the number of standard deviations beyond which
	// the fee analyzer flags an entry as unusual.
	FeeStdDevThreshold float64 `json:"fee_std_dev_threshold"`
}

// Default returns the configuration used when no environment overrides are
// present. Reference FX rates are approximate mid-market rates for the
// LatAm corridors the platform operates in; they estimate USD impact and
// are not authoritative for accounting.
func Default() Config {
	return Config{
		ToleranceMode:      ToleranceAbsolute,
		AmountTolerance:    decimal.RequireFromString("0.01"),
		AmountTolerancePct: decimal.RequireFromString("0.0001"),
		FeeTolerancePct:    decimal.RequireFromString("0.005"),
		FXTolerancePct:     decimal.RequireFromString("0.02"),
		Severity: SeverityThresholds{
			CriticalUSD:   decimal.NewFromInt(1000),
			HighUSD:       decimal.NewFromInt(100),
			MediumUSD:     decimal.NewFromInt(10),
			FXCriticalPct: decimal.RequireFromString("0.20"),
			FXHighPct:     decimal.RequireFromString("0.10"),
			FXMediumPct:   decimal.RequireFromString("0.05"),
		},
		FXRatesToUSD: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"BRL": decimal.RequireFromString("0.20"),
			"MXN": decimal.RequireFromString("0.059"),
			"COP": decimal.RequireFromString("0.00025"),
			"CLP": decimal.RequireFromString("0.0011"),
		},
		FeeStdDevThreshold: 2.0,
	}
}

// Load builds a Config from defaults plus environment overrides. It is
// cheap and re-readable, so callers load a fresh Config per run and
// reconfiguration needs no process restart.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("TOLERANCE_MODE"); v == string(TolerancePercent) {
		cfg.ToleranceMode = TolerancePercent
	}
	cfg.AmountTolerance = envDecimal("AMOUNT_TOLERANCE", cfg.AmountTolerance)
	cfg.AmountTolerancePct = envDecimal("AMOUNT_TOLERANCE_PCT", cfg.AmountTolerancePct)
	cfg.FeeTolerancePct = envDecimal("FEE_TOLERANCE_PCT", cfg.FeeTolerancePct)
	cfg.FXTolerancePct = envDecimal("FX_TOLERANCE_PCT", cfg.FXTolerancePct)

	cfg.Severity.CriticalUSD = envDecimal("SEVERITY_CRITICAL_USD", cfg.Severity.CriticalUSD)
	cfg.Severity.HighUSD = envDecimal("SEVERITY_HIGH_USD", cfg.Severity.HighUSD)
	cfg.Severity.MediumUSD = envDecimal("SEVERITY_MEDIUM_USD", cfg.Severity.MediumUSD)

	if v := os.Getenv("FEE_STDDEV_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.FeeStdDevThreshold = f
		}
	}

	return cfg
}

func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}
