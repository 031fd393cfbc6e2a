// Package fx converts local-currency amounts to USD using a supplied
// reference rate table. Conversion is exact decimal arithmetic for the
// given rate; only the final USD figure is rounded, half-up, to cents.
package fx

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownCurrency is returned when the rate table has no entry for a
// currency. Callers in the rule engine degrade to a null USD impact
// instead of failing the run.
var ErrUnknownCurrency = errors.New("unknown currency")

// Converter holds an immutable snapshot of FX-to-USD rates for one run.
type Converter struct {
	ratesToUSD map[string]decimal.Decimal
}

// NewConverter copies the supplied table so later changes to the source map
// cannot affect a run in flight.
func NewConverter(ratesToUSD map[string]decimal.Decimal) *Converter {
	rates := make(map[string]decimal.Decimal, len(ratesToUSD))
	for code, rate := range ratesToUSD {
		rates[code] = rate
	}
	return &Converter{ratesToUSD: rates}
}

// Rate returns the USD value of one unit of the given currency.
func (c *Converter) Rate(currency string) (decimal.Decimal, error) {
	rate, ok := c.ratesToUSD[currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return rate, nil
}

// ToUSD converts a local-currency amount to USD, rounded half-up to 2
// decimal places.
func (c *Converter) ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := c.Rate(currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate).Round(2), nil
}
