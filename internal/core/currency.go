package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateSource resolves an exchange rate expressed as currency units per USD.
// Receipt amounts arrive in vnd, usd or eur and are stored in USD, so
// conversion lives server-side behind this interface rather than being
// sprinkled through handlers.
type RateSource interface {
	UnitsPerUSD(currency string) (decimal.Decimal, error)
}

// FixedRates is a static RateSource seeded from configuration.
type FixedRates struct {
	rates map[string]decimal.Decimal
}

func NewFixedRates(vndPerUSD, eurPerUSD float64) *FixedRates {
	return &FixedRates{rates: map[string]decimal.Decimal{
		CurrencyUSD: decimal.NewFromInt(1),
		CurrencyVND: decimal.NewFromFloat(vndPerUSD),
		CurrencyEUR: decimal.NewFromFloat(eurPerUSD),
	}}
}

func (f *FixedRates) UnitsPerUSD(currency string) (decimal.Decimal, error) {
	rate, ok := f.rates[currency]
	if !ok || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("no exchange rate for currency %q", currency)
	}
	return rate, nil
}

// ConvertToUSD converts an amount in the given currency to USD, rounded to
// cents.
func ConvertToUSD(rates RateSource, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if !ValidCurrency(currency) {
		return decimal.Zero, ErrInvalidCurrency
	}
	rate, err := rates.UnitsPerUSD(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate).Round(2), nil
}
