package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for prices.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero, which is half-up for the non-negative
// amounts the store accepts.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatMoney renders an amount with exactly MoneyPlaces decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
