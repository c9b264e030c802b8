// Package money holds currency helpers. All amounts in the system are
// fixed-point with two decimal places, rounded half-up at the cent.
package money

import "github.com/shopspring/decimal"

// Round rounds an amount to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ItemTotal returns quantity × unit price, rounded at the cent.
func ItemTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Parse parses a decimal amount string, e.g. "12.50".
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// Zero is the zero amount.
var Zero = decimal.Zero
