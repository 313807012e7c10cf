package services

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorToDecimal converts an amount in centavos to the gateway's decimal
// value, e.g. 1990 -> 19.90.
func MinorToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// DecimalToMinor converts a gateway decimal value back to centavos. Values
// with sub-centavo precision are rejected rather than rounded.
func DecimalToMinor(value decimal.Decimal) (int64, error) {
	shifted := value.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", value.String())
	}
	return shifted.IntPart(), nil
}

// wireAmount renders minor units as a JSON number with two decimals.
func wireAmount(amount int64) json.Number {
	return json.Number(MinorToDecimal(amount).StringFixed(2))
}

func parseWireAmount(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", n, err)
	}
	return DecimalToMinor(d)
}
