package currency

import (
	"errors"
	"strings"

	"golang.org/x/text/currency"
)

// ErrUnknownCurrency is returned when a code is not a recognised ISO 4217 currency.
var ErrUnknownCurrency = errors.New("unknown currency")

// Normalize returns the canonical upper-case code for s, or false when s does not
// denote a known currency.
func Normalize(code string) (string, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if len(trimmed) != 3 {
		return "", false
	}
	unit, err := currency.ParseISO(trimmed)
	if err != nil {
		return "", false
	}
	return unit.String(), true
}

// IsKnown reports whether code is a recognised currency.
func IsKnown(code string) bool {
	_, ok := Normalize(code)
	return ok
}

// MinorUnits returns the number of decimal places used when rounding amounts of code.
// Unknown currencies round to two places.
func MinorUnits(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}
