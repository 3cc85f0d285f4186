package money

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dalfonso89/currencylayer-bank/internal/currency"
)

// ErrUnknownRate is returned when no rate exists between two currencies.
var ErrUnknownRate = errors.New("unknown rate")

// ErrInvalidAmount is returned for amounts that are not decimal numbers.
var ErrInvalidAmount = errors.New("invalid amount")

// RateStore answers the multiplier that converts an amount of from into to.
type RateStore interface {
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New builds a Money value, normalising the currency code.
func New(amount decimal.Decimal, code string) (Money, error) {
	normalized, ok := currency.Normalize(code)
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", currency.ErrUnknownCurrency, code)
	}
	return Money{Amount: amount, Currency: normalized}, nil
}

// NewFromString parses amount and builds a Money value.
func NewFromString(amount, code string) (Money, error) {
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w %q: %v", ErrInvalidAmount, amount, err)
	}
	return New(parsed, code)
}

// Round rounds the amount to the currency's minor units.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(currency.MinorUnits(m.Currency)), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(currency.MinorUnits(m.Currency)) + " " + m.Currency
}

// Exchange converts m into the target currency using rates from store.
// Same-currency exchanges never reach the store.
func Exchange(ctx context.Context, store RateStore, m Money, to string) (Money, float64, error) {
	target, ok := currency.Normalize(to)
	if !ok {
		return Money{}, 0, fmt.Errorf("%w: %q", currency.ErrUnknownCurrency, to)
	}
	if target == m.Currency {
		return m, 1, nil
	}

	rate, err := store.GetRate(ctx, m.Currency, target)
	if err != nil {
		if errors.Is(err, ErrUnknownRate) {
			return Money{}, 0, err
		}
		return Money{}, 0, fmt.Errorf("exchange %s to %s: %w", m.Currency, target, err)
	}

	if math.IsInf(rate, 0) || math.IsNaN(rate) {
		return Money{}, 0, fmt.Errorf("%w: %s to %s is %v", ErrUnknownRate, m.Currency, target, rate)
	}

	converted := Money{Amount: m.Amount.Mul(decimal.NewFromFloat(rate)), Currency: target}
	return converted.Round(), rate, nil
}
