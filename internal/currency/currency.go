// Package currency normalises the currency tokens workers put on the wire.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Code is an ISO-4217 style identifier. The code, not the symbol, is identity.
type Code string

const (
	CNY Code = "CNY"
	USD Code = "USD"
)

// Currency is reference metadata for display and comparison.
type Currency struct {
	code     Code
	symbol   string
	name     string
	decimals int32
}

// New creates a Currency.
func New(code Code, symbol, name string, decimals int32) *Currency {
	if code == "" {
		panic("currency: empty code")
	}
	return &Currency{code: code, symbol: symbol, name: name, decimals: decimals}
}

// Code returns the identifier.
func (c *Currency) Code() Code { return c.code }

// Symbol returns the display symbol (e.g. "¥").
func (c *Currency) Symbol() string { return c.symbol }

// Name returns the human-readable name, falling back to the code.
func (c *Currency) Name() string {
	if c.name == "" {
		return string(c.code)
	}
	return c.name
}

// Decimals returns the minor-unit precision used for display.
func (c *Currency) Decimals() int32 { return c.decimals }

// Format renders amount with the currency symbol at display precision.
// Amounts smaller than one minor unit keep six places so sub-cent
// earnings stay visible.
func (c *Currency) Format(amount decimal.Decimal) string {
	places := c.decimals
	minor := decimal.New(1, -c.decimals)
	if !amount.IsZero() && amount.Abs().LessThan(minor) {
		places = 6
	}
	return amount.StringFixed(places) + " " + c.symbol
}

// Equals compares by code.
func (c *Currency) Equals(other *Currency) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.code == other.code
}

func (c *Currency) String() string { return string(c.code) }

// normalizeToken trims and upper-cases a token for alias lookup.
func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
