// Package domain contains the core domain types for the income context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/starfire-income/internal/currency"
)

// SourceFormat records which payload shape an event was parsed from. It
// decides how the ledger applies the event.
type SourceFormat string

const (
	// SourceStructured events carry an authoritative running total.
	SourceStructured SourceFormat = "structured"
	// SourceLegacy events are JSON {"type":"income"} deltas.
	SourceLegacy SourceFormat = "legacy"
	// SourceFreeText events were pattern-matched out of a log line.
	SourceFreeText SourceFormat = "freetext"
)

// IsAuthoritative reports whether events of this format overwrite the total.
func (f SourceFormat) IsAuthoritative() bool {
	return f == SourceStructured
}

// DefaultCurrency is assumed when a payload names none.
const DefaultCurrency = "¥"

// Usage is the token accounting a worker attaches to structured events.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// IncomeEvent is one normalized earnings report.
type IncomeEvent struct {
	Amount       decimal.Decimal
	Currency     string        // token as sent, e.g. "¥" or "USD"
	CurrencyCode currency.Code // normalized; empty if unknown
	TotalIncome  decimal.NullDecimal
	Model        string
	Usage        *Usage
	Message      string
	SourceFormat SourceFormat
	ReceivedAt   time.Time
}

// NewIncomeEvent builds an event, defaulting the currency and filling in
// the normalized code.
func NewIncomeEvent(format SourceFormat, amount decimal.Decimal, currencyToken string) IncomeEvent {
	if currencyToken == "" {
		currencyToken = DefaultCurrency
	}
	return IncomeEvent{
		Amount:       amount,
		Currency:     currencyToken,
		CurrencyCode: currency.Normalize(currencyToken),
		SourceFormat: format,
		ReceivedAt:   time.Now(),
	}
}

// WithTotal sets the authoritative running total.
func (e IncomeEvent) WithTotal(total decimal.Decimal) IncomeEvent {
	e.TotalIncome = decimal.NewNullDecimal(total)
	return e
}
