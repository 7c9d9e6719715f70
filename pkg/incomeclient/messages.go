package incomeclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Format selects the wire shape of an income report.
type Format string

const (
	// FormatStructured sends total_income; the server takes it as authoritative.
	FormatStructured Format = "structured"
	// FormatLegacy sends {"type":"income"} with a delta amount.
	FormatLegacy Format = "legacy"
	// FormatText sends a human-readable log line.
	FormatText Format = "text"
)

// Usage mirrors the token accounting in structured reports.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Income is one earnings report.
type Income struct {
	Format      Format
	Amount      decimal.Decimal
	TotalIncome decimal.Decimal // structured only
	Currency    string
	Model       string
	Usage       *Usage
	Message     string
}

type structuredWire struct {
	Amount      string `json:"amount"`
	TotalIncome string `json:"total_income"`
	Currency    string `json:"currency,omitempty"`
	Model       string `json:"model,omitempty"`
	Usage       *Usage `json:"usage,omitempty"`
}

type legacyWire struct {
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Encode renders the report as a frame payload.
func (in Income) Encode() ([]byte, error) {
	switch in.Format {
	case FormatStructured, "":
		return json.Marshal(structuredWire{
			Amount:      in.Amount.String(),
			TotalIncome: in.TotalIncome.String(),
			Currency:    in.Currency,
			Model:       in.Model,
			Usage:       in.Usage,
		})
	case FormatLegacy:
		return json.Marshal(legacyWire{
			Type:     "income",
			Amount:   in.Amount.String(),
			Currency: in.Currency,
			Message:  in.Message,
		})
	case FormatText:
		cur := in.Currency
		if cur == "" {
			cur = "¥"
		}
		line := fmt.Sprintf("收益: %s %s", in.Amount.String(), cur)
		if in.Message != "" {
			line = in.Message + " " + line
		}
		return []byte(line), nil
	default:
		return nil, fmt.Errorf("unknown income format %q", in.Format)
	}
}

// Price accepts a JSON string or number and keeps the decimal text.
type Price string

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Price(d.String())
	return nil
}

// Decimal parses the price.
func (p Price) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(string(p))
}

// ModelPrice is one entry of a price config.
type ModelPrice struct {
	Model  string `json:"model"`
	Engine string `json:"engine"`
	IPPM   Price  `json:"ippm"`
	OPPM   Price  `json:"oppm"`
}

// PriceConfig is the server's price sync message.
type PriceConfig struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Data      []ModelPrice `json:"data"`
}

// Lookup returns the price for model, falling back to the "*" entry.
func (pc *PriceConfig) Lookup(model string) (ModelPrice, bool) {
	var wildcard *ModelPrice
	for i := range pc.Data {
		switch pc.Data[i].Model {
		case model:
			return pc.Data[i], true
		case "*":
			wildcard = &pc.Data[i]
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return ModelPrice{}, false
}

// DecodePriceConfig parses payload, rejecting anything that is not a
// model_prices message.
func DecodePriceConfig(payload []byte) (*PriceConfig, error) {
	var pc PriceConfig
	if err := json.Unmarshal(payload, &pc); err != nil {
		return nil, err
	}
	if pc.Type != "model_prices" {
		return nil, fmt.Errorf("unexpected message type %q", pc.Type)
	}
	return &pc, nil
}
