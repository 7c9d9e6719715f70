package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMode_Engine(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeOllama, "ollama"},
		{ModeProxy, "openai"},
		{ModeVLLM, "vllm"},
		{ModeLlamaCpp, "llama.cpp"},
		{"LLAMACPP", "llama.cpp"},
		{"", "ollama"},
		{"tpu", "ollama"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.Engine())
		})
	}
}

func TestPriceTable_Models(t *testing.T) {
	table := PriceTable{
		"qwen":   {Model: "qwen"},
		"llama3": {Model: "llama3"},
		"Zeta":   {Model: "Zeta"},
	}
	assert.Equal(t, []string{"Zeta", "llama3", "qwen"}, table.Models())
	assert.Empty(t, PriceTable{}.Models())
}

func TestNewIncomeEvent_Currency(t *testing.T) {
	e := NewIncomeEvent(SourceLegacy, dec("1"), "")
	assert.Equal(t, "¥", e.Currency)
	assert.EqualValues(t, "CNY", e.CurrencyCode)

	e = NewIncomeEvent(SourceFreeText, dec("1"), "usd")
	assert.Equal(t, "usd", e.Currency)
	assert.EqualValues(t, "USD", e.CurrencyCode)

	e = NewIncomeEvent(SourceFreeText, dec("1"), "BTC")
	assert.Empty(t, e.CurrencyCode)
}
