package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		token string
		want  Code
	}{
		{"¥", CNY},
		{"元", CNY},
		{"CNY", CNY},
		{"cny", CNY},
		{" rmb ", CNY},
		{"$", USD},
		{"usd", USD},
		{"€", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.token))
		})
	}
}

func TestCurrency_Format(t *testing.T) {
	cny, ok := Default().Get(CNY)
	assert.True(t, ok)

	assert.Equal(t, "12.50 ¥", cny.Format(decimal.RequireFromString("12.5")))
	assert.Equal(t, "0.000420 ¥", cny.Format(decimal.RequireFromString("0.00042")))
	assert.Equal(t, "0.00 ¥", cny.Format(decimal.Zero))
}

func TestRegistry_DuplicateAliasPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(New("AAA", "#", "", 2))
	assert.Panics(t, func() { r.Register(New("BBB", "#", "", 2)) })
}
