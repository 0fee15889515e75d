package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownPairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		mult   int64
		vp     string
	}{
		{"EUR/USD", 100000, "10"},
		{"GBP/USD", 100000, "10"},
		{"USD/JPY", 1000, "6.8"},
		{"USD/CAD", 100000, "7.3"},
		{"AUD/USD", 100000, "10"},
		{"USD/CHF", 100000, "12.4"},
		{"XAU/USD", 100, "10"},
		{"XAG/USD", 100, "10"},
		{"GBP/JPY", 1000, "6.8"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.symbol, func(t *testing.T) {
			t.Parallel()
			inst, ok := Lookup(tt.symbol)
			require.True(t, ok)
			assert.Equal(t, tt.mult, inst.Multiplier)
			assert.True(t, inst.BaseValuePerPip.Equal(decimal.RequireFromString(tt.vp)), "vp=%s", inst.BaseValuePerPip)
			assert.True(t, inst.Sizable())
		})
	}
}

func TestLookupUnknownReturnsZero(t *testing.T) {
	inst, ok := Lookup("BTC/USD")
	assert.False(t, ok)
	assert.Equal(t, Instrument{}, inst)
	assert.False(t, inst.Sizable())
}

func TestCrossWithoutValuePerPipIsNotSizable(t *testing.T) {
	inst, ok := Lookup("EUR/GBP")
	require.True(t, ok)
	assert.True(t, inst.BaseValuePerPip.IsZero())
	assert.False(t, inst.Sizable())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "EUR/USD", Normalize(" eur_usd "))
	assert.Equal(t, "USD/JPY", Normalize("usdjpy"))
	assert.Equal(t, "XAU/USD", Normalize("xau-usd"))

	_, ok := Lookup("eurusd")
	assert.True(t, ok)
}

func TestSymbolsIsACopy(t *testing.T) {
	s := Symbols()
	s[0] = "mutated"
	assert.Equal(t, "EUR/USD", Symbols()[0])
}
