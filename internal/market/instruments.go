// Package market holds the static instrument catalog.
package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument describes how price moves of a symbol convert to points and money.
type Instrument struct {
	Symbol          string
	Multiplier      int64
	BaseValuePerPip decimal.Decimal
}

// Sizable reports whether sizing can be computed for the instrument.
func (i Instrument) Sizable() bool {
	return i.Multiplier > 0 && i.BaseValuePerPip.IsPositive()
}

var symbols = []string{
	"EUR/USD",
	"GBP/USD",
	"USD/JPY",
	"USD/CAD",
	"AUD/USD",
	"USD/CHF",
	"XAU/USD",
	"NZD/USD",
	"EUR/JPY",
	"GBP/JPY",
	"AUD/JPY",
	"EUR/CHF",
	"GBP/CHF",
	"EUR/CAD",
	"XAG/USD",
	"XPT/USD",
	"EUR/GBP",
	"EUR/AUD",
	"GBP/AUD",
}

// base value-per-pip by quote currency, standard lot
var quoteValuePerPip = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(10),
	"JPY": decimal.RequireFromString("6.8"),
	"CAD": decimal.RequireFromString("7.3"),
	"CHF": decimal.RequireFromString("12.4"),
}

var catalog map[string]Instrument

func init() {
	catalog = make(map[string]Instrument, len(symbols))
	for _, s := range symbols {
		catalog[s] = Instrument{
			Symbol:          s,
			Multiplier:      MultiplierFor(s),
			BaseValuePerPip: BaseValuePerPipFor(s),
		}
	}
}

// Lookup returns the instrument for symbol. Unknown symbols return the zero
// Instrument and false.
func Lookup(symbol string) (Instrument, bool) {
	inst, ok := catalog[Normalize(symbol)]
	return inst, ok
}

// Symbols returns the catalog symbols in display order.
func Symbols() []string {
	out := make([]string, len(symbols))
	copy(out, symbols)
	return out
}

// MultiplierFor applies the suffix rules: /JPY is 1000, metals are 100,
// everything else 100000.
func MultiplierFor(symbol string) int64 {
	s := Normalize(symbol)
	switch {
	case strings.HasSuffix(s, "/JPY"):
		return 1000
	case strings.HasPrefix(s, "XAU"), strings.HasPrefix(s, "XAG"), strings.HasPrefix(s, "XPT"):
		return 100
	}
	return 100000
}

// BaseValuePerPipFor returns the standard-lot value-per-pip by quote
// currency, or zero when the quote currency has no entry.
func BaseValuePerPipFor(symbol string) decimal.Decimal {
	s := Normalize(symbol)
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return decimal.Zero
	}
	if vp, ok := quoteValuePerPip[s[i+1:]]; ok {
		return vp
	}
	return decimal.Zero
}

// Normalize upper-cases a symbol and accepts "_", "-" or no separator
// between the two legs.
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("_", "/", "-", "/", " ", "").Replace(s)
	if !strings.Contains(s, "/") && len(s) == 6 {
		s = s[:3] + "/" + s[3:]
	}
	return s
}
