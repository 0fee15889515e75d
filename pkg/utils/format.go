// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the given ISO currency, e.g. "$12,345.60"
// or "-€40.00". Unknown codes fall back to "12345.60 XYZ".
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = money.USD
	}
	c := money.GetCurrency(code)
	if c == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// FormatPnL formats a P&L amount with an explicit sign.
func FormatPnL(pnl decimal.Decimal, currency string) string {
	formatted := FormatMoney(pnl, currency)
	if pnl.Round(2).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.Round(2).IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatLots formats a lot size to two places.
func FormatLots(lot decimal.Decimal) string {
	return lot.StringFixed(2)
}

// FormatPrice trims trailing zeros but keeps at least two places.
func FormatPrice(price decimal.Decimal) string {
	s := price.String()
	if i := strings.IndexByte(s, '.'); i < 0 || len(s)-i-1 < 2 {
		return price.StringFixed(2)
	}
	return s
}

// FormatRatio formats a reward-to-risk ratio as "1:2.50".
func FormatRatio(r decimal.NullDecimal) string {
	if !r.Valid {
		return "-"
	}
	return fmt.Sprintf("1:%s", r.Decimal.StringFixed(2))
}
