// Package money formats amounts for Brazilian Real presentation.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopspring/decimal"
)

var lang = language.BrazilianPortuguese

// FormatBRL renders an amount as "R$1.234,50"; negatives as "-R$1.234,50".
func FormatBRL(amount decimal.Decimal) string {
	p := message.NewPrinter(lang)
	rounded := amount.Round(2)
	if rounded.IsNegative() {
		return p.Sprintf("-R$%.2f", rounded.Neg().InexactFloat64())
	}
	return p.Sprintf("R$%.2f", rounded.InexactFloat64())
}

// FormatPercent renders a fraction as a percentage: 0.05 is "5%", 0.125 is
// "12,5%".
func FormatPercent(fraction decimal.Decimal) string {
	p := message.NewPrinter(lang)
	pct := fraction.Mul(decimal.NewFromInt(100)).Round(2)
	if pct.IsInteger() {
		return p.Sprintf("%d%%", pct.IntPart())
	}
	return p.Sprintf("%.1f%%", pct.InexactFloat64())
}

// FormatCount renders an integer with thousands separators: "12.345".
func FormatCount(n int) string {
	return message.NewPrinter(lang).Sprintf("%d", n)
}
