package bot

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// moneyFormatter renders decimal amounts in one currency using go-money's
// grapheme, separators and fraction digits.
type moneyFormatter struct {
	cur *money.Currency
}

func newMoneyFormatter(code string) moneyFormatter {
	cur := money.GetCurrency(code)
	if cur == nil {
		cur = money.GetCurrency(money.USD)
	}
	return moneyFormatter{cur: cur}
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Format rounds amount to the currency's minor unit. Amounts whose minor
// units do not fit an int64 are printed without separators.
func (m moneyFormatter) Format(amount decimal.Decimal) string {
	minor := amount.Shift(int32(m.cur.Fraction)).Round(0)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		fixed := amount.Abs().StringFixed(int32(m.cur.Fraction))
		if amount.IsNegative() {
			return "-" + m.cur.Grapheme + fixed
		}
		return m.cur.Grapheme + fixed
	}
	return m.cur.Formatter().Format(minor.IntPart())
}

// Signed prefixes positive amounts with "+".
func (m moneyFormatter) Signed(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return "+" + m.Format(amount)
	}
	return m.Format(amount)
}

func percent(p decimal.Decimal) string {
	return p.StringFixed(2) + "%"
}

func signedPercent(p decimal.Decimal) string {
	if p.IsPositive() {
		return "+" + percent(p)
	}
	return percent(p)
}

// quantity prints shares without trailing zeros: 10, 5.5.
func quantity(q decimal.Decimal) string {
	return q.String()
}

var (
	trillion = decimal.New(1, 12)
	billion  = decimal.New(1, 9)
	million  = decimal.New(1, 6)
)

// marketCap abbreviates a raw capitalization string as $2.85T, $850.00B
// or $12.30M. Values it cannot parse are returned unchanged.
func (m moneyFormatter) marketCap(raw string) string {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	g := m.cur.Grapheme
	switch {
	case v.GreaterThanOrEqual(trillion):
		return g + v.Div(trillion).StringFixed(2) + "T"
	case v.GreaterThanOrEqual(billion):
		return g + v.Div(billion).StringFixed(2) + "B"
	case v.GreaterThanOrEqual(million):
		return g + v.Div(million).StringFixed(2) + "M"
	}
	return m.Format(v)
}

// truncate shortens s to at most max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}

// orNA replaces the empty and "None" placeholders Alpha Vantage uses for
// missing fields.
func orNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "-" {
		return "N/A"
	}
	return s
}

// groupDigits renders n with comma thousands separators.
func groupDigits(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := decimal.NewFromInt(n).String()
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
