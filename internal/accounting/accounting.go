// Package accounting implements weighted-average cost basis, realized and
// unrealized profit/loss, and portfolio valuation.
//
// Every function is pure: holdings and prices are passed in, new values
// are returned, nothing is stored. All amounts use shopspring/decimal.
package accounting

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
)

var (
	// ErrNonPositiveQuantity is returned when a trade quantity is <= 0.
	ErrNonPositiveQuantity = errors.New("accounting: quantity must be positive")

	// ErrNonPositivePrice is returned when a trade price is <= 0.
	ErrNonPositivePrice = errors.New("accounting: price must be positive")

	// ErrQuantityOutOfRange is returned when a trade quantity has more than
	// MaxQuantityDigits integer digits or more than MaxQuantityDecimals
	// decimal places.
	ErrQuantityOutOfRange = errors.New("accounting: quantity out of range")

	// ErrOversell is returned when a sell exceeds the held quantity.
	ErrOversell = errors.New("accounting: sell quantity exceeds holding")

	hundred = decimal.NewFromInt(100)
)

// Trade quantity limits.
const (
	MaxQuantityDigits   = 12
	MaxQuantityDecimals = 8
)

// QuantityInRange reports whether q fits the trade quantity limits. Only
// the coefficient length and exponent are inspected, so an absurd
// exponent is rejected without ever being rescaled.
func QuantityInRange(q decimal.Decimal) bool {
	exp := int64(q.Exponent())
	if exp < -MaxQuantityDecimals {
		return false
	}
	return int64(q.NumDigits())+exp <= MaxQuantityDigits
}

// ValidateTrade checks the preconditions shared by buys and sells.
func ValidateTrade(qty, price decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNonPositiveQuantity
	}
	if !QuantityInRange(qty) {
		return ErrQuantityOutOfRange
	}
	if !price.IsPositive() {
		return ErrNonPositivePrice
	}
	return nil
}

// ApplyBuy blends a purchase into a holding. A nil holding opens a new
// position at the purchase price; otherwise quantity and total invested
// grow and the average cost becomes totalInvested / quantity.
func ApplyBuy(h *model.Holding, qty, price decimal.Decimal) (model.Holding, error) {
	if err := ValidateTrade(qty, price); err != nil {
		return model.Holding{}, err
	}
	cost := qty.Mul(price)

	if h == nil {
		return model.Holding{
			Quantity:      qty,
			AvgCost:       price,
			TotalInvested: cost,
		}, nil
	}

	next := *h
	next.Quantity = h.Quantity.Add(qty)
	next.TotalInvested = h.TotalInvested.Add(cost)
	next.AvgCost = next.TotalInvested.Div(next.Quantity)
	return next, nil
}

// ApplySell removes qty shares from a holding. It reports closed == true
// when the sale exhausts the position exactly. On a partial sale the
// average cost is unchanged and total invested is recomputed from the
// remaining quantity so that TotalInvested == Quantity * AvgCost holds.
func ApplySell(h model.Holding, qty decimal.Decimal) (remaining model.Holding, closed bool, err error) {
	if !qty.IsPositive() {
		return h, false, ErrNonPositiveQuantity
	}
	if !QuantityInRange(qty) {
		return h, false, ErrQuantityOutOfRange
	}
	if h.Quantity.LessThan(qty) {
		return h, false, ErrOversell
	}
	if h.Quantity.Equal(qty) {
		return model.Holding{}, true, nil
	}

	remaining = h
	remaining.Quantity = h.Quantity.Sub(qty)
	remaining.TotalInvested = remaining.Quantity.Mul(h.AvgCost)
	return remaining, false, nil
}

// RealizedPL returns (price - avgCost) * qty.
func RealizedPL(avgCost, price, qty decimal.Decimal) decimal.Decimal {
	return price.Sub(avgCost).Mul(qty)
}

// Percent returns part / whole * 100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// WinRate returns the share of profitable trades as a percentage.
func WinRate(totalTrades, profitableTrades int64) decimal.Decimal {
	return Percent(decimal.NewFromInt(profitableTrades), decimal.NewFromInt(totalTrades))
}

// Value marks holdings to the given prices. Holdings whose symbol is
// missing from prices are reported in Unpriced and left out of every
// total; they are not valued at zero. Positions are ordered by symbol.
func Value(holdings []model.Holding, prices map[string]decimal.Decimal) model.Portfolio {
	var p model.Portfolio
	p.HoldingCount = len(holdings)

	for _, h := range holdings {
		price, ok := prices[h.Symbol]
		if !ok {
			p.Unpriced = append(p.Unpriced, h.Symbol)
			continue
		}

		value := h.Quantity.Mul(price)
		pnl := value.Sub(h.TotalInvested)

		p.Positions = append(p.Positions, model.Position{
			Holding:              h,
			CurrentPrice:         price,
			CurrentValue:         value,
			UnrealizedPnL:        pnl,
			UnrealizedPnLPercent: Percent(pnl, h.TotalInvested),
		})
		p.TotalValue = p.TotalValue.Add(value)
		p.TotalInvested = p.TotalInvested.Add(h.TotalInvested)
	}

	sort.Slice(p.Positions, func(i, j int) bool {
		return p.Positions[i].Symbol < p.Positions[j].Symbol
	})
	sort.Strings(p.Unpriced)

	p.TotalUnrealizedPnL = p.TotalValue.Sub(p.TotalInvested)
	p.TotalUnrealizedPercent = Percent(p.TotalUnrealizedPnL, p.TotalInvested)
	return p
}
