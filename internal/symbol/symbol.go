// Package symbol handles equity ticker normalization and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// tickerRegex matches exchange tickers such as AAPL, BRK.B, RDS-A or
// listing-suffixed forms like VOD.LON.
var tickerRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

var ErrInvalidSymbol = errors.New("symbol: invalid ticker")

// Normalize trims and upper-cases a ticker. It does not validate.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Parse normalizes and validates a ticker.
func Parse(s string) (string, error) {
	sym := Normalize(s)
	if !tickerRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return sym, nil
}
