package quote

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable matches every quote failure, whatever its kind.
	ErrUnavailable = errors.New("quote: unavailable")

	// ErrRateLimited means the upstream quota is exhausted. Retrying soon
	// will not help.
	ErrRateLimited = errors.New("quote: rate limit reached")

	// ErrNotFound means the symbol is unknown or the data set is empty.
	ErrNotFound = errors.New("quote: symbol not found")

	// ErrTransport covers network failures, timeouts and malformed
	// responses.
	ErrTransport = errors.New("quote: transport failure")
)

// UnavailableError is the error every Provider lookup fails with. Kind is
// one of ErrRateLimited, ErrNotFound or ErrTransport; errors.Is matches
// both Kind and ErrUnavailable.
type UnavailableError struct {
	Symbol string
	Kind   error
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Symbol)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Symbol, e.Err)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable || target == e.Kind
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// KindName returns a short label for metrics and logs.
func (e *UnavailableError) KindName() string {
	return kindName(e.Kind)
}

func kindName(kind error) string {
	switch kind {
	case ErrRateLimited:
		return "rate_limited"
	case ErrNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// classify maps a source error onto the quote taxonomy. Anything not
// explicitly marked as rate limiting or not-found is a transport failure.
func classify(symbol string, err error) *UnavailableError {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	kind := ErrTransport
	switch {
	case errors.Is(err, ErrRateLimited):
		kind = ErrRateLimited
	case errors.Is(err, ErrNotFound):
		kind = ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTransport
	}
	return &UnavailableError{Symbol: symbol, Kind: kind, Err: err}
}

// Intervals lists the series granularities a Source must accept.
var Intervals = []string{"daily", "1min", "5min", "15min", "30min", "60min"}

// ValidInterval reports whether s is one of Intervals.
func ValidInterval(s string) bool {
	for _, iv := range Intervals {
		if iv == s {
			return true
		}
	}
	return false
}
