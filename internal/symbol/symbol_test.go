package symbol

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := map[string]string{
		"aapl":     "AAPL",
		" msft ":   "MSFT",
		"brk.b":    "BRK.B",
		"RDS-A":    "RDS-A",
		"vod.lon":  "VOD.LON",
		"0700.HKG": "0700.HKG",
	}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "$AAPL", "AA PL", ".AAPL", "ABCDEFGHIJKLMNOPQ"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("Parse(%q): expected ErrInvalidSymbol, got %v", in, err)
		}
	}
}
