package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/bot"
	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/store"
)

func TestRunLines(t *testing.T) {
	l := ledger.NewService(store.NewMemoryStore(), decimal.NewFromInt(5000), nil, nil)
	r := bot.NewRouter(l, nil, bot.Options{}, nil)

	in := strings.NewReader("/start\n\n   \n/balance\n/nope\n")
	var out bytes.Buffer
	if err := runLines(context.Background(), r, model.Profile{UserID: "cli"}, in, &out); err != nil {
		t.Fatalf("runLines: %v", err)
	}

	replies := strings.Split(strings.TrimSpace(out.String()), "\n\n")
	got := out.String()
	if !strings.Contains(got, "$5,000.00") {
		t.Errorf("output missing balance:\n%s", got)
	}
	if !strings.Contains(got, "Unknown command") {
		t.Errorf("output missing unknown command reply:\n%s", got)
	}
	if len(replies) < 3 {
		t.Errorf("got %d reply blocks, want at least 3", len(replies))
	}
}
