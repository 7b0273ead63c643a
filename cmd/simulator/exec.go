package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/bot"
	"github.com/papertrade/simulator/internal/model"
)

type execCmd struct {
	user      string
	username  string
	firstName string
}

func (*execCmd) Name() string     { return "exec" }
func (*execCmd) Synopsis() string { return "run chat commands from stdin and print the replies" }
func (*execCmd) Usage() string {
	return `simulator exec [-user <id>] [-username <name>] [-first <name>]

  Reads one command per line from stdin, for example "/buy AAPL 10",
  and prints each reply. Uses the configured store, so trades persist
  when DATABASE_URL is set.
`
}

func (c *execCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "local", "User id to trade as.")
	f.StringVar(&c.username, "username", "", "Username recorded on the account.")
	f.StringVar(&c.firstName, "first", "", "First name recorded on the account.")
}

func (c *execCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer logger.Sync()

	if cfg.AlphaVantageKey == "" {
		logger.Warn("ALPHA_VANTAGE_API_KEY not set, market data commands will fail")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer a.Close()

	profile := model.Profile{UserID: c.user, Username: c.username, FirstName: c.firstName}
	if err := runLines(ctx, a.router, profile, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// runLines feeds every non-blank line of in to the router as one message.
func runLines(ctx context.Context, r *bot.Router, user model.Profile, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply := r.Handle(ctx, bot.Request{User: user, Text: line})
		if _, err := fmt.Fprintf(out, "%s\n\n", reply); err != nil {
			return err
		}
	}
	return sc.Err()
}
