// Command simulator runs the paper trading simulator.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var envFile = flag.String("env", ".env", "dotenv file to seed the environment from; missing files are ignored")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&execCmd{}, "")
	commander.Register(&migrateCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
