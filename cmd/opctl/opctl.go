// Command opctl drives a single operation controller instance from the
// command line: Prepare+Materialize a fresh run, inspect a checkpointed
// snapshot's status, or Abort/Revive against one (§6 "CLI/Config").
package main

import (
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"

	"opctl/cmd/opctl/internal/cmd"
)

var logCfg = gologger.LoggerConfig{
	Out: os.Stderr,
}

func app() *cli.Application {
	return &cli.Application{
		Name:    "opctl",
		Title:   "A standalone driver for one operation controller instance.",
		Context: logCfg.Use,
		Commands: []*subcommands.Command{
			cmd.CmdRun(),
			cmd.CmdStatus(),
			cmd.CmdAbort(),
			cmd.CmdRevive(),

			subcommands.CmdHelp,
		},
	}
}

func main() {
	os.Exit(subcommands.Run(app(), nil))
}
