package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"opctl/internal/snapshot"
)

// CmdStatus returns the "status" subcommand: render a checkpointed
// snapshot's persisted counters (§6 "status subcommand renders them with
// go-humanize").
func CmdStatus() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "status -snapshot PATH",
		ShortDesc: "print a checkpointed operation's persisted state",
		LongDesc: text.Doc(`
			Read a snapshot written by "run", "abort", or "revive" and print a
			human-readable summary of its completed-job count, pending release
			queue lengths, and output table entry counts.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &statusRun{}
			r.Flags.StringVar(&r.snapshotPath, "snapshot", "", "Path to a snapshot written by a prior run/abort/revive")
			return r
		},
	}
}

type statusRun struct {
	subcommands.CommandRunBase
	snapshotPath string
}

func (r *statusRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *statusRun) run(ctx context.Context) error {
	if r.snapshotPath == "" {
		return errNoSnapshot
	}
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		return errors.Annotate(err, "reading snapshot %s", r.snapshotPath).Err()
	}
	state, err := snapshot.Unmarshal(data)
	if err != nil {
		return errors.Annotate(err, "parsing snapshot %s", r.snapshotPath).Err()
	}

	var totalEntries int
	for _, t := range state.OutputTables {
		totalEntries += len(t.Entries)
	}

	fmt.Printf("snapshot version:       %d\n", state.Version)
	fmt.Printf("completed jobs:         %s\n", humanize.Comma(int64(state.CompletedJobCount)))
	fmt.Printf("pending released jobs:  %s\n", humanize.Comma(int64(len(state.CompletedJobIDs))))
	fmt.Printf("pending unstaged chunks:%s\n", humanize.Comma(int64(len(state.ChunkTrees))))
	fmt.Printf("archived job specs:     %s\n", humanize.Comma(int64(len(state.JobSpecArchive))))
	fmt.Printf("output tables:          %d\n", len(state.OutputTables))
	fmt.Printf("committed output chunks:%s\n", humanize.Comma(int64(totalEntries)))
	return nil
}
