package cmd

import (
	"context"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"opctl/internal/controller"
	"opctl/internal/host"
)

// CmdAbort returns the "abort" subcommand: revive a checkpointed operation
// just far enough to abort it cleanly, then write the final snapshot.
func CmdAbort() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "abort -id OPERATION_ID -snapshot PATH [-reason REASON]",
		ShortDesc: "revive a snapshot and abort the operation",
		LongDesc: text.Doc(`
			Load a checkpointed snapshot, revive it against a fresh in-process
			controller, and abort it (§7 TransactionAborted), overwriting the
			snapshot with the post-abort state.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &abortRun{}
			r.Flags.StringVar(&r.id, "id", "", "Operation id")
			r.Flags.StringVar(&r.snapshotPath, "snapshot", "", "Path to the snapshot to revive and abort")
			r.Flags.StringVar(&r.reason, "reason", "aborted via opctl", "Abort reason recorded in the log")
			return r
		},
	}
}

type abortRun struct {
	subcommands.CommandRunBase
	id           string
	snapshotPath string
	reason       string
}

func (r *abortRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *abortRun) run(ctx context.Context) error {
	if r.id == "" {
		return errors.Reason("-id is required").Err()
	}
	if r.snapshotPath == "" {
		return errNoSnapshot
	}

	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		return errors.Annotate(err, "reading snapshot %s", r.snapshotPath).Err()
	}

	spec, err := loadSpec("")
	if err != nil {
		return err
	}
	deps := controller.Deps{
		Master:    host.NewFakeMaster(),
		Scheduler: host.NewFakeScheduler(0),
		Releaser:  host.NewFakeReleaser(),
	}
	op := controller.New(ctx, r.id, spec, deps)

	if _, err := op.Revive(ctx, data); err != nil {
		return errors.Annotate(err, "reviving operation %s for abort", r.id).Err()
	}
	if err := op.Abort(ctx, r.reason); err != nil {
		return errors.Annotate(err, "aborting operation %s", r.id).Err()
	}

	out, err := op.Checkpoint(ctx)
	if err != nil {
		return errors.Annotate(err, "checkpointing aborted operation %s", r.id).Err()
	}
	if err := os.WriteFile(r.snapshotPath, out, 0o644); err != nil {
		return errors.Annotate(err, "writing snapshot to %s", r.snapshotPath).Err()
	}

	logging.Infof(ctx, "operation %s: aborted (%s)", r.id, r.reason)
	return nil
}
