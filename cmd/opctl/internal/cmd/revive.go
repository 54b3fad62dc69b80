package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"opctl/internal/controller"
	"opctl/internal/host"
)

// CmdRevive returns the "revive" subcommand: load a checkpointed snapshot
// into a fresh controller instance and report whether it revived (§4.9
// Revive, §7 fail-on-job-restart).
func CmdRevive() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "revive -id OPERATION_ID -snapshot PATH [-snapshot-out PATH]",
		ShortDesc: "revive an operation from a checkpointed snapshot",
		LongDesc: text.Doc(`
			Load -snapshot into a fresh controller instance via Revive. If
			-snapshot-out is given, checkpoint the revived operation again and
			write the result there (a round-trip sanity check).
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &reviveRun{}
			r.Flags.StringVar(&r.id, "id", "", "Operation id")
			r.Flags.StringVar(&r.snapshotPath, "snapshot", "", "Path to the snapshot to revive from")
			r.Flags.StringVar(&r.snapshotOut, "snapshot-out", "", "Optional path to write the re-checkpointed snapshot to")
			return r
		},
	}
}

type reviveRun struct {
	subcommands.CommandRunBase
	id           string
	snapshotPath string
	snapshotOut  string
}

func (r *reviveRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *reviveRun) run(ctx context.Context) error {
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
		Scheduler: host.NewFakeScheduler(1),
		Releaser:  host.NewFakeReleaser(),
	}
	op := controller.New(ctx, r.id, spec, deps)

	revived, err := op.Revive(ctx, data)
	if err != nil {
		return errors.Annotate(err, "reviving operation %s", r.id).Err()
	}
	fmt.Printf("revived: %v\n", revived)

	if r.snapshotOut == "" {
		return nil
	}
	out, err := op.Checkpoint(ctx)
	if err != nil {
		return errors.Annotate(err, "checkpointing revived operation %s", r.id).Err()
	}
	if err := os.WriteFile(r.snapshotOut, out, 0o644); err != nil {
		return errors.Annotate(err, "writing snapshot to %s", r.snapshotOut).Err()
	}
	return nil
}
