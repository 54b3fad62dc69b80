package cmd

import (
	"context"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"opctl/internal/config"
	"opctl/internal/controller"
	"opctl/internal/host"
)

// CmdRun returns the "run" subcommand: Prepare and Materialize a fresh
// operation against in-memory fakes and write its first checkpoint.
func CmdRun() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "run -id OPERATION_ID -snapshot-out PATH [-config PATH] [-exec-nodes N]",
		ShortDesc: "prepare and materialize an operation, then checkpoint it",
		LongDesc: text.Doc(`
			Run a single operation end to end against an in-process fake Master
			and Scheduler: Prepare, Materialize with no tasks, and write the
			resulting snapshot to -snapshot-out.

			This exercises the controller lifecycle without a live cluster; it
			is the local smoke-test entry point, not a production scheduler
			integration.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &runRun{}
			r.Flags.StringVar(&r.id, "id", "", "Operation id")
			r.Flags.StringVar(&r.snapshotOut, "snapshot-out", "", "Path to write the checkpoint snapshot to")
			r.Flags.StringVar(&r.configPath, "config", "", "Path to a JSON OperationSpec; defaults applied if omitted")
			r.Flags.IntVar(&r.execNodes, "exec-nodes", 1, "Fake exec node count reported by the fake scheduler")
			r.logLevel = logging.Info
			r.Flags.Var(&r.logLevel, "loglevel", `Log level: "debug", "info", "warning", "error"`)
			return r
		},
	}
}

type runRun struct {
	subcommands.CommandRunBase
	id          string
	snapshotOut string
	configPath  string
	execNodes   int
	logLevel    logging.Level
}

func (r *runRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	ctx = logging.SetLevel(ctx, r.logLevel)
	return errToCode(a, r.run(ctx))
}

func (r *runRun) run(ctx context.Context) error {
	if r.id == "" {
		return errors.Reason("-id is required").Err()
	}
	if r.snapshotOut == "" {
		return errors.Reason("-snapshot-out is required").Err()
	}

	spec, err := loadSpec(r.configPath)
	if err != nil {
		return err
	}

	master := host.NewFakeMaster()
	deps := controller.Deps{
		Master:             master,
		Scheduler:          host.NewFakeScheduler(r.execNodes),
		Releaser:           host.NewFakeReleaser(),
		ChunkListWatermark: 4,
		ChunkListBatch:     16,
		ChunkListCheckK:    1,
	}

	op := controller.New(ctx, r.id, spec, deps)
	if err := op.Prepare(ctx, nil, nil, nil); err != nil {
		return errors.Annotate(err, "preparing operation %s", r.id).Err()
	}
	if err := op.Materialize(ctx, nil); err != nil {
		return errors.Annotate(err, "materializing operation %s", r.id).Err()
	}

	data, err := op.Checkpoint(ctx)
	if err != nil {
		return errors.Annotate(err, "checkpointing operation %s", r.id).Err()
	}
	if err := os.WriteFile(r.snapshotOut, data, 0o644); err != nil {
		return errors.Annotate(err, "writing snapshot to %s", r.snapshotOut).Err()
	}

	logging.Infof(ctx, "operation %s: running, snapshot written to %s", r.id, r.snapshotOut)
	return nil
}

// loadSpec reads an OperationSpec from path, or returns config.Default()
// when path is empty.
func loadSpec(path string) (config.OperationSpec, error) {
	if path == "" {
		return config.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config.OperationSpec{}, errors.Annotate(err, "opening config %s", path).Err()
	}
	defer f.Close()
	return config.Load(f)
}
