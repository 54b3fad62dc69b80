// Package cmd implements the opctl subcommands: run, status, abort, revive.
package cmd

import (
	"fmt"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/errors"
)

// logApplicationError prints err to the application's error stream, the
// same place subcommands.Run's own usage errors go.
func logApplicationError(a subcommands.Application, err error) {
	fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
}

func errToCode(a subcommands.Application, err error) int {
	if err != nil {
		logApplicationError(a, err)
		return 1
	}
	return 0
}

var errNoSnapshot = errors.Reason("-snapshot is required").Err()
