// Package opctllog wires the controller's logging onto
// go.chromium.org/luci/common/logging, the same stack used for
// CLI-facing tools elsewhere in this module.
package opctllog

import (
	"context"
	"io"

	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"
)

// Config configures the root logger: where output goes and at what level.
type Config struct {
	Out   io.Writer
	Level logging.Level
}

// Use installs a configured logger into ctx, returning the derived context
// every controller component should log through.
func Use(ctx context.Context, cfg Config) context.Context {
	lc := gologger.LoggerConfig{Out: cfg.Out}
	ctx = lc.Use(ctx)
	return logging.SetLevel(ctx, cfg.Level)
}

// WithOperationID annotates ctx so every subsequent log line carries the
// operation id, mirroring §5's "logged with operation id" requirement.
func WithOperationID(ctx context.Context, id string) context.Context {
	return logging.SetFields(ctx, logging.Fields{"operation_id": id})
}
