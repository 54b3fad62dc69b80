package opctllog_test

import (
	"bytes"
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"go.chromium.org/luci/common/logging"

	"opctl/internal/opctllog"
)

func TestUseInstallsLevelAndLogger(t *testing.T) {
	Convey("Given a configured context", t, func() {
		var buf bytes.Buffer
		ctx := opctllog.Use(context.Background(), opctllog.Config{Out: &buf, Level: logging.Warning})

		Convey("the configured level is active", func() {
			So(logging.GetLevel(ctx), ShouldEqual, logging.Warning)
		})

		Convey("logging below the configured level produces no output", func() {
			logging.Infof(ctx, "should be suppressed")
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("logging at or above the configured level writes output", func() {
			logging.Warningf(ctx, "visible")
			So(buf.Len(), ShouldBeGreaterThan, 0)
		})
	})
}

func TestWithOperationIDTagsContext(t *testing.T) {
	Convey("Given a context tagged with an operation id", t, func() {
		ctx := opctllog.WithOperationID(context.Background(), "op-123")

		Convey("the operation id is retrievable from its logging fields", func() {
			fields := logging.GetFields(ctx)
			So(fields["operation_id"], ShouldEqual, "op-123")
		})
	})
}
