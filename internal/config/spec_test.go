package config_test

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/automerge"
	"opctl/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	Convey("Given a spec JSON that only sets job_type", t, func() {
		spec, err := config.Load(strings.NewReader(`{"job_type": "map"}`))

		Convey("it loads cleanly and fills in defaults", func() {
			So(err, ShouldBeNil)
			So(spec.JobType, ShouldEqual, "map")
			So(spec.MaxFailedJobCount, ShouldEqual, 10)
			So(spec.MemoryReserveQuantile, ShouldEqual, 0.95)
			So(spec.UnavailableChunkPolicy, ShouldEqual, config.PolicyWait)
			So(spec.AutoMergeMode(), ShouldEqual, automerge.Disabled)
		})
	})
}

func TestLoadOverridesAndPolicyParsing(t *testing.T) {
	Convey("Given a spec JSON overriding the unavailable chunk policy and auto-merge mode", t, func() {
		spec, err := config.Load(strings.NewReader(`{
			"job_type": "reduce",
			"unavailable_chunk_policy": "skip",
			"auto_merge_mode": "economy",
			"max_failed_job_count": 3
		}`))

		Convey("the overrides take effect", func() {
			So(err, ShouldBeNil)
			So(spec.UnavailableChunkPolicy, ShouldEqual, config.PolicySkip)
			So(spec.AutoMergeMode(), ShouldEqual, automerge.Economy)
			So(spec.MaxFailedJobCount, ShouldEqual, 3)
		})
	})

	Convey("Given an unrecognized unavailable_chunk_policy value", t, func() {
		_, err := config.Load(strings.NewReader(`{"unavailable_chunk_policy": "explode"}`))

		Convey("Load reports an error", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
