package progress_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/progress"
)

func TestDigestQuantiles(t *testing.T) {
	Convey("Given a digest with no samples", t, func() {
		d := progress.NewDigest()

		Convey("Quantile returns the fallback", func() {
			So(d.Quantile(0.95, 1.5), ShouldEqual, 1.5)
		})
	})

	Convey("Given a digest fed an increasing series of ratios", t, func() {
		d := progress.NewDigest()
		for _, r := range []int64{1, 2, 3, 4, 5} {
			d.AddSample(r, 10)
		}

		Convey("P99 never decreases as more samples arrive", func() {
			So(d.P99NeverDecreases(6, 10), ShouldBeTrue)
			So(d.P99NeverDecreases(1, 10), ShouldBeTrue)
		})

		Convey("a reserved<=0 sample is ignored", func() {
			before := d.Quantile(0.5, 0)
			d.AddSample(100, 0)
			So(d.Quantile(0.5, 0), ShouldEqual, before)
		})
	})
}

func TestHistogramTotals(t *testing.T) {
	Convey("Given a fresh histogram", t, func() {
		h := progress.NewHistogram()
		h.OnJobStart(100)
		h.OnJobStart(200)
		h.OnJobCompleted(90)

		Convey("estimated and actual totals accumulate independently", func() {
			So(h.EstimatedTotal(), ShouldEqual, 300)
			So(h.ActualTotal(), ShouldEqual, 90)
			So(h.Started(), ShouldEqual, 2)
			So(h.Completed(), ShouldEqual, 1)
		})
	})
}

func TestAlertBoardSetClear(t *testing.T) {
	Convey("Given an empty alert board", t, func() {
		b := progress.NewAlertBoard()
		now := time.Unix(0, 0)

		Convey("Set adds a visible alert", func() {
			b.Set("foo", progress.SeverityWarning, map[string]any{"x": 1}, now)
			snap := b.Snapshot()
			So(snap, ShouldHaveLength, 1)
			So(snap[0].Name, ShouldEqual, "foo")
			So(snap[0].Severity, ShouldEqual, progress.SeverityWarning)
		})

		Convey("Clear removes it", func() {
			b.Set("foo", progress.SeverityWarning, map[string]any{"x": 1}, now)
			b.Clear("foo")
			So(b.Snapshot(), ShouldBeEmpty)
		})

		Convey("Set with nil attrs clears instead of adding", func() {
			b.Set("foo", progress.SeverityInfo, nil, now)
			So(b.Snapshot(), ShouldBeEmpty)
		})
	})
}

func TestRunAnalyzers(t *testing.T) {
	Convey("Given job and operation stats crossing several thresholds", t, func() {
		b := progress.NewAlertBoard()
		now := time.Unix(1000, 0)
		jobs := []progress.JobStats{
			{JobType: "map", TmpfsUsedBytes: 10, TmpfsSizeBytes: 100, CPUTimeRatio: 0.1, IOOpsPerSecond: 5000, Duration: time.Second},
			{JobType: "reduce", TmpfsUsedBytes: 90, TmpfsSizeBytes: 100, CPUTimeRatio: 0.9, IOOpsPerSecond: 10, Duration: 10 * time.Minute},
		}
		op := progress.OperationStats{
			UnavailableChunkCount: 3,
			LostIntermediateCount: 1,
			TotalJobTime:          100 * time.Second,
			AbortedJobTime:        50 * time.Second,
			CompletedJobCount:     10,
			PendingJobCount:       5,
			SchedulingThrottled:   true,
			ElapsedSinceStart:     100 * time.Second,
		}
		th := progress.Thresholds{
			TmpfsUnderuseRatio: 0.5,
			LowCPURatio:        0.5,
			WoodpeckerIOPS:     1000,
			AbortedTimeRatio:   0.3,
			ShortJobDuration:   time.Minute,
		}

		progress.RunAnalyzers(b, jobs, op, th, now)

		Convey("every tripped analyzer raises its named alert", func() {
			names := map[string]bool{}
			for _, a := range b.Snapshot() {
				names[a.Name] = true
			}
			So(names["tmpfs_underuse"], ShouldBeTrue)
			So(names["unavailable_chunks"], ShouldBeTrue)
			So(names["lost_intermediate_chunks"], ShouldBeTrue)
			So(names["high_aborted_job_ratio"], ShouldBeTrue)
			So(names["disk_io_woodpeckers"], ShouldBeTrue)
			So(names["low_cpu_usage"], ShouldBeTrue)
			So(names["schedule_job_throttling"], ShouldBeTrue)
			So(names["estimated_operation_duration"], ShouldBeTrue)
		})
	})
}
