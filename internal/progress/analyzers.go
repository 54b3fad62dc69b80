package progress

import "time"

// JobStats is the minimal per-job-type sample an analyzer needs; the
// controller assembles these from joblet/task bookkeeping before each
// analyzer tick rather than analyzers reaching into other packages
// directly, keeping C10 decoupled from C3/C5 (§4.10).
type JobStats struct {
	JobType        string
	TmpfsUsedBytes int64
	TmpfsSizeBytes int64
	CPUTimeRatio   float64 // CPU seconds / wall seconds, 0..~NumCores
	IOOpsPerSecond float64
	Duration       time.Duration
	Aborted        bool
}

// OperationStats is the operation-wide input to the remaining analyzers.
type OperationStats struct {
	UnavailableChunkCount  int
	LostIntermediateCount  int
	TotalJobTime           time.Duration
	AbortedJobTime         time.Duration
	CompletedJobCount      int
	PendingJobCount        int
	AverageJobDuration     time.Duration
	SchedulingThrottled    bool
	ElapsedSinceStart      time.Duration
}

// Thresholds configures the analyzers' trip points; zero values disable the
// corresponding check (fields are intentionally independent rather than one
// shared config struct with cross-references, matching each analyzer's own
// policy in the original system).
type Thresholds struct {
	TmpfsUnderuseRatio   float64       // alert if used/size below this
	LowCPURatio          float64       // alert if CPUTimeRatio below this
	WoodpeckerIOPS       float64       // alert if IOOpsPerSecond above this
	AbortedTimeRatio     float64       // alert if AbortedJobTime/TotalJobTime above this
	ShortJobDuration     time.Duration // a job shorter than this counts as "short"
}

// RunAnalyzers runs every periodic analyzer of §4.10 against the given
// snapshot and updates board accordingly. now is passed in rather than read
// from time.Now() so callers (and tests) control the clock.
func RunAnalyzers(board *AlertBoard, jobs []JobStats, op OperationStats, th Thresholds, now time.Time) {
	analyzeTmpfsUnderuse(board, jobs, th, now)
	analyzeUnavailableChunks(board, op, now)
	analyzeLostIntermediates(board, op, now)
	analyzeAbortedJobRatio(board, op, th, now)
	analyzeWoodpeckers(board, jobs, th, now)
	analyzeLowCPU(board, jobs, th, now)
	analyzeShortJobs(board, jobs, th, now)
	analyzeEstimatedDuration(board, op, now)
	analyzeSchedulingThrottle(board, op, now)
}

func analyzeTmpfsUnderuse(board *AlertBoard, jobs []JobStats, th Thresholds, now time.Time) {
	if th.TmpfsUnderuseRatio <= 0 {
		return
	}
	var underused []string
	for _, j := range jobs {
		if j.TmpfsSizeBytes == 0 {
			continue
		}
		ratio := float64(j.TmpfsUsedBytes) / float64(j.TmpfsSizeBytes)
		if ratio < th.TmpfsUnderuseRatio {
			underused = append(underused, j.JobType)
		}
	}
	if len(underused) == 0 {
		board.Clear("tmpfs_underuse")
		return
	}
	board.Set("tmpfs_underuse", SeverityInfo, map[string]any{"job_types": underused}, now)
}

func analyzeUnavailableChunks(board *AlertBoard, op OperationStats, now time.Time) {
	if op.UnavailableChunkCount == 0 {
		board.Clear("unavailable_chunks")
		return
	}
	board.Set("unavailable_chunks", SeverityWarning, map[string]any{"count": op.UnavailableChunkCount}, now)
}

func analyzeLostIntermediates(board *AlertBoard, op OperationStats, now time.Time) {
	if op.LostIntermediateCount == 0 {
		board.Clear("lost_intermediate_chunks")
		return
	}
	board.Set("lost_intermediate_chunks", SeverityWarning, map[string]any{"count": op.LostIntermediateCount}, now)
}

func analyzeAbortedJobRatio(board *AlertBoard, op OperationStats, th Thresholds, now time.Time) {
	if th.AbortedTimeRatio <= 0 || op.TotalJobTime == 0 {
		return
	}
	ratio := float64(op.AbortedJobTime) / float64(op.TotalJobTime)
	if ratio < th.AbortedTimeRatio {
		board.Clear("high_aborted_job_ratio")
		return
	}
	board.Set("high_aborted_job_ratio", SeverityWarning, map[string]any{"ratio": ratio}, now)
}

func analyzeWoodpeckers(board *AlertBoard, jobs []JobStats, th Thresholds, now time.Time) {
	if th.WoodpeckerIOPS <= 0 {
		return
	}
	var culprits []string
	for _, j := range jobs {
		if j.IOOpsPerSecond > th.WoodpeckerIOPS {
			culprits = append(culprits, j.JobType)
		}
	}
	if len(culprits) == 0 {
		board.Clear("disk_io_woodpeckers")
		return
	}
	board.Set("disk_io_woodpeckers", SeverityWarning, map[string]any{"job_types": culprits}, now)
}

func analyzeLowCPU(board *AlertBoard, jobs []JobStats, th Thresholds, now time.Time) {
	if th.LowCPURatio <= 0 {
		return
	}
	var culprits []string
	for _, j := range jobs {
		if j.CPUTimeRatio < th.LowCPURatio {
			culprits = append(culprits, j.JobType)
		}
	}
	if len(culprits) == 0 {
		board.Clear("low_cpu_usage")
		return
	}
	board.Set("low_cpu_usage", SeverityInfo, map[string]any{"job_types": culprits}, now)
}

func analyzeShortJobs(board *AlertBoard, jobs []JobStats, th Thresholds, now time.Time) {
	if th.ShortJobDuration <= 0 || len(jobs) == 0 {
		return
	}
	var total time.Duration
	var short int
	for _, j := range jobs {
		total += j.Duration
		if j.Duration < th.ShortJobDuration {
			short++
		}
	}
	avg := total / time.Duration(len(jobs))
	if avg >= th.ShortJobDuration {
		board.Clear("short_average_job_duration")
		return
	}
	board.Set("short_average_job_duration", SeverityInfo, map[string]any{
		"average":      avg.String(),
		"short_count":  short,
		"sample_count": len(jobs),
	}, now)
}

func analyzeEstimatedDuration(board *AlertBoard, op OperationStats, now time.Time) {
	if op.CompletedJobCount == 0 {
		return
	}
	throughput := float64(op.CompletedJobCount) / op.ElapsedSinceStart.Seconds()
	if throughput <= 0 {
		return
	}
	remainingSeconds := float64(op.PendingJobCount) / throughput
	board.Set("estimated_operation_duration", SeverityInfo, map[string]any{
		"remaining": time.Duration(remainingSeconds * float64(time.Second)).String(),
	}, now)
}

func analyzeSchedulingThrottle(board *AlertBoard, op OperationStats, now time.Time) {
	if !op.SchedulingThrottled {
		board.Clear("schedule_job_throttling")
		return
	}
	board.Set("schedule_job_throttling", SeverityWarning, map[string]any{}, now)
}
