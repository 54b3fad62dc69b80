// Package config loads and defaults the OperationSpec (§6 "CLI/Config
// (excluded): only the config schema surface touched by the core is the
// OperationSpec").
package config

import (
	"encoding/json"
	"io"
	"time"

	"go.chromium.org/luci/common/errors"

	"opctl/internal/automerge"
)

// UnavailableChunkPolicy selects how an operation reacts to an input chunk
// going unavailable mid-run (§7 ChunkUnavailable).
type UnavailableChunkPolicy int

const (
	// PolicyWait pauses the affected stripe until the scraper reports the
	// chunk available again (§8 scenario 4).
	PolicyWait UnavailableChunkPolicy = iota
	PolicyFail
	PolicySkip
)

func (p UnavailableChunkPolicy) String() string {
	switch p {
	case PolicyFail:
		return "fail"
	case PolicySkip:
		return "skip"
	default:
		return "wait"
	}
}

func (p UnavailableChunkPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *UnavailableChunkPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "fail":
		*p = PolicyFail
	case "skip":
		*p = PolicySkip
	case "wait", "":
		*p = PolicyWait
	default:
		return errors.Reason("unavailable_chunk_policy: unknown value %q", s).Err()
	}
	return nil
}

// OperationSpec is the user-facing configuration surface: timeouts, job
// counts, limits, auto-merge mode, unavailable-chunk policy,
// fail-on-job-restart, testing delays (§6).
type OperationSpec struct {
	JobType string `json:"job_type"`

	MaxFailedJobCount int `json:"max_failed_job_count"`
	JobCountLimit     int `json:"job_count_limit"`

	MemoryReserveQuantile float64 `json:"memory_reserve_quantile"`
	TmpfsSizeBytes        int64   `json:"tmpfs_size_bytes"`

	AutoMergeModeName    string `json:"auto_merge_mode"`
	AutoMergeManualLimit int    `json:"auto_merge_manual_chunk_limit"`

	UnavailableChunkPolicy UnavailableChunkPolicy `json:"unavailable_chunk_policy"`

	FailOnJobRestart bool `json:"fail_on_job_restart"`

	InitializationTimeout  time.Duration `json:"initialization_timeout"`
	ControllerFailTimeout  time.Duration `json:"controller_fail_timeout"`
	SchedulingIterationTTL time.Duration `json:"scheduling_iteration_ttl"`

	// TestingJobDelay, if set, pads every scheduled job's simulated
	// duration; used only by integration tests (§6).
	TestingJobDelay time.Duration `json:"testing_job_delay"`

	EnableLivePreview bool `json:"enable_live_preview"`
}

// Default returns an OperationSpec with the field defaults the controller
// falls back to when a value is left zero.
func Default() OperationSpec {
	return OperationSpec{
		MaxFailedJobCount:      10,
		MemoryReserveQuantile:  0.95,
		AutoMergeModeName:      "disabled",
		UnavailableChunkPolicy: PolicyWait,
		InitializationTimeout:  5 * time.Minute,
		ControllerFailTimeout:  2 * time.Minute,
		SchedulingIterationTTL: 500 * time.Millisecond,
	}
}

// Load reads an OperationSpec as JSON from r on top of Default(): a field
// the JSON does not mention keeps its default, while a field the JSON sets
// explicitly (even to zero) takes the JSON value.
func Load(r io.Reader) (OperationSpec, error) {
	spec := Default()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&spec); err != nil {
		return OperationSpec{}, errors.Annotate(err, "decoding operation spec").Err()
	}
	return spec, nil
}

// AutoMergeMode resolves the configured string mode name into the
// automerge package's enum.
func (s OperationSpec) AutoMergeMode() automerge.Mode {
	switch s.AutoMergeModeName {
	case "relaxed":
		return automerge.Relaxed
	case "economy":
		return automerge.Economy
	case "manual":
		return automerge.Manual
	default:
		return automerge.Disabled
	}
}
