package snapshot

import (
	"encoding/json"

	"go.chromium.org/luci/common/errors"

	"opctl/internal/model"
)

// CurrentVersion is the schema version this binary writes and the highest
// it can load. A snapshot stamped with a higher version aborts revival
// cleanly instead of guessing at fields it doesn't understand (§9 design
// note); fields added within a version are always optional, so forward
// compatibility within the same version is plain additive JSON (§6).
const CurrentVersion = 1

// ArchivedJobSpec is one job-spec archival entry (§14 supplemented feature):
// the resolved spec handed to the scheduler at ScheduleJob time, kept in the
// release queue until the next checkpoint hands it to ReleaseArchivedSpecs.
type ArchivedJobSpec struct {
	JobID model.JobID
	Spec  model.JobSpec
}

// State is the persisted snapshot (§6 "Persisted state"): every committed
// field of §3 the controller needs to resume from.
type State struct {
	Version int `json:"version"`

	CompletedJobIDs     []model.JobID           `json:"completed_job_ids"`
	IntermediateStripes []model.ChunkStripeList `json:"intermediate_stripes"`
	ChunkTrees          []model.ChunkID         `json:"chunk_trees"`
	JobSpecArchive      []ArchivedJobSpec       `json:"job_spec_archive"`

	OutputTables      []model.OutputTable `json:"output_tables"`
	CompletedJobCount int                 `json:"completed_job_count"`
}

// Marshal serializes s, stamping it with CurrentVersion.
func Marshal(s *State) ([]byte, error) {
	s.Version = CurrentVersion
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Annotate(err, "marshal snapshot").Err()
	}
	return data, nil
}

// Unmarshal loads a snapshot, aborting cleanly if it was written by a newer
// schema version than this binary understands (§9: "unknown-newer fields on
// load abort revival cleanly").
func Unmarshal(data []byte) (*State, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Annotate(err, "probe snapshot version").Err()
	}
	if probe.Version > CurrentVersion {
		return nil, errors.Reason("snapshot version %d is newer than this binary understands (max %d)", probe.Version, CurrentVersion).Err()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Annotate(err, "unmarshal snapshot").Err()
	}
	return &s, nil
}
