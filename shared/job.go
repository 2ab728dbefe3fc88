// shared/job.go
package shared

import (
	"encoding/json"
	"time"
)

// JobKind identifies which long-running operation a job runs
type JobKind string

const (
	JobKindTranscription  JobKind = "transcription"
	JobKindChordDetection JobKind = "chord_detection"
	JobKindStemSeparation JobKind = "stem_separation"
)

// JobState is the externally visible lifecycle state of a job
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateProgress JobState = "PROGRESS"
	JobStateSuccess  JobState = "SUCCESS"
	JobStateFailure  JobState = "FAILURE"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// CanTransition enforces the job state machine:
// PENDING -> PROGRESS* -> SUCCESS | FAILURE.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStatePending:
		return to == JobStateProgress || to.Terminal()
	case JobStateProgress:
		return to == JobStateProgress || to.Terminal()
	default:
		return false
	}
}

// Param keys carried in JobMessage.Params
const (
	ParamStemType   = "stem_type"
	DefaultStemType = "vocals"
)

// Progress is the intermediate status a worker reports while running a job
type Progress struct {
	Message string `json:"status"`
	Percent int    `json:"progress"`
}

// Job represents the state of one lyrics, chords or stems task
type Job struct {
	ID          string            `json:"task_id"`
	Kind        JobKind           `json:"kind"`
	InputPath   string            `json:"input_path"`
	Params      map[string]string `json:"params,omitempty"`
	State       JobState          `json:"state"`
	Progress    *Progress         `json:"progress,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"` // only in SUCCESS
	Error       string            `json:"error,omitempty"`  // only in FAILURE
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		c.Params = make(map[string]string, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// JobMessage represents the data sent through the queue for a job
type JobMessage struct {
	JobID    string            `json:"job_id"`
	Kind     JobKind           `json:"kind"`
	FilePath string            `json:"file_path"`
	Params   map[string]string `json:"params,omitempty"`
}

// Result is the typed payload an adapter returns on success.
type Result interface {
	JobKind() JobKind
}

// LyricsResult holds synchronized lyrics in LRC format
type LyricsResult struct {
	FileID string `json:"file_id"`
	Lyrics string `json:"lyrics"`
}

func (LyricsResult) JobKind() JobKind { return JobKindTranscription }

// ChordEvent is a chord starting at Time seconds into the track
type ChordEvent struct {
	Time  float64 `json:"time"`
	Chord string  `json:"chord"`
}

// ChordsResult holds the detected chord progression
type ChordsResult struct {
	FileID string       `json:"file_id"`
	Chords []ChordEvent `json:"chords"`
}

func (ChordsResult) JobKind() JobKind { return JobKindChordDetection }

// StemsResult points at one separated stem on disk
type StemsResult struct {
	FileID   string `json:"file_id"`
	StemType string `json:"stem_type"`
	StemPath string `json:"stem_path"`
}

func (StemsResult) JobKind() JobKind { return JobKindStemSeparation }
