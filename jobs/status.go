package jobs

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"kmusic-audio-api/shared"
)

const (
	statusPending  = "task pending"
	statusComplete = "task complete"
)

// StatusPayload is the client-facing view of a job. Which fields are
// rendered depends on State; see MarshalJSON.
type StatusPayload struct {
	State    shared.JobState
	Status   string
	Progress int
	Result   json.RawMessage
}

// MarshalJSON renders:
//
//	PENDING  {state, status}
//	PROGRESS {state, status, progress}
//	SUCCESS  {state, status, result}
//	other    {state, status, result: null}
func (p StatusPayload) MarshalJSON() ([]byte, error) {
	switch p.State {
	case shared.JobStatePending:
		return json.Marshal(struct {
			State  shared.JobState `json:"state"`
			Status string          `json:"status"`
		}{p.State, p.Status})
	case shared.JobStateProgress:
		return json.Marshal(struct {
			State    shared.JobState `json:"state"`
			Status   string          `json:"status"`
			Progress int             `json:"progress"`
		}{p.State, p.Status, p.Progress})
	case shared.JobStateSuccess:
		result := p.Result
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		return json.Marshal(struct {
			State  shared.JobState `json:"state"`
			Status string          `json:"status"`
			Result json.RawMessage `json:"result"`
		}{p.State, p.Status, result})
	default:
		return json.Marshal(struct {
			State  shared.JobState  `json:"state"`
			Status string           `json:"status"`
			Result *json.RawMessage `json:"result"`
		}{p.State, p.Status, nil})
	}
}

// Reporter renders job state for polling clients. It only reads the store.
type Reporter struct {
	store shared.JobStore
	// unknownAsPending reports unknown IDs as PENDING instead of ErrUnknownJob.
	unknownAsPending bool
}

func NewReporter(store shared.JobStore, unknownAsPending bool) *Reporter {
	return &Reporter{store: store, unknownAsPending: unknownAsPending}
}

// Status returns the payload for jobID. Unknown IDs yield shared.ErrUnknownJob
// unless the reporter was built to treat them as pending.
func (r *Reporter) Status(ctx context.Context, jobID string) (StatusPayload, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownJob) && r.unknownAsPending {
			return StatusPayload{State: shared.JobStatePending, Status: statusPending}, nil
		}
		return StatusPayload{}, err
	}
	return Render(job), nil
}

// Render maps a stored job to its status payload.
func Render(job *shared.Job) StatusPayload {
	switch job.State {
	case shared.JobStatePending:
		return StatusPayload{State: job.State, Status: statusPending}
	case shared.JobStateProgress:
		p := StatusPayload{State: job.State, Status: "processing"}
		if job.Progress != nil {
			p.Status = job.Progress.Message
			p.Progress = job.Progress.Percent
		}
		return p
	case shared.JobStateSuccess:
		return StatusPayload{State: job.State, Status: statusComplete, Result: job.Result}
	default:
		status := job.Error
		if status == "" {
			status = string(job.State)
		}
		return StatusPayload{State: job.State, Status: status}
	}
}
