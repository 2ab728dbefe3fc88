package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"kmusic-audio-api/shared"
)

// ErrJobFinished is returned by a JobHandle once its job is terminal.
var ErrJobFinished = errors.New("job already finished")

// JobHandle is the single writer for one job's state. The worker executing
// the job owns it; nothing else mutates the record.
type JobHandle struct {
	store shared.JobStore

	mu  sync.Mutex
	job *shared.Job
}

func newJobHandle(store shared.JobStore, job *shared.Job) *JobHandle {
	return &JobHandle{store: store, job: job.Clone()}
}

// Snapshot returns a copy of the last state written through the handle.
func (h *JobHandle) Snapshot() *shared.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Clone()
}

// SetProgress moves the job to PROGRESS. Percent is clamped to 0..100 and
// never goes below a previously reported value.
func (h *JobHandle) SetProgress(ctx context.Context, message string, percent int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.State.Terminal() {
		return ErrJobFinished
	}

	percent = clampPercent(percent)
	if h.job.Progress != nil && percent < h.job.Progress.Percent {
		percent = h.job.Progress.Percent
	}

	next := h.job.Clone()
	next.State = shared.JobStateProgress
	next.Progress = &shared.Progress{Message: message, Percent: percent}
	if next.StartedAt == nil {
		now := time.Now().UTC()
		next.StartedAt = &now
	}
	return h.write(ctx, next)
}

// Succeed records the terminal SUCCESS state with the adapter's result.
func (h *JobHandle) Succeed(ctx context.Context, result shared.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return h.Fail(ctx, errors.Wrap(err, "encode result"))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.State.Terminal() {
		return ErrJobFinished
	}
	next := h.job.Clone()
	next.State = shared.JobStateSuccess
	next.Result = payload
	next.Error = ""
	h.markCompleted(next)
	return h.write(ctx, next)
}

// Fail records the terminal FAILURE state with a readable error message.
func (h *JobHandle) Fail(ctx context.Context, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.State.Terminal() {
		return ErrJobFinished
	}
	next := h.job.Clone()
	next.State = shared.JobStateFailure
	next.Result = nil
	next.Error = "error: " + cause.Error()
	if pe, ok := asProcessingError(cause); ok {
		next.Error = "error: " + pe.Err.Error()
	}
	h.markCompleted(next)
	return h.write(ctx, next)
}

func (h *JobHandle) markCompleted(j *shared.Job) {
	now := time.Now().UTC()
	j.CompletedAt = &now
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
}

// write persists next and adopts it as the handle's state. Caller holds mu.
func (h *JobHandle) write(ctx context.Context, next *shared.Job) error {
	if err := h.store.UpdateJob(ctx, next); err != nil {
		return errors.Wrapf(err, "update job %s to %s", next.ID, next.State)
	}
	h.job = next
	return nil
}

func asProcessingError(err error) (*shared.ProcessingError, bool) {
	var pe *shared.ProcessingError
	ok := errors.As(err, &pe)
	return pe, ok
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
