package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"

	"kmusic-audio-api/shared"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// TestStatusPayloadShapes pins the JSON rendered for each state.
func TestStatusPayloadShapes(t *testing.T) {
	cases := []struct {
		name string
		job  shared.Job
		want string
	}{
		{
			name: "pending",
			job:  shared.Job{State: shared.JobStatePending},
			want: `{"state":"PENDING","status":"task pending"}`,
		},
		{
			name: "progress",
			job:  shared.Job{State: shared.JobStateProgress, Progress: &shared.Progress{Message: "starting transcription", Percent: 10}},
			want: `{"state":"PROGRESS","status":"starting transcription","progress":10}`,
		},
		{
			name: "success",
			job:  shared.Job{State: shared.JobStateSuccess, Result: json.RawMessage(`{"file_id":"x","lyrics":"la"}`)},
			want: `{"state":"SUCCESS","status":"task complete","result":{"file_id":"x","lyrics":"la"}}`,
		},
		{
			name: "failure",
			job:  shared.Job{State: shared.JobStateFailure, Error: "error: model unavailable"},
			want: `{"state":"FAILURE","status":"error: model unavailable","result":null}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustJSON(t, Render(&tc.job)); got != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

// TestReporterUnknownJob returns ErrUnknownJob unless configured otherwise.
func TestReporterUnknownJob(t *testing.T) {
	store := shared.NewInMemoryDB()

	if _, err := NewReporter(store, false).Status(context.Background(), "missing"); !errors.Is(err, shared.ErrUnknownJob) {
		t.Fatalf("error = %v, want ErrUnknownJob", err)
	}

	p, err := NewReporter(store, true).Status(context.Background(), "missing")
	if err != nil {
		t.Fatalf("legacy status: %v", err)
	}
	if p.State != shared.JobStatePending || p.Status != "task pending" {
		t.Fatalf("legacy payload = %+v", p)
	}
}

// TestReporterIsIdempotent polls a terminal job repeatedly.
func TestReporterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := shared.NewInMemoryDB()
	now := time.Now().UTC()
	job := &shared.Job{ID: "done", State: shared.JobStatePending, CreatedAt: now}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.State = shared.JobStateSuccess
	job.Result = json.RawMessage(`{"file_id":"done","chords":[]}`)
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	r := NewReporter(store, false)
	first, err := r.Status(ctx, "done")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Status(ctx, "done")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if mustJSON(t, again) != mustJSON(t, first) {
			t.Fatalf("poll %d changed payload: %s vs %s", i, mustJSON(t, again), mustJSON(t, first))
		}
	}
	stored, _ := store.GetJob(ctx, "done")
	if stored.State != shared.JobStateSuccess {
		t.Fatal("polling mutated the job")
	}
}

// TestJobHandleSingleTerminal refuses writes after the terminal state.
func TestJobHandleSingleTerminal(t *testing.T) {
	ctx := context.Background()
	store := shared.NewInMemoryDB()
	job := &shared.Job{ID: "h1", State: shared.JobStatePending, CreatedAt: time.Now()}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	h := newJobHandle(store, job)

	if err := h.SetProgress(ctx, "over", 150); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if got := h.Snapshot().Progress.Percent; got != 100 {
		t.Fatalf("percent = %d, want clamped to 100", got)
	}
	if err := h.Succeed(ctx, shared.ChordsResult{FileID: "h1"}); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if err := h.Fail(ctx, errors.New("late")); !errors.Is(err, ErrJobFinished) {
		t.Fatalf("fail after success = %v, want ErrJobFinished", err)
	}
	if err := h.SetProgress(ctx, "late", 100); !errors.Is(err, ErrJobFinished) {
		t.Fatalf("progress after success = %v, want ErrJobFinished", err)
	}

	stored, _ := store.GetJob(ctx, "h1")
	if stored.State != shared.JobStateSuccess || stored.Error != "" {
		t.Fatalf("stored = %+v", stored)
	}
}
