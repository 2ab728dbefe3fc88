package jobs

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"kmusic-audio-api/adapters"
	"kmusic-audio-api/shared"
)

var quietLogger = log.New(io.Discard, "", 0)

// recordingStore remembers every state written for each job.
type recordingStore struct {
	*shared.InMemoryDB

	mu      sync.Mutex
	history map[string][]shared.Job
}

func newRecordingStore() *recordingStore {
	return &recordingStore{InMemoryDB: shared.NewInMemoryDB(), history: map[string][]shared.Job{}}
}

func (s *recordingStore) UpdateJob(ctx context.Context, job *shared.Job) error {
	if err := s.InMemoryDB.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[job.ID] = append(s.history[job.ID], *job.Clone())
	return nil
}

func (s *recordingStore) updates(jobID string) []shared.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.Job(nil), s.history[jobID]...)
}

// fakeAdapter lets tests control the outcome of a run.
type fakeAdapter struct {
	kind  shared.JobKind
	steps []int
	err   error
	panic bool
	// gate, when set, blocks Run until closed.
	gate chan struct{}
}

func (f *fakeAdapter) Kind() shared.JobKind { return f.kind }

func (f *fakeAdapter) StartMessage(adapters.Input) string { return "starting fake" }

func (f *fakeAdapter) Run(ctx context.Context, in adapters.Input, report adapters.ProgressFunc) (shared.Result, error) {
	if f.gate != nil {
		<-f.gate
	}
	for _, p := range f.steps {
		if err := report("step", p); err != nil {
			return nil, err
		}
	}
	if f.panic {
		panic("model crashed")
	}
	if f.err != nil {
		return nil, f.err
	}
	return shared.LyricsResult{FileID: in.JobID, Lyrics: "[00:00.00]ok"}, nil
}

// failingQueue rejects every publish.
type failingQueue struct{}

func (failingQueue) Publish(context.Context, shared.JobMessage) error {
	return errors.Wrap(shared.ErrQueueFull, "test")
}
func (failingQueue) Receive(ctx context.Context) (shared.JobMessage, error) {
	<-ctx.Done()
	return shared.JobMessage{}, ctx.Err()
}
func (failingQueue) Close() error { return nil }

func newTestStorage(t *testing.T) *shared.FileStorage {
	t.Helper()
	dir := t.TempDir()
	fs, err := shared.NewFileStorage(filepath.Join(dir, "audio"), filepath.Join(dir, "stems"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	return fs
}
