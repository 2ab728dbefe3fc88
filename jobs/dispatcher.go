// Package jobs implements the asynchronous job pipeline: the dispatcher
// that accepts uploads, the worker pool that executes them and the status
// reporter that clients poll.
package jobs

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"kmusic-audio-api/shared"
)

// Submission is one client request for asynchronous work.
type Submission struct {
	Kind     shared.JobKind
	Filename string
	Body     io.Reader
	Params   map[string]string
}

// Dispatcher saves uploads, records new jobs and enqueues them.
type Dispatcher struct {
	store   shared.JobStore
	queue   shared.MessageQueueClient
	storage *shared.FileStorage
	logger  *log.Logger
	newID   func() string
}

// NewDispatcher builds a dispatcher over the injected store, queue and storage.
func NewDispatcher(store shared.JobStore, queue shared.MessageQueueClient, storage *shared.FileStorage, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		store:   store,
		queue:   queue,
		storage: storage,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Submit persists the upload and enqueues a job for it, returning the job
// ID without waiting for processing. A missing body, empty filename or
// empty file fails with shared.ErrInvalidInput before anything is written.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (string, error) {
	if sub.Body == nil {
		return "", errors.Wrap(shared.ErrInvalidInput, "no audio file provided")
	}
	if strings.TrimSpace(sub.Filename) == "" {
		return "", errors.Wrap(shared.ErrInvalidInput, "invalid file name")
	}

	jobID := d.newID()
	path, err := d.storage.SaveUpload(jobID, sub.Filename, sub.Body)
	if err != nil {
		return "", err
	}
	d.logger.Printf("INFO: Saved upload for %s job %s: %s", sub.Kind, jobID, path)

	job := &shared.Job{
		ID:        jobID,
		Kind:      sub.Kind,
		InputPath: path,
		Params:    sub.Params,
		State:     shared.JobStatePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		d.discard(path)
		return "", errors.Wrapf(err, "initialize job %s", jobID)
	}

	msg := shared.JobMessage{JobID: jobID, Kind: sub.Kind, FilePath: path, Params: sub.Params}
	if err := d.queue.Publish(ctx, msg); err != nil {
		d.logger.Printf("ERROR: Failed to publish job %s to queue: %v", jobID, err)
		// Mark job as failed since it couldn't be queued
		now := time.Now().UTC()
		job.State = shared.JobStateFailure
		job.Error = "error: failed to queue job: " + err.Error()
		job.CompletedAt = &now
		if uerr := d.store.UpdateJob(ctx, job); uerr != nil {
			d.logger.Printf("ERROR: Failed to mark job %s as failed: %v", jobID, uerr)
		}
		d.discard(path)
		return "", errors.Wrapf(err, "enqueue job %s", jobID)
	}
	d.logger.Printf("INFO: Job %s (%s) published to queue", jobID, sub.Kind)
	return jobID, nil
}

func (d *Dispatcher) discard(path string) {
	if err := shared.RemoveUpload(path); err != nil {
		d.logger.Printf("WARN: %v", err)
	}
}
