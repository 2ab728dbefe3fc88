// shared/db.go
package shared

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// JobStore holds job state and result payloads keyed by job ID.
// Implementations must allow concurrent reads and concurrent writes to
// different jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	// GetJob returns ErrUnknownJob when no record exists.
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// UpdateJob replaces the stored record. It returns ErrUnknownJob for a
	// missing job and ErrInvalidTransition when the state change is not allowed.
	UpdateJob(ctx context.Context, job *Job) error
}

// InMemoryDB implements JobStore using an in-memory map
type InMemoryDB struct {
	jobs      map[string]*Job
	jobsMutex sync.RWMutex
}

// NewInMemoryDB creates a new in-memory job store
func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		jobs: make(map[string]*Job),
	}
}

// CreateJob adds a new job to the store
func (db *InMemoryDB) CreateJob(_ context.Context, job *Job) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	if _, exists := db.jobs[job.ID]; exists {
		return errors.Errorf("job with ID %s already exists", job.ID)
	}
	db.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob retrieves a copy of a job by its ID
func (db *InMemoryDB) GetJob(_ context.Context, jobID string) (*Job, error) {
	db.jobsMutex.RLock()
	defer db.jobsMutex.RUnlock()

	job, exists := db.jobs[jobID]
	if !exists {
		return nil, errors.Wrapf(ErrUnknownJob, "job %s", jobID)
	}
	return job.Clone(), nil
}

// UpdateJob updates an existing job in the store
func (db *InMemoryDB) UpdateJob(_ context.Context, job *Job) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	current, exists := db.jobs[job.ID]
	if !exists {
		return errors.Wrapf(ErrUnknownJob, "job %s", job.ID)
	}
	if current.State != job.State && !CanTransition(current.State, job.State) {
		return errors.Wrapf(ErrInvalidTransition, "job %s: %s -> %s", job.ID, current.State, job.State)
	}
	if current.State.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "job %s is already %s", job.ID, current.State)
	}
	db.jobs[job.ID] = job.Clone()
	return nil
}
