package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"kmusic-audio-api/adapters"
	"kmusic-audio-api/shared"
)

const startPercent = 10

// Pool consumes job messages and runs each on its own goroutine, with at
// most Size jobs in flight.
type Pool struct {
	store    shared.JobStore
	queue    shared.MessageQueueClient
	adapters adapters.Registry
	logger   *log.Logger

	size int
	// Semaphore to limit concurrent processing tasks
	limiter chan struct{}
	active  atomic.Int32
	wg      sync.WaitGroup
}

// NewPool builds a worker pool over the injected store, queue and adapters.
func NewPool(store shared.JobStore, queue shared.MessageQueueClient, registry adapters.Registry, size int, logger *log.Logger) *Pool {
	if size <= 0 {
		size = shared.DefaultMaxWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{
		store:    store,
		queue:    queue,
		adapters: registry,
		logger:   logger,
		size:     size,
		limiter:  make(chan struct{}, size),
	}
}

// Size is the maximum number of concurrently executing jobs.
func (p *Pool) Size() int { return p.size }

// Active is the number of jobs currently executing.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Run receives from the queue until ctx is done or the queue is closed,
// then waits for in-flight jobs. A message is only taken off the queue
// while a worker token is held, and jobs already started are not cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Printf("INFO: Worker pool consuming messages with %d workers", p.size)
	defer p.wg.Wait()

	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Println("INFO: Worker pool stopping; waiting for in-flight jobs.")
			return nil
		case p.limiter <- struct{}{}:
		}

		msg, err := p.queue.Receive(ctx)
		if err != nil {
			<-p.limiter
			switch {
			case ctx.Err() != nil:
				p.logger.Println("INFO: Worker pool stopping; waiting for in-flight jobs.")
				return nil
			case errors.Is(err, shared.ErrQueueClosed):
				p.logger.Println("INFO: Queue consumer stopped.")
				return nil
			default:
				return errors.Wrap(err, "receive from queue")
			}
		}

		p.active.Add(1)
		p.logger.Printf("INFO: Worker acquired token for job %s. Current active jobs: %d/%d", msg.JobID, p.Active(), p.size)
		p.wg.Add(1)
		go func(jobMessage shared.JobMessage) {
			defer func() {
				// Release the token back to the limiter channel when the job is done
				p.active.Add(-1)
				<-p.limiter
				p.wg.Done()
			}()
			p.Execute(jobCtx, jobMessage)
		}(msg)
	}
}

// Execute runs one job to a terminal state. Errors and panics from the
// adapter are recorded as FAILURE and never escape. The input file is
// removed on every exit path.
func (p *Pool) Execute(ctx context.Context, msg shared.JobMessage) {
	release := p.releaseInput(msg)
	defer release()

	job, err := p.store.GetJob(ctx, msg.JobID)
	if err != nil {
		p.logger.Printf("ERROR: Worker failed to retrieve job %s: %v", msg.JobID, err)
		return
	}
	if job.State.Terminal() {
		p.logger.Printf("WARN: Job %s already %s; skipping", job.ID, job.State)
		return
	}
	handle := newJobHandle(p.store, job)
	p.logger.Printf("INFO: Worker processing %s job %s", msg.Kind, msg.JobID)

	defer func() {
		if r := recover(); r != nil {
			release()
			p.fail(ctx, handle, msg, errors.Errorf("panic: %v", r))
		}
	}()

	adapter, err := p.adapters.Lookup(msg.Kind)
	if err != nil {
		release()
		p.fail(ctx, handle, msg, err)
		return
	}

	in := adapters.Input{JobID: msg.JobID, FilePath: msg.FilePath, Params: msg.Params}
	if err := handle.SetProgress(ctx, adapter.StartMessage(in), startPercent); err != nil {
		p.logger.Printf("ERROR: Worker failed to mark job %s in progress: %v", msg.JobID, err)
	}

	result, err := adapter.Run(ctx, in, func(message string, percent int) error {
		return handle.SetProgress(ctx, message, percent)
	})
	release()
	if err != nil {
		p.fail(ctx, handle, msg, &shared.ProcessingError{JobID: msg.JobID, Kind: msg.Kind, Err: err})
		return
	}
	if result == nil {
		p.fail(ctx, handle, msg, errors.New("adapter returned no result"))
		return
	}
	if err := handle.Succeed(ctx, result); err != nil {
		p.logger.Printf("ERROR: Worker failed to record success for job %s: %v", msg.JobID, err)
		return
	}
	p.logger.Printf("INFO: Job %s completed.", msg.JobID)
}

// fail logs cause for operators and records it for clients.
func (p *Pool) fail(ctx context.Context, handle *JobHandle, msg shared.JobMessage, cause error) {
	p.logger.Printf("ERROR: Job %s (%s) failed: %+v", msg.JobID, msg.Kind, cause)
	if err := handle.Fail(ctx, cause); err != nil {
		p.logger.Printf("ERROR: Worker failed to record failure for job %s: %v", msg.JobID, err)
	}
}

// releaseInput returns an idempotent cleanup func for the job's upload.
func (p *Pool) releaseInput(msg shared.JobMessage) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if msg.FilePath == "" {
				return
			}
			if err := shared.RemoveUpload(msg.FilePath); err != nil {
				p.logger.Printf("WARN: Job %s: %v", msg.JobID, err)
				return
			}
			p.logger.Printf("INFO: Removed input file %s", msg.FilePath)
		})
	}
}

// String describes the pool for health output.
func (p *Pool) String() string {
	return fmt.Sprintf("%d/%d", p.Active(), p.size)
}
