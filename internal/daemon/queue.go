package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
var ErrQueueFull = stderrors.New("run queue is full")

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = stderrors.New("run queue is stopped")

// JobSource records why a job was queued.
type JobSource string

const (
	SourceSchedule JobSource = "schedule"
	SourceManual   JobSource = "manual"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Job is one pipeline run waiting in or taken from the queue.
type Job struct {
	ID         string
	Source     JobSource
	Params     trigger.Params
	Status     JobStatus
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Executor runs the pipeline for one job.
type Executor func(ctx context.Context, job *Job) error

// Queue runs jobs one at a time in arrival order. A run queued while
// another is executing waits for it to finish.
type Queue struct {
	jobs        chan *Job
	exec        Executor
	logger      *slog.Logger
	historySize int

	mu      sync.Mutex
	active  *Job
	cancel  context.CancelFunc
	history []*Job
	stopped bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewQueue creates a queue holding up to maxSize pending jobs.
func NewQueue(maxSize int, exec Executor, logger *slog.Logger) *Queue {
	if maxSize <= 0 {
		maxSize = 8
	}
	if exec == nil {
		panic("NewQueue: executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:        make(chan *Job, maxSize),
		exec:        exec,
		logger:      logger,
		historySize: 20,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the single worker.
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("Starting run queue", slog.Int("max_size", cap(q.jobs)))
	q.wg.Add(1)
	go q.worker(ctx)
}

// Stop cancels the running job and waits for the worker to exit. Pending
// jobs are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopChan)
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a job for params and returns it.
func (q *Queue) Enqueue(source JobSource, params trigger.Params) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, ErrQueueStopped
	}
	job := &Job{
		ID:        uuid.NewString(),
		Source:    source,
		Params:    params,
		Status:    JobQueued,
		CreatedAt: time.Now(),
	}
	select {
	case q.jobs <- job:
	default:
		return nil, ErrQueueFull
	}
	q.logger.Info("Run queued",
		slog.String("job_id", job.ID),
		slog.String("source", string(source)),
		logfields.Branch(params.Branch),
		slog.Int("pending", len(q.jobs)))
	return job, nil
}

// Length returns the number of pending jobs.
func (q *Queue) Length() int { return len(q.jobs) }

// Active returns a copy of the running job, if any.
func (q *Queue) Active() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return Job{}, false
	}
	return *q.active, true
}

// History returns copies of finished jobs, newest first.
func (q *Queue) History() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.history))
	for i := len(q.history) - 1; i >= 0; i-- {
		out = append(out, *q.history[i])
	}
	return out
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = time.Now()
	q.active = job
	q.cancel = cancel
	q.mu.Unlock()

	q.logger.Info("Run started", slog.String("job_id", job.ID), slog.String("source", string(job.Source)))
	err := q.exec(jobCtx, job)

	q.mu.Lock()
	job.FinishedAt = time.Now()
	job.Err = err
	switch {
	case err == nil:
		job.Status = JobSucceeded
	case jobCtx.Err() != nil:
		job.Status = JobCanceled
	default:
		job.Status = JobFailed
	}
	q.active = nil
	q.cancel = nil
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
	q.mu.Unlock()

	attrs := []any{
		slog.String("job_id", job.ID),
		logfields.Status(string(job.Status)),
		logfields.DurationMS(float64(job.FinishedAt.Sub(job.StartedAt).Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, logfields.Error(err))
		if classified, ok := ferrors.AsClassified(err); ok {
			if step, ok := classified.Step(); ok {
				attrs = append(attrs, logfields.Step(step))
			}
			attrs = append(attrs, slog.Bool("transient", classified.Transient()))
		}
		q.logger.Error("Run finished", attrs...)
		return
	}
	q.logger.Info("Run finished", attrs...)
}
