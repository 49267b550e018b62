package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/metrics"
)

// Advancer runs a job's pending stages.
type Advancer interface {
	Advance(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error)
}

// PendingLister finds jobs left unfinished by a previous process.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]*entity.ProcessingJob, error)
}

type ProcessorQueue struct {
	adv     Advancer
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch      chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	senders sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(adv Advancer, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		adv:     adv,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					metrics.DecrementQueueDepth()
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	start := time.Now()
	got, err := q.adv.Advance(ctx, common.SystemActor, job.JobID)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "job_id", job.JobID, "error", err)
		return
	}
	q.logger.Info("job advanced",
		"worker_id", workerID,
		"job_id", job.JobID,
		"status", got.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"queued_ms", start.Sub(job.SubmittedAt).Milliseconds(),
	)
}

// Enqueue blocks while the buffer is full, until ctx is done or Shutdown begins.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
		select {
		case q.ch <- job:
		case <-q.done:
			q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
			return ErrQueueClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	metrics.IncrementQueueDepth()
	q.logger.Debug("queued job for processing", "job_id", job.JobID)
	return nil
}

// Resume enqueues unclaimed jobs that still have stages to run, such as those accepted just
// before a restart. It returns how many were queued.
func (q *ProcessorQueue) Resume(ctx context.Context, jobs PendingLister, limit int) (int, error) {
	pending, err := jobs.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range pending {
		if err := q.Enqueue(ctx, Job{JobID: j.ID, SubmittedAt: j.UpdatedAt}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		q.logger.Info("resumed pending jobs", "count", n)
	}
	return n, nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	// blocked senders return once done is closed; ch closes only after the last one leaves
	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
