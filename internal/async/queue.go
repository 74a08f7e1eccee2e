// Package async runs extractions on a bounded worker pool so callers can
// hand off a screenshot and move on.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
)

// Job is one queued extraction. TraceID carries the submitter's request ID
// into the worker's logs; when empty the job ID stands in.
type Job struct {
	ID                 uuid.UUID
	Ref                string
	KnownAccountNumber string
	KnownBankName      string
	SubmittedAt        time.Time
	TraceID            string
}

// Runner is the processing side of the queue.
type Runner interface {
	Process(ctx context.Context, in pipeline.ExtractInput) (entity.ExtractionOutcome, error)
}

// ExtractQueue fans jobs out to a fixed set of workers over a bounded
// channel. A full channel applies backpressure to Enqueue rather than
// dropping work.
type ExtractQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ExtractQueue)

func WithWorkers(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ExtractQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewExtractQueue builds the pool and starts its workers.
func NewExtractQueue(runner Runner, logger *slog.Logger, opts ...Option) *ExtractQueue {
	if runner == nil {
		panic("async: queue needs a runner")
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExtractQueue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ExtractQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.start", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// run processes one job under the pool's deadline. The job's trace ID
// becomes the extraction request ID so submitter and worker logs line up.
func (q *ExtractQueue) run(workerID int, job Job) {
	trace := job.TraceID
	if trace == "" {
		trace = job.ID.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	ctx = common.WithRequestID(ctx, trace)
	defer cancel()

	start := time.Now()
	out, err := q.runner.Process(ctx, pipeline.ExtractInput{
		Ref:                job.Ref,
		KnownAccountNumber: job.KnownAccountNumber,
		KnownBankName:      job.KnownBankName,
	})
	if err != nil {
		q.logger.Error("queue.job.failed",
			"worker_id", workerID, "job_id", job.ID, "ref", job.Ref, "err", err)
		return
	}
	q.logger.Info("queue.job.done",
		"worker_id", workerID,
		"job_id", job.ID,
		"winner", out.Metadata.Winner,
		"confidence", out.Result.Confidence,
		"cache_hit", out.Metadata.CacheHit,
		"queued_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Enqueue submits a job. A full queue blocks until a worker frees a slot or
// ctx ends; a shut-down queue rejects the job.
func (q *ExtractQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.NewAppError(common.CodeInternal, "queue is shut down", nil)
	}

	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.backpressure", "job_id", job.ID, "depth", len(q.ch))
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.logger.Debug("queue.enqueued", "job_id", job.ID, "ref", job.Ref)
	return nil
}

// Shutdown stops intake and waits for in-flight jobs, bounded by ctx.
func (q *ExtractQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
