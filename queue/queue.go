// Package queue is the refresh-job delivery channel: an in-process
// buffer drained by a single consumer, one job at a time. Delivery is
// at-least-once from the producer's point of view; the idempotent
// upserts downstream make a duplicate crawl harmless.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueClosed is returned when Enqueue is called after shutdown.
	ErrQueueClosed = errors.New("queue: closed")
	// ErrQueueFull is returned when the delivery buffer has no room.
	ErrQueueFull = errors.New("queue: full")
)

// Message is one unit of delivered work.
type Message struct {
	URL   string
	JobID string
}

// Runner executes one crawl run for a delivered message.
type Runner interface {
	Run(ctx context.Context, startURL string) error
}

// Ledger is the slice of the store the consumer needs to drive the job
// state machine.
type Ledger interface {
	MarkJobRunning(id string) error
	MarkJobDone(id string) error
	MarkJobFailed(id, errorDetail string) error
}

// Observer counts finished jobs by outcome. May be nil.
type Observer interface {
	IncJob(outcome string)
}

// Queue buffers refresh jobs and runs them serially.
type Queue struct {
	ch       chan Message
	runner   Runner
	ledger   Ledger
	observer Observer

	wg sync.WaitGroup

	mu     sync.Mutex // guards closed
	closed bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a queue with the given buffer size.
func New(runner Runner, ledger Ledger, observer Observer, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		ch:       make(chan Message, size),
		runner:   runner,
		ledger:   ledger,
		observer: observer,
		shutdown: make(chan struct{}),
	}
}

func (q *Queue) incJob(outcome string) {
	if q.observer != nil {
		q.observer.IncJob(outcome)
	}
}

// Enqueue hands a job to the consumer without waiting for the crawl.
// Callers treat this as fire-and-forget; a full buffer is surfaced so
// the caller can log it, not so it can block a read path.
func (q *Queue) Enqueue(url, jobID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case <-q.shutdown:
		return ErrQueueClosed
	case q.ch <- Message{URL: url, JobID: jobID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the single consumer goroutine. Jobs run one at a
// time; there is no concurrent crawl execution.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.consume(ctx)
}

func (q *Queue) consume(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-q.shutdown:
			return
		case <-ctx.Done():
			return
		case msg := <-q.ch:
			q.process(ctx, msg)
		}
	}
}

// process drives the job state machine around one crawl run: pending to
// running, then done, or failed with the cause recorded. Failed runs
// are not retried here; the next staleness check or a manual refresh
// decides whether to try again.
func (q *Queue) process(ctx context.Context, msg Message) {
	if msg.JobID != "" {
		if err := q.ledger.MarkJobRunning(msg.JobID); err != nil {
			slog.Error("mark job running failed", slog.String("job_id", msg.JobID), slog.Any("error", err))
		}
	}

	slog.Info("processing refresh job", slog.String("job_id", msg.JobID), slog.String("url", msg.URL))

	if err := q.runner.Run(ctx, msg.URL); err != nil {
		slog.Error("refresh job failed", slog.String("job_id", msg.JobID), slog.Any("error", err))
		q.incJob("failed")
		if msg.JobID != "" {
			if markErr := q.ledger.MarkJobFailed(msg.JobID, err.Error()); markErr != nil {
				slog.Error("mark job failed failed", slog.String("job_id", msg.JobID), slog.Any("error", markErr))
			}
		}
		return
	}
	q.incJob("done")

	if msg.JobID != "" {
		if err := q.ledger.MarkJobDone(msg.JobID); err != nil {
			slog.Error("mark job done failed", slog.String("job_id", msg.JobID), slog.Any("error", err))
		}
	}
	slog.Info("refresh job completed", slog.String("job_id", msg.JobID))
}

// Close stops accepting work and waits for the in-flight job. The
// buffer channel is never closed: a racing Enqueue must fail with
// ErrQueueClosed, not panic on a send. The shutdown channel is what
// stops the consumer.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.shutdownOnce.Do(func() {
		close(q.shutdown)
	})
	q.wg.Wait()
}
