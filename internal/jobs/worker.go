package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Recorder receives one call per processed job.
type Recorder interface {
	JobDone(jobType, outcome string)
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	Recorder     Recorder
}

type WorkerPool struct {
	repo     *Repository
	handlers map[string]Handler
	logger   *slog.Logger
	opts     Options
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{repo: repo, handlers: handlers, logger: logger, opts: opts, stop: make(chan struct{})}
}

// Start requeues jobs orphaned by a previous run and launches the workers.
func (p *WorkerPool) Start(ctx context.Context) {
	if n, err := p.repo.RequeueStale(ctx); err != nil {
		p.logger.Error("requeue stale jobs", "err", err)
	} else if n > 0 {
		p.logger.Info("requeued stale jobs", "count", n)
	}
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. Safe to call twice.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
		}

		job, err := p.repo.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("claim job", "err", err)
			}
			p.idle(ctx, 2*p.opts.PollInterval)
			continue
		}
		if job == nil {
			p.idle(ctx, p.opts.PollInterval)
			continue
		}
		p.process(ctx, job)
	}
}

func (p *WorkerPool) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	case <-ctx.Done():
	}
}

func (p *WorkerPool) process(ctx context.Context, job *Job) {
	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = "no handler"
		p.deadLetter(ctx, job)
		return
	}

	err := h(ctx, job)
	if err == nil {
		if err := p.repo.Complete(ctx, job.ID); err != nil {
			p.logger.Error("complete job", "id", job.ID, "err", err)
		}
		p.record(job.Type, StatusDone)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts || errors.Is(err, ErrBadPayload) {
		job.Status = StatusFailed
		p.deadLetter(ctx, job)
		return
	}

	t := time.Now().Add(BackoffDuration(job.Attempts))
	job.NextTryAt = &t
	job.Status = StatusRetry
	if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
		p.logger.Error("update job for retry", "id", job.ID, "err", upErr)
	}
	p.logger.Warn("job failed, will retry", "id", job.ID, "type", job.Type, "attempts", job.Attempts, "err", err)
	p.record(job.Type, StatusRetry)
}

func (p *WorkerPool) deadLetter(ctx context.Context, job *Job) {
	if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
		p.logger.Error("move to dead letter", "id", job.ID, "err", err)
	}
	p.logger.Warn("job dead-lettered", "id", job.ID, "type", job.Type, "err", job.LastError)
	p.record(job.Type, StatusFailed)
}

func (p *WorkerPool) record(jobType, outcome string) {
	if p.opts.Recorder != nil {
		p.opts.Recorder.JobDone(jobType, outcome)
	}
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &Job{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return p.repo.Enqueue(ctx, j)
}

// SchedulePrune queues eviction of userID's diagnoses beyond keep.
func (p *WorkerPool) SchedulePrune(ctx context.Context, userID int64, keep int) error {
	_, err := p.Enqueue(ctx, TypePruneDiagnoses, PrunePayload{UserID: userID, Keep: keep}, 100, 3)
	return err
}
