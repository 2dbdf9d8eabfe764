package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/versegest/internal/stats"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("job queue is full")

// ErrPoolStopped fails jobs left in the queue when the pool shuts down.
var ErrPoolStopped = errors.New("worker pool stopped")

// PoolOptions size the worker pool.
type PoolOptions struct {
	Workers      int
	MaxQueue     int
	JobTTL       time.Duration
	CleanupEvery time.Duration
}

// Pool runs independent sources concurrently through one Orchestrator.
type Pool struct {
	orch  *Orchestrator
	jobs  *JobStore
	queue chan *Job
	opts  PoolOptions
	log   *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	wg      sync.WaitGroup
	once    sync.Once
}

func NewPool(orch *Orchestrator, opts PoolOptions, log *slog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 100
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = time.Hour
	}
	if opts.CleanupEvery <= 0 {
		opts.CleanupEvery = 5 * time.Minute
	}
	return &Pool{
		orch:  orch,
		jobs:  NewJobStore(opts.JobTTL),
		queue: make(chan *Job, opts.MaxQueue),
		opts:  opts,
		log:   log,
	}
}

// Start launches worker goroutines. Once ctx is done, workers stop taking
// sources and fail whatever is still queued with the context error.
func (p *Pool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.ctx, p.cancel = workerCtx, cancel

	for range p.opts.Workers {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			for {
				select {
				case <-workerCtx.Done():
					p.abandon(workerCtx.Err())
					return
				case job, ok := <-p.queue:
					if !ok {
						return
					}
					if err := workerCtx.Err(); err != nil {
						job.finish(Result{Status: ExecFailed}, err)
						continue
					}
					res := p.orch.run(workerCtx, job.Source, job.observe)
					job.finish(res, res.Err())
				}
			}
		}()
	}

	// Start job store cleanup.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.opts.CleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				p.jobs.Cleanup()
			}
		}
	}()
}

// abandon fails every job still sitting in the queue.
func (p *Pool) abandon(err error) {
	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			job.finish(Result{Status: ExecFailed}, err)
		default:
			return
		}
	}
}

// Submit queues a source for processing.
func (p *Pool) Submit(src Source) (*Job, error) {
	job := NewJob(src)
	p.jobs.Put(job)
	select {
	case p.queue <- job:
		return job, nil
	default:
		err := fmt.Errorf("%w (%d)", ErrQueueFull, p.opts.MaxQueue)
		job.finish(Result{Status: ExecFailed}, err)
		return job, err
	}
}

// Drain waits for every submitted job, then stops the workers and logs the
// stage statistics gathered so far. Jobs the workers never reached, because
// the pool was cancelled or never started, fail with ErrPoolStopped or the
// context error. Submit must not be called afterwards.
func (p *Pool) Drain() {
	p.once.Do(func() { close(p.queue) })
	p.workers.Wait()
	err := ErrPoolStopped
	if p.ctx != nil && p.ctx.Err() != nil {
		err = p.ctx.Err()
	}
	p.abandon(err)
	for _, job := range p.pending() {
		job.Wait()
	}
	p.Stop()
	if p.orch.deps.Stats != nil {
		logReports(p.log, p.orch.deps.Stats.Reports())
	}
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.once.Do(func() { close(p.queue) })
	p.workers.Wait()
	p.abandon(ErrPoolStopped)
	p.wg.Wait()
}

// GetJob returns a job by ID.
func (p *Pool) GetJob(id string) *Job {
	return p.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

func (p *Pool) pending() []*Job {
	p.jobs.mu.Lock()
	defer p.jobs.mu.Unlock()
	out := make([]*Job, 0, len(p.jobs.jobs))
	for _, j := range p.jobs.jobs {
		out = append(out, j)
	}
	return out
}

func logReports(log *slog.Logger, reports []stats.Report) {
	for _, r := range reports {
		log.Info("stage stats", "op", r.Op, "count", r.Latency.Count,
			"p50_ms", r.Latency.P50Ms, "p95_ms", r.Latency.P95Ms, "outcomes", r.Outcomes)
	}
}
