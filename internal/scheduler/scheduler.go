package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thisnaeem/metagen/internal/keypool"
)

// Options configures a run.
type Options struct {
	// MaxRetries caps how many times a job is re-dispatched after a
	// transient or quota failure.
	MaxRetries int
	// Tick is how long the loop sleeps when no key is currently eligible
	// before re-checking, instead of busy-spinning.
	Tick time.Duration
	// RequestTimeout bounds one generation call.
	RequestTimeout time.Duration
	// ProbeTimeout bounds one validation probe; past it the probe counts
	// as failed, not hung.
	ProbeTimeout time.Duration
	// ValidateConcurrency bounds how many keys are probed at once before
	// the run starts.
	ValidateConcurrency int
	// Clock supplies the current time; tests inject a fake.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Tick <= 0 {
		o.Tick = 250 * time.Millisecond
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 120 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 15 * time.Second
	}
	if o.ValidateConcurrency <= 0 {
		o.ValidateConcurrency = 4
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// reasonNoValidKey is the terminal reason for jobs that can never run because
// every key has been invalidated.
const reasonNoValidKey = "no valid credential available"

// Scheduler distributes jobs across the key pool. One coordinating goroutine
// assigns work and N in-flight generation calls run concurrently, where N is
// bounded by the number of eligible keys (one in-flight job per key).
type Scheduler struct {
	pool *keypool.Pool
	gen  Generator
	val  Validator
	opts Options
}

// New creates a scheduler over the given pool and collaborators.
func New(pool *keypool.Pool, gen Generator, val Validator, opts Options) *Scheduler {
	return &Scheduler{
		pool: pool,
		gen:  gen,
		val:  val,
		opts: opts.withDefaults(),
	}
}

// settled carries one completed generation call back to the loop.
type settled struct {
	job    *Job
	credID uuid.UUID
	result any
	err    error
}

// Start launches a run over the given jobs and returns immediately. The
// returned handle exposes progress, Stop, and the final report via Wait.
func (s *Scheduler) Start(ctx context.Context, jobs []*Job) *RunHandle {
	agg := newAggregator(len(jobs))
	handle := newRunHandle(agg.events)
	go s.run(ctx, jobs, agg, handle)
	return handle
}

// run executes the full dispatch loop until the queue drains, the run is
// stopped, or no key can ever become eligible again.
func (s *Scheduler) run(ctx context.Context, jobs []*Job, agg *aggregator, handle *RunHandle) {
	started := s.opts.Clock()

	s.validatePool(ctx)

	var queue jobQueue
	for _, job := range jobs {
		job.State = JobPending
		queue.push(job)
	}

	results := make(chan settled)
	inFlight := 0
	cancelled := false

	// Once cancellation is observed these are nilled out so the wait
	// select stops firing on them.
	stopCh := handle.stopCh
	ctxDone := ctx.Done()

	for {
		if !cancelled {
			select {
			case <-stopCh:
				cancelled = true
			case <-ctxDone:
				cancelled = true
			default:
			}
			if cancelled {
				stopCh = nil
				ctxDone = nil
			}
		}

		if inFlight == 0 {
			if cancelled || queue.empty() {
				break
			}
			if !s.pool.HasViable() {
				// All keys invalid: nothing pending can ever run.
				for !queue.empty() {
					job := queue.pop()
					job.State = JobFailed
					job.TerminalReason = reasonNoValidKey
					agg.jobSettled(job)
				}
				break
			}
		}

		if !cancelled && !queue.empty() {
			if cred, ok := s.pool.AcquireNext(s.opts.Clock()); ok {
				job := queue.pop()
				job.State = JobInFlight
				job.Attempts++
				job.LastCredentialID = cred.ID
				agg.jobStarted(job.File)
				inFlight++
				go s.invoke(ctx, cred, job, results)
				// Keep assigning while other keys are eligible.
				continue
			}
		}

		timer := time.NewTimer(s.opts.Tick)
		select {
		case r := <-results:
			timer.Stop()
			inFlight--
			s.settleResult(r, &queue, agg, cancelled)
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
		case <-ctxDone:
			timer.Stop()
		}
	}

	// A cancelled run still accounts for every job: work that was never
	// assigned is reported as failed, not dropped silently.
	if cancelled {
		for !queue.empty() {
			job := queue.pop()
			job.State = JobFailed
			job.TerminalReason = "run cancelled before assignment"
			agg.jobSettled(job)
		}
	}

	now := s.opts.Clock()
	report := agg.report()
	report.Credentials = s.pool.Stats(now)
	report.Cancelled = cancelled
	report.StartedAt = started
	report.FinishedAt = now

	handle.report = &report
	agg.close()
	close(handle.done)
}

// validatePool probes every not-yet-validated key before dispatch so the run
// never wastes jobs on keys that were dead on arrival. Probes run
// concurrently with a bound; each outcome is applied through the pool.
func (s *Scheduler) validatePool(ctx context.Context) {
	ids := s.pool.Unvalidated()
	if len(ids) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ValidateConcurrency)
	for _, id := range ids {
		id := id
		if err := s.pool.BeginValidation(id); err != nil {
			continue
		}
		snap, ok := s.pool.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, s.opts.ProbeTimeout)
			defer cancel()

			probeErr := ""
			if err := s.val.Validate(probeCtx, snap.Secret); err != nil {
				probeErr = err.Error()
			}
			// The probe verdict is per-key; never abort the group.
			_ = s.pool.FinishValidation(id, probeErr)
			return nil
		})
	}
	_ = g.Wait()
}

// invoke runs one generation call and reports back on the results channel.
func (s *Scheduler) invoke(ctx context.Context, cred keypool.Snapshot, job *Job, results chan<- settled) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	result, err := s.gen.Generate(callCtx, cred.Secret, Request{File: job.File, Payload: job.Payload})
	results <- settled{job: job, credID: cred.ID, result: result, err: err}
}

// settleResult applies one completion: updates the pool, then finalizes or
// requeues the job. No single failure aborts the run.
func (s *Scheduler) settleResult(r settled, queue *jobQueue, agg *aggregator, cancelled bool) {
	now := s.opts.Clock()
	job := r.job

	if r.err == nil {
		s.pool.Settle(r.credID, keypool.OutcomeSuccess, "", now)
		job.State = JobSucceeded
		job.Result = r.result
		agg.jobSettled(job)
		return
	}

	class := classOf(r.err)
	s.pool.Settle(r.credID, poolOutcome(class), r.err.Error(), now)

	switch class {
	case ClassPermanent:
		job.State = JobFailed
		job.TerminalReason = r.err.Error()
		agg.jobSettled(job)
	case ClassAuth:
		// The key is now invalid; the job fails over to a different one.
		// A cancelled run assigns nothing more, so finalize instead of
		// leaving the job pending forever.
		if cancelled {
			job.State = JobFailed
			job.TerminalReason = fmt.Sprintf("run cancelled after credential failure: %v", r.err)
			agg.jobSettled(job)
			return
		}
		job.State = JobPending
		queue.push(job)
	default: // transient, quota
		if cancelled || job.Attempts > s.opts.MaxRetries {
			job.State = JobFailed
			job.TerminalReason = fmt.Sprintf("retry limit reached: %v", r.err)
			if cancelled {
				job.TerminalReason = fmt.Sprintf("run cancelled during retry: %v", r.err)
			}
			agg.jobSettled(job)
			return
		}
		job.State = JobPending
		queue.push(job)
	}
}
