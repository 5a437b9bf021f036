package reconciler

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jobshepherd/core/pkg/logger"
	"github.com/jobshepherd/core/pkg/models"
	"github.com/jobshepherd/core/pkg/utils"
)

// Options tunes reconciler behavior shared across all jobs.
type Options struct {
	// JitterMin/JitterMax bound the randomized delay before the first probe.
	JitterMin time.Duration
	JitterMax time.Duration
}

// Reconciler supervises one job for the lifetime of the process. It owns the
// only goroutine that touches the job's container, so no locking is needed:
// isolation between jobs comes from disjoint container names and disjoint
// job rows.
//
// The loop it runs:
//
//	entry    recover from whatever persisted and live state say (see Run)
//	forever  init -> sleep until scheduled -> start (blocks through wait+reap)
type Reconciler struct {
	store JobStore
	rt    Runtime
	job   models.Job
	unit  string
	opts  Options

	// base carries the job/unit fields; log additionally carries the
	// current cycle's request ID so every operation in one cycle
	// correlates. Only the reconciler's own goroutine touches log.
	base *logger.Logger
	log  *logger.Logger

	// overridable for tests
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	cycleID func() string
}

// New creates a reconciler for one job record.
func New(store JobStore, rt Runtime, job models.Job, opts Options) *Reconciler {
	unit := utils.UnitName(job.Name)
	base := logger.New("reconciler").WithJob(job.Name).WithUnit(unit)
	return &Reconciler{
		store:   store,
		rt:      rt,
		job:     job,
		unit:    unit,
		opts:    opts,
		base:    base,
		log:     base,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepCtx,
		cycleID: func() string { return uuid.New().String() },
	}
}

// Run drives the job until ctx is canceled or a fatal error surfaces. It
// never returns in normal operation.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info().
		Str("action", "enter").
		Bool("active", r.job.Active).
		Msg("Entering reconciliation")

	// Spread the first probes out so process start does not hit the runtime
	// and the store with every job at once.
	if err := r.sleep(ctx, r.jitter()); err != nil {
		return err
	}

	if err := r.recoverBaseline(ctx); err != nil {
		return err
	}

	for {
		r.beginCycle()

		if err := r.init(ctx); err != nil {
			return err
		}

		// Re-read the row: the previous start advanced scheduled, and
		// registration tooling may have changed command or image.
		job, err := r.store.GetJobByName(ctx, r.job.Name)
		if err != nil {
			return err
		}
		r.job = job

		delay := job.Scheduled.Sub(r.now())
		if delay < 0 {
			delay = 0
		}
		r.log.Info().
			Str("action", "sleep").
			Dur("delay", delay).
			Time("scheduled", job.Scheduled).
			Msg("Sleeping until next scheduled run")
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}

		r.log.LogCycleStart(job.Name, job.Scheduled)
		if err := r.start(ctx); err != nil {
			return err
		}
	}
}

// beginCycle installs a fresh request-scoped logger derived from the base,
// so init/start/wait/reap logs within one cycle share its request ID.
func (r *Reconciler) beginCycle() {
	r.log = r.base.WithRequestID(r.cycleID())
}

// RunOnce performs recovery and exactly one init/start cycle, ignoring the
// scheduled time. Used by the -once flag.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	r.beginCycle()
	if err := r.recoverBaseline(ctx); err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}
	return r.start(ctx)
}

// recoverBaseline reconciles the persisted active flag with the live
// container state and drives at most one corrective operation:
//
//	active | container        | action
//	false  | anything         | nothing, already consistent
//	true   | absent           | recreate and start (a start was recorded but
//	       |                  | the container is gone)
//	true   | present, exited  | reap
//	true   | present, running | wait out the in-flight execution
//
// After it returns without error the job is reaped and the steady-state
// cycle may begin.
func (r *Reconciler) recoverBaseline(ctx context.Context) error {
	st, err := r.rt.Probe(ctx, r.unit)
	if err != nil {
		return err
	}

	if !r.job.Active {
		return nil
	}

	switch {
	case !st.Present:
		r.log.Warn().
			Str("action", "recover_missing").
			Msg("Job marked active but container is gone, restarting")
		if err := r.init(ctx); err != nil {
			return err
		}
		return r.start(ctx)
	case st.Running:
		r.log.Info().
			Str("action", "recover_running").
			Msg("Job active with running container, resuming supervision")
		return r.wait(ctx)
	default:
		r.log.Info().
			Str("action", "recover_reapable").
			Int("exit_code", st.ExitCode).
			Msg("Job active with exited container, reaping")
		return r.reap(ctx)
	}
}

func (r *Reconciler) jitter() time.Duration {
	min, max := r.opts.JitterMin, r.opts.JitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
