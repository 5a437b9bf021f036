package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jobshepherd/core/pkg/logger"
	"github.com/jobshepherd/core/pkg/models"
)

// Supervisor loads every job once at startup and runs one Reconciler per job
// for the lifetime of the process. Jobs registered after startup are picked
// up on the next restart; the supervisor never adds or removes reconcilers.
type Supervisor struct {
	store  JobStore
	rt     Runtime
	opts   Options
	logger *logger.Logger
}

// NewSupervisor wires the shared store and runtime handles into a supervisor.
func NewSupervisor(store JobStore, rt Runtime, opts Options) *Supervisor {
	return &Supervisor{
		store:  store,
		rt:     rt,
		opts:   opts,
		logger: logger.New("supervisor"),
	}
}

// Run blocks until ctx is canceled and every reconciler has returned. A
// fatal error in one reconciler ends only that job's supervision; the rest
// keep running.
func (s *Supervisor) Run(ctx context.Context) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	s.logger.Info().
		Str("action", "supervisor_start").
		Int("job_count", len(jobs)).
		Msg("Launching reconcilers")

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job models.Job) {
			defer wg.Done()
			s.superviseJob(ctx, job)
		}(job)
	}
	wg.Wait()

	s.logger.Info().
		Str("action", "supervisor_stop").
		Msg("All reconcilers stopped")
	return nil
}

func (s *Supervisor) superviseJob(ctx context.Context, job models.Job) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error().
				Str("action", "reconciler_panic").
				Str("job_name", job.Name).
				Interface("panic", p).
				Msg("Reconciler panicked, job supervision stopped until restart")
		}
	}()

	rec := New(s.store, s.rt, job, s.opts)
	err := rec.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error().
		Err(err).
		Str("action", "reconciler_stopped").
		Str("job_name", job.Name).
		Msg("Reconciler stopped with fatal error, job unsupervised until restart")
}
