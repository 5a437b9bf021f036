package reconciler

import (
	"context"
	"fmt"
	"slices"

	"github.com/jobshepherd/core/pkg/models"
	"github.com/jobshepherd/core/pkg/runtime"
)

// reap records a finished execution: active goes false and one run row is
// inserted, transactionally. The exit code comes from a fresh probe so a
// restart between wait and reap still records the right outcome.
func (r *Reconciler) reap(ctx context.Context) error {
	st, err := r.rt.Probe(ctx, r.unit)
	if err != nil {
		return err
	}
	if !st.Present {
		return fmt.Errorf("cannot reap job %s: %w", r.job.Name, ErrUnitMissing)
	}
	if st.Running {
		return fmt.Errorf("cannot reap job %s: %w", r.job.Name, ErrUnitRunning)
	}

	failed := st.ExitCode != 0
	if err := r.store.ReapJob(ctx, r.job.ID, r.job.Name, failed); err != nil {
		return err
	}
	r.job.Active = false
	r.log.LogReap(r.job.Name, st.ExitCode, failed)
	return nil
}

// wait suspends until the container exits, then reaps it.
func (r *Reconciler) wait(ctx context.Context) error {
	if _, err := r.rt.Wait(ctx, r.unit); err != nil {
		return err
	}
	return r.reap(ctx)
}

// init ensures a stopped container exists that matches the job's current
// command and image. A container whose configuration drifted is removed and
// recreated; an up-to-date one is left untouched, so repeated calls with an
// unchanged job are no-ops.
func (r *Reconciler) init(ctx context.Context) error {
	st, err := r.rt.Probe(ctx, r.unit)
	if err != nil {
		return err
	}
	if st.Present && st.Running {
		return fmt.Errorf("cannot init job %s: %w", r.job.Name, ErrUnitRunning)
	}

	argv, err := r.job.Argv()
	if err != nil {
		return err
	}

	if st.Present && (!slices.Equal(st.Cmd, argv) || st.Image != r.job.Image) {
		r.log.Info().
			Str("action", "drift_detected").
			Strs("want_cmd", argv).
			Strs("have_cmd", st.Cmd).
			Str("want_image", r.job.Image).
			Str("have_image", st.Image).
			Msg("Container configuration drifted, recreating")
		if err := r.rt.Remove(ctx, r.unit); err != nil {
			return err
		}
		st.Present = false
	}

	if !st.Present {
		envs, err := r.store.ListJobEnv(ctx, r.job.ID)
		if err != nil {
			return err
		}
		r.log.Info().Str("action", "create_unit").Msg("Creating container")
		if err := r.rt.Create(ctx, runtime.CreateSpec{
			Name:  r.unit,
			Cmd:   argv,
			Image: r.job.Image,
			Env:   models.EnvStrings(envs),
		}); err != nil {
			return err
		}
	}
	return nil
}

// start launches the prepared container, persists active=true together with
// the next scheduled time, then supervises the execution to completion. It
// returns only after the run has been reaped.
func (r *Reconciler) start(ctx context.Context) error {
	if err := r.rt.Start(ctx, r.unit); err != nil {
		return err
	}

	next := r.job.NextScheduled(r.now())
	if err := r.store.MarkJobStarted(ctx, r.job.Name, next); err != nil {
		return err
	}
	r.job.Active = true
	r.job.Scheduled = next

	return r.wait(ctx)
}
