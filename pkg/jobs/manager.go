package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobshepherd/core/pkg/logger"
)

type cronJobManager struct {
	cron *cron.Cron
	jobs []Job
	log  *logger.Logger
}

// NewJobManager creates a new maintenance job manager
func NewJobManager() JobManager {
	return &cronJobManager{
		cron: cron.New(cron.WithLocation(time.UTC)),
		jobs: make([]Job, 0),
		log:  logger.New("maintenance"),
	}
}

func (m *cronJobManager) RegisterJob(job Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	m.log.Info().
		Str("action", "register_job").
		Str("job_name", job.Name()).
		Str("schedule", job.Schedule()).
		Msg("Registering maintenance job")

	_, err := m.cron.AddFunc(job.Schedule(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		log := m.log.WithJob(job.Name())
		ctx = log.ToContext(ctx)

		start := time.Now()
		log.Info().Str("action", "job_start").Msg("Starting maintenance job")

		if err := job.Execute(ctx); err != nil {
			log.Error().
				Err(err).
				Str("action", "job_failed").
				Dur("duration", time.Since(start)).
				Msg("Maintenance job failed")
		} else {
			log.Info().
				Str("action", "job_complete").
				Dur("duration", time.Since(start)).
				Msg("Maintenance job completed")
		}
	})

	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}

	m.jobs = append(m.jobs, job)
	return nil
}

func (m *cronJobManager) Start() {
	m.log.Info().
		Str("action", "manager_start").
		Int("job_count", len(m.jobs)).
		Msg("Starting maintenance job manager")
	m.cron.Start()
}

func (m *cronJobManager) Stop() {
	m.log.Info().Str("action", "manager_stop").Msg("Stopping maintenance job manager")
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *cronJobManager) GetJobs() []Job {
	return append([]Job(nil), m.jobs...)
}
