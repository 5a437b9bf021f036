package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jobshepherd/core/internal/config"
	"github.com/jobshepherd/core/pkg/database"
	"github.com/jobshepherd/core/pkg/database/pool"
	"github.com/jobshepherd/core/pkg/jobs"
	"github.com/jobshepherd/core/pkg/logger"
	"github.com/jobshepherd/core/pkg/reconciler"
	"github.com/jobshepherd/core/pkg/runtime"
)

func main() {
	var (
		jobName = flag.String("job", "", "Run one cycle of the named job and exit (requires -once)")
		once    = flag.Bool("once", false, "Run a single cycle instead of supervising")
	)
	flag.Parse()

	logger.SetupLogger()
	log := logger.New("daemon")

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pool.New(ctx, cfg.DatabaseURL(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)

	rt, err := runtime.New(cfg.Runtime.Host, cfg.Runtime.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to container runtime: %v", err)
	}

	// One daemon per store: a second process supervising the same jobs would
	// race this one on containers and job rows.
	guard := database.NewAdvisoryLock(db, "jobshepherd-daemon")
	acquired, err := guard.Acquire(ctx)
	if err != nil {
		log.Fatalf("Failed to acquire daemon lock: %v", err)
	}
	if !acquired {
		log.Fatalf("Another daemon already supervises this database")
	}
	defer func() { _ = guard.Release(context.Background()) }()

	opts := reconciler.Options{
		JitterMin: cfg.Daemon.JitterMin,
		JitterMax: cfg.Daemon.JitterMax,
	}

	if *once {
		if *jobName == "" {
			log.Fatalf("-once requires -job")
		}
		job, err := store.GetJobByName(ctx, *jobName)
		if err != nil {
			log.Fatalf("Failed to load job %s: %v", *jobName, err)
		}
		rec := reconciler.New(store, rt, job, opts)
		if err := rec.RunOnce(ctx); err != nil {
			log.Fatalf("Job %s failed: %v", *jobName, err)
		}
		log.Info().Str("job_name", *jobName).Msg("Single cycle completed")
		return
	}

	maintenance := jobs.NewJobManager()
	if err := maintenance.RegisterJob(jobs.NewPruneRunsJob(store, cfg.Daemon.RunRetention)); err != nil {
		log.Fatalf("Failed to register prune job: %v", err)
	}
	if err := maintenance.RegisterJob(jobs.NewPoolStatsJob(db)); err != nil {
		log.Fatalf("Failed to register pool stats job: %v", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	supervisor := reconciler.NewSupervisor(store, rt, opts)
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatalf("Supervisor failed: %v", err)
		}
	}
	log.Info().Msg("Daemon stopped")
}
