package models

import (
	"fmt"
	"time"

	"github.com/google/shlex"
)

// Job is one registered recurring job. Its name doubles as the identity of
// the container that backs it, so at most one container exists per job.
type Job struct {
	ID        int64
	Name      string
	Command   string
	Image     string
	Interval  time.Duration
	Active    bool
	Scheduled time.Time
}

// Argv splits the stored shell-style command into the argument vector the
// container is created with.
func (j Job) Argv() ([]string, error) {
	argv, err := shlex.Split(j.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to split command for job %s: %w", j.Name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("job %s has an empty command", j.Name)
	}
	return argv, nil
}

// NextScheduled computes the next run time recorded when a container is
// started. It always moves forward from now, never from the previous value.
func (j Job) NextScheduled(now time.Time) time.Time {
	return now.UTC().Add(j.Interval)
}

// JobEnv is one environment variable scoped to a job. The full set is
// materialized into the container's environment at init time.
type JobEnv struct {
	JobID int64
	Key   string
	Value string
}

// EnvStrings renders env rows as KEY=value pairs for the container runtime.
func EnvStrings(envs []JobEnv) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Key+"="+e.Value)
	}
	return out
}

// Run records one completed execution. Rows are append-only; exactly one row
// is written per reap.
type Run struct {
	ID        int64
	JobID     int64
	Failed    bool
	CreatedAt time.Time
}
