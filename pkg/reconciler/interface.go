package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/jobshepherd/core/pkg/models"
	"github.com/jobshepherd/core/pkg/runtime"
)

// ErrUnitRunning reports an invariant violation: reap or init was asked to
// act on a container that is still running. It is fatal to the job's
// reconciler, never retried.
var ErrUnitRunning = errors.New("container is still running")

// ErrUnitMissing reports a reap attempt against a container the runtime does
// not know. Like ErrUnitRunning it signals a reconciliation bug.
var ErrUnitMissing = errors.New("container does not exist")

// JobStore is the persistence surface the reconcilers drive. *database.Store
// satisfies it; tests use an in-memory fake.
type JobStore interface {
	ListJobs(ctx context.Context) ([]models.Job, error)
	GetJobByName(ctx context.Context, name string) (models.Job, error)
	ListJobEnv(ctx context.Context, jobID int64) ([]models.JobEnv, error)
	MarkJobStarted(ctx context.Context, name string, scheduled time.Time) error
	ReapJob(ctx context.Context, jobID int64, name string, failed bool) error
}

// Runtime is the container runtime surface. *runtime.Client satisfies it.
type Runtime interface {
	Probe(ctx context.Context, name string) (runtime.Status, error)
	Create(ctx context.Context, spec runtime.CreateSpec) error
	Start(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Wait(ctx context.Context, name string) (int, error)
}
