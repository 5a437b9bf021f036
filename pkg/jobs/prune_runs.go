package jobs

import (
	"context"
	"time"

	"github.com/jobshepherd/core/pkg/logger"
)

// RunPruner is the slice of the store the pruner needs.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneRunsJob deletes run history older than the retention window. Run rows
// are append-only, so without pruning the table grows without bound.
type PruneRunsJob struct {
	store     RunPruner
	retention time.Duration
}

func NewPruneRunsJob(store RunPruner, retention time.Duration) *PruneRunsJob {
	return &PruneRunsJob{
		store:     store,
		retention: retention,
	}
}

func (j *PruneRunsJob) Name() string {
	return "prune_runs"
}

func (j *PruneRunsJob) Schedule() string {
	// Once a day, off-peak
	return "0 3 * * *"
}

func (j *PruneRunsJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "prune-runs")

	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	log.Info().
		Str("action", "runs_pruned").
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Msg("Pruned old run history")
	return nil
}
