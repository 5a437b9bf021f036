package jobs

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobshepherd/core/pkg/database/pool"
	"github.com/jobshepherd/core/pkg/logger"
)

// PoolStatsJob periodically logs connection pool statistics so a stalled
// reconciler holding connections shows up in the logs.
type PoolStatsJob struct {
	pool *pgxpool.Pool
}

func NewPoolStatsJob(p *pgxpool.Pool) *PoolStatsJob {
	return &PoolStatsJob{pool: p}
}

func (j *PoolStatsJob) Name() string {
	return "pool_stats"
}

func (j *PoolStatsJob) Schedule() string {
	return "@every 5m"
}

func (j *PoolStatsJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "pool-stats")

	stats := pool.GetStats(j.pool)
	log.Info().
		Str("action", "pool_stats").
		Int64("acquire_count", stats.AcquireCount).
		Int32("acquired_conns", stats.AcquiredConns).
		Int64("canceled_acquires", stats.CanceledAcquireCount).
		Int64("empty_acquires", stats.EmptyAcquireCount).
		Int32("idle_conns", stats.IdleConns).
		Int32("max_conns", stats.MaxConns).
		Int32("total_conns", stats.TotalConns).
		Msg("Connection pool statistics")
	return nil
}
