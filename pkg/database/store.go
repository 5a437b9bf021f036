package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps Queries with the transactional operations the reconcilers need.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore creates a Store over a shared connection pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: New(pool),
		pool:    pool,
	}
}

// ReapJob records a finished execution as one unit: the active flag is
// cleared and the run row inserted in a single transaction, so a crash never
// leaves one without the other.
func (s *Store) ReapJob(ctx context.Context, jobID int64, name string, failed bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reap transaction for job %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := s.Queries.WithTx(tx)
	if err := q.MarkJobReaped(ctx, name); err != nil {
		return err
	}
	if _, err := q.InsertRun(ctx, jobID, failed); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reap for job %s: %w", name, err)
	}
	return nil
}
