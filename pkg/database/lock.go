package database

import (
	"context"
	"crypto/md5"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobshepherd/core/pkg/logger"
)

// AdvisoryLock is a Postgres advisory lock guarding the whole daemon: the
// process takes it once at startup so two daemons never supervise the same
// jobs. Reconcilers themselves take no locks.
//
// Advisory locks are session-scoped, so the lock is taken on a dedicated
// connection checked out of the pool and held until Release. Running the
// query through the pool would leave the lock on an arbitrary pooled
// session that gets recycled mid-run.
type AdvisoryLock struct {
	pool   *pgxpool.Pool
	conn   *pgxpool.Conn
	name   string
	lockID int64
	logger *logger.Logger
}

// NewAdvisoryLock creates an advisory lock keyed by name
func NewAdvisoryLock(pool *pgxpool.Pool, name string) *AdvisoryLock {
	return &AdvisoryLock{
		pool:   pool,
		name:   name,
		lockID: lockID(name),
		logger: logger.New("advisory-lock"),
	}
}

// lockID creates a consistent numeric lock ID from a name.
// PostgreSQL advisory locks require int64 keys.
func lockID(name string) int64 {
	hash := md5.Sum([]byte(name))

	id := int64(0)
	for i := 0; i < 8; i++ {
		id = id<<8 + int64(hash[i])
	}
	if id < 0 {
		id = -id
	}
	return id
}

// Acquire attempts to take the lock without blocking. Returns false if
// another session already holds it. On success the backing connection stays
// checked out until Release.
func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection for lock %s: %w", l.name, err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.name, err)
	}

	if !acquired {
		conn.Release()
		l.logger.Warn().
			Str("lock_name", l.name).
			Int64("lock_id", l.lockID).
			Str("action", "lock_already_held").
			Msg("Advisory lock held by another session")
		return false, nil
	}

	l.conn = conn
	l.logger.Info().
		Str("lock_name", l.name).
		Int64("lock_id", l.lockID).
		Str("action", "lock_acquired").
		Msg("Acquired advisory lock")
	return true, nil
}

// Release unlocks and returns the held connection to the pool. The lock is
// also released implicitly when the session ends, so this matters mainly
// for orderly shutdown. Calling Release without a held lock is a no-op.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}

	var released bool
	err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.name, err)
	}
	if !released {
		l.logger.Warn().
			Str("lock_name", l.name).
			Int64("lock_id", l.lockID).
			Str("action", "lock_not_held").
			Msg("Attempted to release lock that was not held")
	}
	return nil
}

// Held reports whether this process currently holds the lock.
func (l *AdvisoryLock) Held() bool {
	return l.conn != nil
}
