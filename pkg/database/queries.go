package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jobshepherd/core/pkg/models"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the same
// queries run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates a Queries bound to the given connection or transaction
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// WithTx returns Queries bound to the given transaction
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const selectJobColumns = `id, name, command, image,
	(EXTRACT(EPOCH FROM run_interval))::bigint, active, scheduled`

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		job       models.Job
		intervalS int64
	)
	err := row.Scan(&job.ID, &job.Name, &job.Command, &job.Image,
		&intervalS, &job.Active, &job.Scheduled)
	if err != nil {
		return models.Job{}, err
	}
	job.Interval = time.Duration(intervalS) * time.Second
	job.Scheduled = job.Scheduled.UTC()
	return job, nil
}

// ListJobs returns every registered job. Called once at daemon startup.
func (q *Queries) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := q.db.Query(ctx, `SELECT `+selectJobColumns+` FROM job ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}
	return jobs, nil
}

// GetJobByName returns one job row. Reconcilers re-read their row each cycle
// to pick up the scheduled time advanced by the previous start.
func (q *Queries) GetJobByName(ctx context.Context, name string) (models.Job, error) {
	row := q.db.QueryRow(ctx, `SELECT `+selectJobColumns+` FROM job WHERE name = $1`, name)
	job, err := scanJob(row)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to get job %s: %w", name, err)
	}
	return job, nil
}

// ListJobEnv returns the environment rows for a job
func (q *Queries) ListJobEnv(ctx context.Context, jobID int64) ([]models.JobEnv, error) {
	rows, err := q.db.Query(ctx,
		`SELECT job_id, key, value FROM job_env WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list env for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var envs []models.JobEnv
	for rows.Next() {
		var e models.JobEnv
		if err := rows.Scan(&e.JobID, &e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan env row: %w", err)
		}
		envs = append(envs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env rows: %w", err)
	}
	return envs, nil
}

// MarkJobStarted records that a container was launched: active goes true and
// the next run time is persisted in one statement.
func (q *Queries) MarkJobStarted(ctx context.Context, name string, scheduled time.Time) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE job SET active = TRUE, scheduled = $2 WHERE name = $1`,
		name, scheduled.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark job %s started: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to mark job %s started: no such job", name)
	}
	return nil
}

// MarkJobReaped clears the active flag
func (q *Queries) MarkJobReaped(ctx context.Context, name string) error {
	tag, err := q.db.Exec(ctx, `UPDATE job SET active = FALSE WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to mark job %s reaped: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to mark job %s reaped: no such job", name)
	}
	return nil
}

// InsertRun appends one execution record and returns its id
func (q *Queries) InsertRun(ctx context.Context, jobID int64, failed bool) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO run (job_id, failed) VALUES ($1, $2) RETURNING id`,
		jobID, failed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run for job %d: %w", jobID, err)
	}
	return id, nil
}

// DeleteRunsBefore removes run rows created before the cutoff and returns how
// many were deleted. Used by the maintenance pruner.
func (q *Queries) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM run WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
