package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// jobRepo is the durable queue backing store. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never fight over one job.
type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, queue, type, payload, priority, state, attempts, max_attempts,
  stall_count, last_error, run_after, heartbeat_at, created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs
  (id, queue, type, payload, priority, state, attempts, max_attempts, stall_count,
   last_error, run_after, heartbeat_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  attempts = EXCLUDED.attempts,
  stall_count = EXCLUDED.stall_count,
  last_error = EXCLUDED.last_error,
  run_after = EXCLUDED.run_after,
  heartbeat_at = EXCLUDED.heartbeat_at,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Queue, job.Type, job.Payload, job.Priority, job.State,
		job.Attempts, job.MaxAttempts, job.StallCount, job.LastError,
		job.RunAfter, job.HeartbeatAt, job.CreatedAt, job.UpdatedAt)
	return err
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var state string
	err := row.Scan(&j.ID, &j.Queue, &j.Type, &j.Payload, &j.Priority, &state,
		&j.Attempts, &j.MaxAttempts, &j.StallCount, &j.LastError,
		&j.RunAfter, &j.HeartbeatAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.State = model.JobState(state)
	return &j, nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, queue, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE queue = $1 AND id = $2;`, queue, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListByQueue(ctx context.Context, tx repository.Tx, queue string, states []model.JobState, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE queue = $1`
	args := []interface{}{queue}
	if len(states) > 0 {
		strs := make([]string, len(states))
		for i, s := range states {
			strs[i] = string(s)
		}
		q += ` AND state = ANY($2) ORDER BY priority, created_at LIMIT $3;`
		args = append(args, strs, limit)
	} else {
		q += ` ORDER BY priority, created_at LIMIT $2;`
		args = append(args, limit)
	}

	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) Remove(ctx context.Context, tx repository.Tx, queue, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM jobs WHERE queue = $1 AND id = $2;`, queue, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FetchAndMarkActive claims the runnable job with the lowest priority number,
// ties to the oldest, and marks it active in the same transaction.
func (r *jobRepo) FetchAndMarkActive(ctx context.Context, queue string) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM jobs
WHERE queue = $1 AND state = 'waiting' AND run_after <= now()
ORDER BY priority, created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery, queue)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		fetched.State = model.JobStateActive
		fetched.Attempts++
		fetched.HeartbeatAt = time.Now()
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) Heartbeat(ctx context.Context, queue, id string) error {
	tag, err := execSQL(ctx, r.pool, nil,
		`UPDATE jobs SET heartbeat_at = now() WHERE queue = $1 AND id = $2 AND state = 'active';`,
		queue, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RequeueStalled returns dead workers' jobs to the queue; jobs stalled more
// than maxStalls times are failed instead, so a poisonous job cannot loop.
func (r *jobRepo) RequeueStalled(ctx context.Context, queue string, cutoff time.Time, maxStalls int) (int, error) {
	const q = `
UPDATE jobs SET
  state = CASE WHEN stall_count + 1 > $3 THEN 'failed' ELSE 'waiting' END,
  stall_count = stall_count + 1,
  last_error = CASE WHEN stall_count + 1 > $3
    THEN 'stalled too many times' ELSE 'stalled; requeued' END,
  updated_at = now()
WHERE queue = $1 AND state = 'active' AND heartbeat_at < $2;`

	tag, err := execSQL(ctx, r.pool, nil, q, queue, cutoff, maxStalls)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *jobRepo) PromoteDelayed(ctx context.Context, queue string, now time.Time) (int, error) {
	tag, err := execSQL(ctx, r.pool, nil,
		`UPDATE jobs SET state = 'waiting', updated_at = now()
		 WHERE queue = $1 AND state = 'delayed' AND run_after <= $2;`, queue, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *jobRepo) PruneTerminal(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	tag, err := execSQL(ctx, r.pool, nil,
		`DELETE FROM jobs WHERE queue = $1 AND state IN ('completed','failed') AND updated_at < $2;`,
		queue, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
