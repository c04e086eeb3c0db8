package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
)

var _ repository.AnalysisRunRepository = (*analysisRunRepo)(nil)

type analysisRunRepo struct {
	pool *pgxpool.Pool
}

func NewAnalysisRunRepo(pool *pgxpool.Pool) *analysisRunRepo {
	return &analysisRunRepo{pool: pool}
}

func (r *analysisRunRepo) Save(ctx context.Context, tx repository.Tx, run *model.AnalysisRun) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	var results, summary []byte
	if run.Results != nil {
		if results, err = json.Marshal(run.Results); err != nil {
			return err
		}
	}
	if run.Summary != nil {
		if summary, err = json.Marshal(run.Summary); err != nil {
			return err
		}
	}

	const q = `
INSERT INTO analysis_runs
  (id, owner_id, name, description, config, status, results, summary, fail_reason,
   created_at, started_at, completed_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  results = EXCLUDED.results,
  summary = EXCLUDED.summary,
  fail_reason = EXCLUDED.fail_reason,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  updated_at = now();`

	_, err = execSQL(ctx, r.pool, tx, q,
		run.ID, run.OwnerID, run.Name, run.Description, cfg, run.Status,
		results, summary, run.FailReason, run.CreatedAt, run.StartedAt, run.CompletedAt)
	return err
}

const runColumns = `id, owner_id, name, description, config, status, results, summary,
  fail_reason, created_at, started_at, completed_at`

func scanRun(row pgx.Row) (*model.AnalysisRun, error) {
	var run model.AnalysisRun
	var status string
	var cfg, results, summary []byte
	err := row.Scan(&run.ID, &run.OwnerID, &run.Name, &run.Description, &cfg, &status,
		&results, &summary, &run.FailReason, &run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	run.Status = model.RunStatus(status)
	if err := json.Unmarshal(cfg, &run.Config); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &run.Results); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(summary) > 0 {
		run.Summary = &model.AnalysisSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &run, nil
}

func (r *analysisRunRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AnalysisRun, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanRun(row)
}

func (r *analysisRunRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	// Run ids are ULIDs, so ordering by id is ordering by creation time.
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE owner_id = $1 ORDER BY id DESC LIMIT $2;`,
		ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// UpdateStatus performs a compare-and-swap on the status column so illegal
// transitions (and double-finishes from two workers) fail with ErrNotFound.
func (r *analysisRunRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.RunStatus) error {
	var started, completed *time.Time
	now := time.Now()
	switch to {
	case model.RunStatusProcessing:
		started = &now
	case model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusCancelled:
		completed = &now
	}

	const q = `
UPDATE analysis_runs SET
  status = $3,
  started_at = COALESCE($4, started_at),
  completed_at = COALESCE($5, completed_at),
  updated_at = now()
WHERE id = $1 AND status = $2;`

	tag, err := execSQL(ctx, r.pool, tx, q, id, from, to, started, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
