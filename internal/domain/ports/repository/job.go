package repository

import (
	"context"
	"time"

	"youtube-outlier-discovery/internal/domain/model"
)

// JobRepository is the durable backing store of the job queue.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, queue, id string) (*model.Job, error)
	ListByQueue(ctx context.Context, tx Tx, queue string, states []model.JobState, limit int) ([]*model.Job, error)
	Remove(ctx context.Context, tx Tx, queue, id string) error

	// FetchAndMarkActive atomically claims the runnable job with the lowest
	// priority number (ties to the oldest) and marks it active, so no two
	// workers pick up the same job. Returns domain.ErrNotFound when idle.
	FetchAndMarkActive(ctx context.Context, queue string) (*model.Job, error)

	// Heartbeat refreshes the liveness timestamp of an active job.
	Heartbeat(ctx context.Context, queue, id string) error

	// RequeueStalled returns active jobs whose heartbeat is older than cutoff
	// to waiting (or failed once maxStalls is exceeded) and reports how many
	// jobs were touched.
	RequeueStalled(ctx context.Context, queue string, cutoff time.Time, maxStalls int) (int, error)

	// PromoteDelayed moves due delayed jobs to waiting.
	PromoteDelayed(ctx context.Context, queue string, now time.Time) (int, error)

	// PruneTerminal deletes completed/failed jobs finished before cutoff.
	PruneTerminal(ctx context.Context, queue string, cutoff time.Time) (int, error)
}
