package repository

import (
	"context"

	"youtube-outlier-discovery/internal/domain/model"
)

// AnalysisRunRepository persists runs keyed by id. Runs are mutated only by
// the orchestrator (status, results) and queue bookkeeping.
type AnalysisRunRepository interface {
	Save(ctx context.Context, tx Tx, run *model.AnalysisRun) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.AnalysisRun, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.AnalysisRun, error)
	// UpdateStatus transitions a run atomically, refusing illegal transitions
	// at the storage level so two workers cannot both finish one run.
	UpdateStatus(ctx context.Context, tx Tx, id string, from, to model.RunStatus) error
}
