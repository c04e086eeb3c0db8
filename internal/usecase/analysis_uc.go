package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
	"youtube-outlier-discovery/internal/domain/ports/repository"
	"youtube-outlier-discovery/internal/infra/logging"
	"youtube-outlier-discovery/internal/infra/metrics"
	"youtube-outlier-discovery/internal/infra/queue"
)

// JobEnqueuer is the slice of the queue manager the API-facing use case
// needs: hand a job to a lane and forget about it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts queue.EnqueueOptions) (*model.Job, error)
}

// RunCanceller interrupts a run executing in this process.
type RunCanceller interface {
	CancelRun(runID string)
}

// AnalysisUseCase is the API-facing run lifecycle: submit, inspect, cancel.
// Pipeline execution itself lives in the orchestrator behind the job queue.
type AnalysisUseCase struct {
	runRepo   repository.AnalysisRunRepository
	jobs      JobEnqueuer
	canceller RunCanceller
	progress  adapter.ProgressPublisher
	cfg       config.AnalysisConfig
	log       *zerolog.Logger

	idMu    sync.Mutex // the monotonic entropy source is not safe for concurrent use
	entropy *ulid.MonotonicEntropy
}

func NewAnalysisUseCase(
	runRepo repository.AnalysisRunRepository,
	jobs JobEnqueuer,
	canceller RunCanceller,
	progress adapter.ProgressPublisher,
	cfg config.AnalysisConfig,
	logger *zerolog.Logger,
) *AnalysisUseCase {
	compLog := logger.With().Str("component", "analysis").Logger()
	return &AnalysisUseCase{
		runRepo:   runRepo,
		jobs:      jobs,
		canceller: canceller,
		progress:  progress,
		cfg:       cfg,
		log:       &compLog,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Submit validates the configuration, persists a pending run and enqueues
// its pipeline job. Submitting the same configuration twice yields two
// independent runs.
func (uc *AnalysisUseCase) Submit(ctx context.Context, ownerID, name, description string, runCfg model.AnalysisConfig) (*model.AnalysisRun, error) {
	if runCfg.MaxResults <= 0 {
		runCfg.MaxResults = uc.cfg.DefaultMaxResults
	}

	// ULIDs keep run ids time-sortable, which the listing queries exploit.
	uc.idMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), uc.entropy).String()
	uc.idMu.Unlock()
	run, err := model.NewAnalysisRun(id, ownerID, name, runCfg)
	if err != nil {
		return nil, err
	}
	run.Description = description

	if err := uc.runRepo.Save(ctx, nil, run); err != nil {
		return nil, err
	}
	if _, err := uc.jobs.Enqueue(ctx, config.QueueAnalysis, JobTypeRunAnalysis, RunJobPayload{RunID: run.ID}, queue.EnqueueOptions{}); err != nil {
		return nil, err
	}

	// The owner id travels in the context, stamped by the web layer.
	logging.With(ctx, uc.log).Info().Str("run_id", run.ID).
		Int("queries", len(runCfg.SearchQueries)).Msg("run submitted")
	return run, nil
}

// Get returns a run, scoped to its owner.
func (uc *AnalysisUseCase) Get(ctx context.Context, ownerID, id string) (*model.AnalysisRun, error) {
	run, err := uc.runRepo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if run.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

// List returns the owner's runs, newest first.
func (uc *AnalysisUseCase) List(ctx context.Context, ownerID string, limit int) ([]*model.AnalysisRun, error) {
	return uc.runRepo.ListByOwner(ctx, nil, ownerID, limit)
}

// Cancel moves a non-terminal run to cancelled and interrupts its pipeline
// if it is executing here. The status flip is a storage-level CAS, so a run
// finishing concurrently wins and stays completed.
func (uc *AnalysisUseCase) Cancel(ctx context.Context, ownerID, id string) (*model.AnalysisRun, error) {
	// A worker may claim the run between the read and the swap (pending
	// flips to processing); a failed CAS re-reads and tries again against
	// the fresh status. Statuses are monotonic, so this settles quickly.
	for {
		run, err := uc.Get(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return nil, domain.ErrRunTerminal
		}
		err = uc.runRepo.UpdateStatus(ctx, nil, id, run.Status, model.RunStatusCancelled)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if uc.canceller != nil {
		uc.canceller.CancelRun(id)
	}

	if uc.progress != nil {
		uc.progress.Publish(model.ProgressEvent{
			RunID:   id,
			Stage:   model.StageDone,
			Name:    model.StageDone.String(),
			Percent: pctDone,
			Message: "analysis cancelled",
		})
		uc.progress.Close(id)
	}
	metrics.IncRun(string(model.RunStatusCancelled))
	logging.With(ctx, uc.log).Info().Str("run_id", id).Msg("run cancelled")

	return uc.runRepo.FindByID(ctx, nil, id)
}
