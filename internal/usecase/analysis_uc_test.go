package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/infra/queue"
)

type recordCanceller struct{ cancelled []string }

func (c *recordCanceller) CancelRun(runID string) { c.cancelled = append(c.cancelled, runID) }

func newTestAnalysisUC(t *testing.T) (*AnalysisUseCase, *memRunRepo, *queue.MemoryJobRepo, *recordCanceller, *captureProgress) {
	t.Helper()
	l := zerolog.Nop()
	runRepo := newMemRunRepo()
	jobRepo := queue.NewMemoryJobRepo()
	mgr := queue.NewManager(jobRepo, map[string]config.QueueConfig{
		config.QueueAnalysis: {Workers: 1, MaxAttempts: 3, BackoffBase: time.Second,
			BackoffCap: time.Minute, StallTimeout: time.Minute, MaxStalls: 2, Retention: time.Hour},
	}, nil, &l)
	canceller := &recordCanceller{}
	prog := &captureProgress{}
	uc := NewAnalysisUseCase(runRepo, mgr, canceller, prog, testAnalysisCfg(), &l)
	return uc, runRepo, jobRepo, canceller, prog
}

func validRunConfig() model.AnalysisConfig {
	return model.AnalysisConfig{
		SearchQueries:  []string{"family gaming"},
		SubscriberBand: model.SubscriberBand{Min: 10000, Max: 500000},
		WindowDays:     30,
	}
}

func TestAnalysis_SubmitPersistsAndEnqueues(t *testing.T) {
	t.Parallel()

	uc, runRepo, jobRepo, _, _ := newTestAnalysisUC(t)
	ctx := context.Background()

	run, err := uc.Submit(ctx, "owner-1", "my run", "first try", validRunConfig())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != model.RunStatusPending {
		t.Fatalf("expected pending, got %s", run.Status)
	}
	if run.Config.MaxResults != testAnalysisCfg().DefaultMaxResults {
		t.Fatalf("expected default result cap, got %d", run.Config.MaxResults)
	}

	stored, err := runRepo.FindByID(ctx, nil, run.ID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if stored.Description != "first try" {
		t.Fatalf("description lost: %q", stored.Description)
	}

	jobs, err := jobRepo.ListByQueue(ctx, nil, config.QueueAnalysis, nil, 10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d (%v)", len(jobs), err)
	}
	var p RunJobPayload
	if err := json.Unmarshal(jobs[0].Payload, &p); err != nil || p.RunID != run.ID {
		t.Fatalf("job payload must carry the run id: %+v %v", p, err)
	}
	if jobs[0].Type != JobTypeRunAnalysis {
		t.Fatalf("unexpected job type %q", jobs[0].Type)
	}
}

func TestAnalysis_SubmitRejectsBadConfig(t *testing.T) {
	t.Parallel()

	uc, _, jobRepo, _, _ := newTestAnalysisUC(t)
	cfg := validRunConfig()
	cfg.SearchQueries = nil

	if _, err := uc.Submit(context.Background(), "owner-1", "bad", "", cfg); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	jobs, _ := jobRepo.ListByQueue(context.Background(), nil, config.QueueAnalysis, nil, 10)
	if len(jobs) != 0 {
		t.Fatalf("rejected submission must not enqueue")
	}
}

func TestAnalysis_SubmitTwiceMakesTwoRuns(t *testing.T) {
	t.Parallel()

	uc, _, jobRepo, _, _ := newTestAnalysisUC(t)
	ctx := context.Background()

	r1, err := uc.Submit(ctx, "owner-1", "same", "", validRunConfig())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r2, err := uc.Submit(ctx, "owner-1", "same", "", validRunConfig())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r1.ID == r2.ID {
		t.Fatalf("identical configurations must produce independent runs")
	}
	jobs, _ := jobRepo.ListByQueue(ctx, nil, config.QueueAnalysis, nil, 10)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestAnalysis_GetScopedToOwner(t *testing.T) {
	t.Parallel()

	uc, _, _, _, _ := newTestAnalysisUC(t)
	ctx := context.Background()

	run, err := uc.Submit(ctx, "owner-1", "mine", "", validRunConfig())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := uc.Get(ctx, "owner-1", run.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := uc.Get(ctx, "owner-2", run.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign owner must see not-found, got %v", err)
	}
}

func TestAnalysis_ListNewestFirst(t *testing.T) {
	t.Parallel()

	uc, _, _, _, _ := newTestAnalysisUC(t)
	ctx := context.Background()

	first, _ := uc.Submit(ctx, "owner-1", "one", "", validRunConfig())
	second, _ := uc.Submit(ctx, "owner-1", "two", "", validRunConfig())

	runs, err := uc.List(ctx, "owner-1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}
}

func TestAnalysis_CancelPendingRun(t *testing.T) {
	t.Parallel()

	uc, _, _, canceller, prog := newTestAnalysisUC(t)
	ctx := context.Background()

	run, _ := uc.Submit(ctx, "owner-1", "to cancel", "", validRunConfig())
	got, err := uc.Cancel(ctx, "owner-1", run.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != model.RunStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != run.ID {
		t.Fatalf("in-flight canceller not invoked: %v", canceller.cancelled)
	}
	if closed := prog.closedRuns(); len(closed) != 1 {
		t.Fatalf("progress channel must be closed on cancel")
	}
}

func TestAnalysis_CancelRetriesAfterWorkerClaims(t *testing.T) {
	t.Parallel()

	l := zerolog.Nop()
	repo := &racingRunRepo{memRunRepo: newMemRunRepo()}
	jobRepo := queue.NewMemoryJobRepo()
	mgr := queue.NewManager(jobRepo, map[string]config.QueueConfig{
		config.QueueAnalysis: {Workers: 1, MaxAttempts: 3, BackoffBase: time.Second,
			BackoffCap: time.Minute, StallTimeout: time.Minute, MaxStalls: 2, Retention: time.Hour},
	}, nil, &l)
	canceller := &recordCanceller{}
	uc := NewAnalysisUseCase(repo, mgr, canceller, &captureProgress{}, testAnalysisCfg(), &l)
	ctx := context.Background()

	run, err := uc.Submit(ctx, "owner-1", "raced", "", validRunConfig())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A worker claims the run between the cancel's read and its CAS; the
	// cancel must retry against the fresh processing status, not error out.
	got, err := uc.Cancel(ctx, "owner-1", run.ID)
	if err != nil {
		t.Fatalf("Cancel must survive a concurrent claim: %v", err)
	}
	if got.Status != model.RunStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatalf("the claim that raced the cancel must have marked the start")
	}
	if len(canceller.cancelled) != 1 {
		t.Fatalf("in-flight canceller not invoked: %v", canceller.cancelled)
	}
}

func TestAnalysis_CancelTerminalRunRejected(t *testing.T) {
	t.Parallel()

	uc, runRepo, _, _, _ := newTestAnalysisUC(t)
	ctx := context.Background()

	run, _ := uc.Submit(ctx, "owner-1", "done already", "", validRunConfig())
	_ = runRepo.UpdateStatus(ctx, nil, run.ID, model.RunStatusPending, model.RunStatusProcessing)
	_ = runRepo.UpdateStatus(ctx, nil, run.ID, model.RunStatusProcessing, model.RunStatusCompleted)

	if _, err := uc.Cancel(ctx, "owner-1", run.ID); !errors.Is(err, domain.ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal, got %v", err)
	}
}
