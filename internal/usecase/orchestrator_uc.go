package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

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

// JobTypeRunAnalysis is the job type the orchestrator handles on the
// analysis queue.
const JobTypeRunAnalysis = "run_analysis"

// JobTypeNotifyRun is enqueued on the notify lane when a run terminates.
const JobTypeNotifyRun = "notify_run"

// RunJobPayload is the payload of a run_analysis job.
type RunJobPayload struct {
	RunID string `json:"run_id"`
}

// NotifyJobPayload is the payload of a notify_run job.
type NotifyJobPayload struct {
	RunID  string          `json:"run_id"`
	Status model.RunStatus `json:"status"`
}

// Overall percent ranges per pipeline stage. Each stage reports progress
// inside its own band so subscribers see a single non-decreasing number.
const (
	pctExclusionsStart = 10
	pctDiscoveryStart  = 30
	pctScoringStart    = 55
	pctRankingStart    = 90
	pctDone            = 100
)

// AnalysisOrchestrator drives one run through the pipeline stages:
// exclusions, discovery, scoring, ranking. It owns the cancel registry that
// lets the API interrupt a run between and inside stages; the persisted run
// status is always the source of truth for what the interruption meant.
type AnalysisOrchestrator struct {
	runRepo  repository.AnalysisRunRepository
	excl     *ExclusionBuilderUseCase
	disc     *ChannelDiscoveryUseCase
	score    *ChannelScoringUseCase
	progress adapter.ProgressPublisher
	cfg      config.AnalysisConfig
	log      *zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	notify  JobEnqueuer
}

func NewAnalysisOrchestrator(
	runRepo repository.AnalysisRunRepository,
	excl *ExclusionBuilderUseCase,
	disc *ChannelDiscoveryUseCase,
	score *ChannelScoringUseCase,
	progress adapter.ProgressPublisher,
	cfg config.AnalysisConfig,
	logger *zerolog.Logger,
) *AnalysisOrchestrator {
	compLog := logger.With().Str("component", "orchestrator").Logger()
	return &AnalysisOrchestrator{
		runRepo:  runRepo,
		excl:     excl,
		disc:     disc,
		score:    score,
		progress: progress,
		cfg:      cfg,
		log:      &compLog,
		running:  make(map[string]context.CancelFunc),
	}
}

// SetNotifier wires the lane that receives notify_run jobs on run
// termination. Optional; without it no notifications are produced.
func (uc *AnalysisOrchestrator) SetNotifier(jobs JobEnqueuer) { uc.notify = jobs }

// enqueueNotification is best-effort: a run outcome must never be lost to a
// full notify lane.
func (uc *AnalysisOrchestrator) enqueueNotification(ctx context.Context, runID string, status model.RunStatus) {
	if uc.notify == nil {
		return
	}
	_, err := uc.notify.Enqueue(ctx, config.QueueNotify, JobTypeNotifyRun,
		NotifyJobPayload{RunID: runID, Status: status}, queue.EnqueueOptions{})
	if err != nil {
		uc.log.Warn().Err(err).Str("run_id", runID).Msg("could not enqueue run notification")
	}
}

// Handler adapts Execute to the queue's job contract.
func (uc *AnalysisOrchestrator) Handler() queue.Handler {
	return func(ctx context.Context, job *model.Job) error {
		var p RunJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: run payload: %v", domain.ErrInvalidArgument, err)
		}
		ctx = logging.WithRunID(logging.WithJobID(ctx, job.ID), p.RunID)
		return uc.Execute(ctx, p.RunID)
	}
}

// CancelRun interrupts an in-flight run, if this process is executing it.
// Callers must have persisted the cancelled status first.
func (uc *AnalysisOrchestrator) CancelRun(runID string) {
	uc.mu.Lock()
	cancel := uc.running[runID]
	uc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (uc *AnalysisOrchestrator) register(runID string, cancel context.CancelFunc) {
	uc.mu.Lock()
	uc.running[runID] = cancel
	uc.mu.Unlock()
}

func (uc *AnalysisOrchestrator) unregister(runID string) {
	uc.mu.Lock()
	delete(uc.running, runID)
	uc.mu.Unlock()
}

// Execute runs the full pipeline for one persisted run. A returned error
// counts as a failed job attempt and will be retried by the queue; run-level
// failures (bad data, spent quota) instead move the run to failed and return
// nil so the job does not spin.
func (uc *AnalysisOrchestrator) Execute(ctx context.Context, runID string) error {
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "Orchestrator.Execute")()

	run, err := uc.runRepo.FindByID(ctx, nil, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		log.Info().Str("status", string(run.Status)).Msg("run already terminal; nothing to do")
		return nil
	}
	if run.Status == model.RunStatusPending {
		if err := uc.runRepo.UpdateStatus(ctx, nil, runID, model.RunStatusPending, model.RunStatusProcessing); err != nil {
			// Lost the race: either cancelled or claimed by a requeued twin.
			fresh, ferr := uc.runRepo.FindByID(ctx, nil, runID)
			if ferr != nil {
				return ferr
			}
			if fresh.Status != model.RunStatusProcessing {
				log.Info().Str("status", string(fresh.Status)).Msg("run no longer pending; skipping")
				return nil
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	uc.register(runID, cancel)
	defer uc.unregister(runID)

	// Stage 1: exclusion set from reference channels.
	uc.publish(run, model.StageBuildingExclusions, pctExclusionsStart, "building exclusion set")
	exclusions, err := uc.excl.Build(runCtx, run.Config, func(done, total int) {
		uc.publish(run, model.StageBuildingExclusions, lerp(pctExclusionsStart, pctDiscoveryStart, done, total), "building exclusion set")
	})
	if err != nil {
		return uc.finishStage(ctx, runCtx, run, err)
	}
	uc.publishEvent(model.ProgressEvent{
		RunID:   run.ID,
		Stage:   model.StageBuildingExclusions,
		Name:    model.StageBuildingExclusions.String(),
		Percent: pctDiscoveryStart - 1,
		Message: "exclusion set ready",
		Payload: exclusions.Tokens(),
	})
	if stop, err := uc.checkpoint(ctx, runCtx, run); stop || err != nil {
		return err
	}

	// Stage 2: candidate channel discovery.
	uc.publish(run, model.StageDiscoveringChannels, pctDiscoveryStart, "discovering channels")
	channels, discovered, err := uc.disc.Discover(runCtx, run.Config, func(done, total int) {
		uc.publish(run, model.StageDiscoveringChannels, lerp(pctDiscoveryStart, pctScoringStart, done, total), "discovering channels")
	})
	if err != nil {
		return uc.finishStage(ctx, runCtx, run, err)
	}
	if stop, err := uc.checkpoint(ctx, runCtx, run); stop || err != nil {
		return err
	}

	// Stage 3: score channels with a bounded fan-out.
	uc.publish(run, model.StageScoringChannels, pctScoringStart, "scoring channels")
	candidates, analyzed, err := uc.scoreChannels(runCtx, run, channels, exclusions)
	if err != nil {
		return uc.finishStage(ctx, runCtx, run, err)
	}
	if stop, err := uc.checkpoint(ctx, runCtx, run); stop || err != nil {
		return err
	}

	// Stage 4: rank, filter and persist.
	uc.publish(run, model.StageRanking, pctRankingStart, "ranking results")
	results := uc.rank(run.Config, candidates)
	summary := &model.AnalysisSummary{
		TotalOutliers:      len(results),
		ChannelsDiscovered: discovered,
		ChannelsAnalyzed:   analyzed,
		ExclusionTokens:    exclusions.Len(),
	}
	return uc.complete(ctx, run, results, summary)
}

// scoreChannels fans channel scoring out over a bounded worker set. Channels
// that cannot be scored are skipped; only a spent quota is fatal.
func (uc *AnalysisOrchestrator) scoreChannels(ctx context.Context, run *model.AnalysisRun, channels []model.CandidateChannel, exclusions *model.ExclusionSet) ([]model.VideoCandidate, int, error) {
	log := uc.log.With().Str("run_id", run.ID).Logger()

	var (
		mu         sync.Mutex
		candidates []model.VideoCandidate
		analyzed   int
		done       int
		fatal      error
	)
	sem := make(chan struct{}, uc.cfg.ScoreConcurrency)
	var wg sync.WaitGroup

	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ch model.CandidateChannel) {
			defer wg.Done()
			defer func() { <-sem }()

			scored, err := uc.score.Score(ctx, ch, run.Config, exclusions)

			mu.Lock()
			defer mu.Unlock()
			done++
			uc.publish(run, model.StageScoringChannels, lerp(pctScoringStart, pctRankingStart, done, len(channels)), "scoring channels")
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrQuotaExceeded):
					fatal = err
				case errors.Is(err, context.Canceled):
				default:
					log.Warn().Err(err).Str("channel_id", ch.ID).Msg("skipping unscorable channel")
				}
				return
			}
			analyzed++
			candidates = append(candidates, scored...)
		}(ch)
	}
	wg.Wait()

	if fatal != nil {
		return nil, 0, fatal
	}
	return candidates, analyzed, nil
}

// rank filters excluded and below-threshold candidates, orders the remainder
// by outlier score, then brand fit, then recency, and truncates to the run's
// result cap.
func (uc *AnalysisOrchestrator) rank(cfg model.AnalysisConfig, candidates []model.VideoCandidate) []model.VideoCandidate {
	results := make([]model.VideoCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Excluded || c.OutlierScore < cfg.OutlierThreshold || c.BrandFit < cfg.BrandFitThreshold {
			continue
		}
		results = append(results, c)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].OutlierScore != results[j].OutlierScore {
			return results[i].OutlierScore > results[j].OutlierScore
		}
		if results[i].BrandFit != results[j].BrandFit {
			return results[i].BrandFit > results[j].BrandFit
		}
		return results[i].PublishedAt.After(results[j].PublishedAt)
	})
	max := cfg.MaxResults
	if max <= 0 {
		max = uc.cfg.DefaultMaxResults
	}
	if len(results) > max {
		results = results[:max]
	}
	return results
}

// complete moves the run to completed via the storage-level CAS and persists
// results. A run cancelled concurrently keeps its cancelled status and the
// computed results are discarded.
func (uc *AnalysisOrchestrator) complete(ctx context.Context, run *model.AnalysisRun, results []model.VideoCandidate, summary *model.AnalysisSummary) error {
	if err := uc.runRepo.UpdateStatus(ctx, nil, run.ID, model.RunStatusProcessing, model.RunStatusCompleted); err != nil {
		fresh, ferr := uc.runRepo.FindByID(ctx, nil, run.ID)
		if ferr == nil && fresh.Status == model.RunStatusCancelled {
			uc.log.Info().Str("run_id", run.ID).Msg("run cancelled at the finish line; discarding results")
			uc.progress.Close(run.ID)
			return nil
		}
		return err
	}

	fresh, err := uc.runRepo.FindByID(ctx, nil, run.ID)
	if err != nil {
		return err
	}
	fresh.Results = results
	fresh.Summary = summary
	if err := uc.runRepo.Save(ctx, nil, fresh); err != nil {
		return err
	}

	metrics.IncRun(string(model.RunStatusCompleted))
	metrics.ObserveRunSummary(summary.TotalOutliers, summary.ChannelsAnalyzed)
	uc.enqueueNotification(ctx, run.ID, model.RunStatusCompleted)
	uc.log.Info().Str("run_id", run.ID).Int("outliers", summary.TotalOutliers).
		Int("channels", summary.ChannelsAnalyzed).Msg("run completed")

	uc.publishEvent(model.ProgressEvent{
		RunID:   run.ID,
		Stage:   model.StageDone,
		Name:    model.StageDone.String(),
		Percent: pctDone,
		Message: "analysis complete",
		Payload: summary,
	})
	uc.progress.Close(run.ID)
	return nil
}

// checkpoint is consulted between stages. It reports stop=true when the run
// was cancelled (the cancelled status is already persisted by the canceller);
// a context killed for any other reason (shutdown) surfaces as an error so
// the job is retried.
func (uc *AnalysisOrchestrator) checkpoint(ctx, runCtx context.Context, run *model.AnalysisRun) (stop bool, err error) {
	fresh, ferr := uc.runRepo.FindByID(ctx, nil, run.ID)
	if ferr == nil && fresh.Status == model.RunStatusCancelled {
		uc.log.Info().Str("run_id", run.ID).Msg("run cancelled; stopping pipeline")
		uc.progress.Close(run.ID)
		return true, nil
	}
	if runCtx.Err() != nil {
		return false, runCtx.Err()
	}
	return false, ferr
}

// finishStage classifies a stage error: cancellation defers to checkpoint,
// everything else marks the run failed.
func (uc *AnalysisOrchestrator) finishStage(ctx, runCtx context.Context, run *model.AnalysisRun, cause error) error {
	if errors.Is(cause, context.Canceled) || runCtx.Err() != nil {
		stop, err := uc.checkpoint(ctx, runCtx, run)
		if stop || err != nil {
			return err
		}
	}
	return uc.fail(ctx, run, cause)
}

// fail moves the run to failed and records the cause. Returns nil: the run
// carries the failure, the job itself is done.
func (uc *AnalysisOrchestrator) fail(ctx context.Context, run *model.AnalysisRun, cause error) error {
	if err := uc.runRepo.UpdateStatus(ctx, nil, run.ID, model.RunStatusProcessing, model.RunStatusFailed); err != nil {
		uc.log.Error().Err(err).Str("run_id", run.ID).Msg("could not mark run failed")
		return err
	}
	fresh, err := uc.runRepo.FindByID(ctx, nil, run.ID)
	if err == nil {
		fresh.FailReason = cause.Error()
		if err := uc.runRepo.Save(ctx, nil, fresh); err != nil {
			uc.log.Error().Err(err).Str("run_id", run.ID).Msg("could not persist fail reason")
		}
	}

	metrics.IncRun(string(model.RunStatusFailed))
	uc.enqueueNotification(ctx, run.ID, model.RunStatusFailed)
	uc.log.Error().Err(cause).Str("run_id", run.ID).Msg("run failed")
	uc.progress.Close(run.ID)
	return nil
}

func (uc *AnalysisOrchestrator) publish(run *model.AnalysisRun, stage model.Stage, percent int, message string) {
	uc.publishEvent(model.ProgressEvent{
		RunID:   run.ID,
		Stage:   stage,
		Name:    stage.String(),
		Percent: percent,
		Message: message,
	})
}

func (uc *AnalysisOrchestrator) publishEvent(ev model.ProgressEvent) {
	if uc.progress != nil {
		uc.progress.Publish(ev)
	}
}

// lerp maps done/total onto the [start, end) percent band.
func lerp(start, end, done, total int) int {
	if total <= 0 {
		return start
	}
	p := start + (end-start)*done/total
	if p >= end {
		p = end - 1
	}
	return p
}
