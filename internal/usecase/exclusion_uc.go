package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
)

// ExclusionBuilderUseCase mines the run's reference channels for content
// tokens that should disqualify candidate videos later in the pipeline.
type ExclusionBuilderUseCase struct {
	yt    adapter.YouTubeAdapter
	rules *model.RuleSet
	cfg   config.AnalysisConfig
	log   *zerolog.Logger
}

func NewExclusionBuilderUseCase(yt adapter.YouTubeAdapter, rules *model.RuleSet, cfg config.AnalysisConfig, logger *zerolog.Logger) *ExclusionBuilderUseCase {
	compLog := logger.With().Str("component", "exclusion_builder").Logger()
	return &ExclusionBuilderUseCase{yt: yt, rules: rules, cfg: cfg, log: &compLog}
}

// Build resolves each reference channel by name, scans its recent uploads and
// collects every exclusion-rule token that matches. The returned set is
// sealed. A reference that cannot be resolved is logged and skipped; only a
// spent quota aborts the build.
func (uc *ExclusionBuilderUseCase) Build(ctx context.Context, runCfg model.AnalysisConfig, report func(done, total int)) (*model.ExclusionSet, error) {
	set := model.NewExclusionSet()
	total := len(runCfg.ReferenceChannels)
	after := time.Now().AddDate(0, 0, -runCfg.WindowDays)

	for i, name := range runCfg.ReferenceChannels {
		ch, err := uc.resolveReference(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil, err
			}
			uc.log.Warn().Err(err).Str("reference", name).Msg("skipping unresolved reference channel")
			continue
		}

		videos, err := uc.yt.FetchChannelVideos(ctx, ch.ID, uc.cfg.VideosPerChannel, after)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil, err
			}
			uc.log.Warn().Err(err).Str("channel_id", ch.ID).Msg("skipping reference channel videos")
			continue
		}
		for _, v := range videos {
			set.Add(uc.rules.ExtractTokens(v.Title + " " + v.Description)...)
		}

		if report != nil {
			report(i+1, total)
		}
	}

	set.Seal()
	uc.log.Info().Int("tokens", set.Len()).Int("references", total).Msg("exclusion set built")
	return set, nil
}

// resolveReference maps a human-entered channel name to a channel id: the
// first search hit whose title contains the name, case-insensitively.
func (uc *ExclusionBuilderUseCase) resolveReference(ctx context.Context, name string) (*model.CandidateChannel, error) {
	hits, err := uc.yt.SearchChannels(ctx, name, 5, model.SubscriberBand{})
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	for i := range hits {
		if strings.Contains(strings.ToLower(hits[i].Title), lower) {
			return &hits[i], nil
		}
	}
	return nil, domain.ErrNotFound
}
