package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
)

// minScoreSample is the smallest in-window video count a channel needs
// before its ratios mean anything.
const minScoreSample = 3

// ChannelScoringUseCase scores one channel's recent videos. It computes raw
// scores only; threshold filtering and ranking belong to the orchestrator.
type ChannelScoringUseCase struct {
	yt    adapter.YouTubeAdapter
	rules *model.RuleSet
	cfg   config.AnalysisConfig
	log   *zerolog.Logger
}

func NewChannelScoringUseCase(yt adapter.YouTubeAdapter, rules *model.RuleSet, cfg config.AnalysisConfig, logger *zerolog.Logger) *ChannelScoringUseCase {
	compLog := logger.With().Str("component", "channel_scoring").Logger()
	return &ChannelScoringUseCase{yt: yt, rules: rules, cfg: cfg, log: &compLog}
}

// Score fetches the channel's videos inside the run window and attaches an
// outlier score, a brand-fit score and the exclusion verdict to each.
// Channels with fewer than minScoreSample in-window videos yield no
// candidates; too small a sample is not an error.
func (uc *ChannelScoringUseCase) Score(ctx context.Context, ch model.CandidateChannel, runCfg model.AnalysisConfig, exclusions *model.ExclusionSet) ([]model.VideoCandidate, error) {
	after := time.Now().AddDate(0, 0, -runCfg.WindowDays)
	videos, err := uc.yt.FetchChannelVideos(ctx, ch.ID, uc.cfg.VideosPerChannel, after)
	if err != nil {
		return nil, err
	}
	if len(videos) < minScoreSample {
		uc.log.Debug().Str("channel_id", ch.ID).Int("videos", len(videos)).
			Msg("too few in-window videos to score")
		return nil, nil
	}

	out := make([]model.VideoCandidate, 0, len(videos))
	for _, v := range videos {
		v.ChannelID = ch.ID
		if v.ChannelTitle == "" {
			v.ChannelTitle = ch.Title
		}
		v.OutlierScore = model.OutlierScore(v.ViewCount, ch.SubscriberCount)
		v.BrandFit = uc.rules.BrandFit(uc.cfg.BrandFitBase, v.Title, v.Description)
		v.Excluded = exclusions.Matches(v.Title + " " + v.Description)
		out = append(out, v)
	}
	return out, nil
}
